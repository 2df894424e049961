package web

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"hap-ble-bridge/internal/bridge"
	"hap-ble-bridge/internal/hap"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var (
	svcLightbulb = hap.ShortUUID(0x43)
	charOn       = hap.ShortUUID(0x25)
)

func testServices() []*hap.Service {
	info := hap.ServiceAccessoryInformation
	rw := hap.PropPairedRead | hap.PropPairedWrite
	return []*hap.Service{
		{UUID: info, IID: 1, Characteristics: []*hap.Characteristic{
			{Address: hap.Address{Service: info, Characteristic: hap.CharIdentify}, IID: 2, Format: hap.FormatBool, Properties: hap.PropPairedWrite},
			{Address: hap.Address{Service: info, Characteristic: hap.CharManufacturer}, IID: 3, Format: hap.FormatString, Properties: hap.PropPairedRead},
		}},
		{UUID: svcLightbulb, IID: 10, Characteristics: []*hap.Characteristic{
			{Address: hap.Address{Service: svcLightbulb, Characteristic: charOn}, IID: 11, Format: hap.FormatBool, Properties: rw},
		}},
	}
}

type fakeDB struct {
	services []*hap.Service
	pairing  *hap.PairingRecord
}

func (d *fakeDB) Services() []*hap.Service { return d.services }

func (d *fakeDB) Characteristic(addr hap.Address) (*hap.Characteristic, bool) {
	for _, s := range d.services {
		for _, c := range s.Characteristics {
			if c.Address == addr {
				return c, true
			}
		}
	}
	return nil, false
}

func (d *fakeDB) Pairing() *hap.PairingRecord      { return d.pairing }
func (d *fakeDB) SetPairing(p *hap.PairingRecord) { d.pairing = p }
func (d *fakeDB) Save() error                     { return nil }
func (d *fakeDB) Delete() error                   { return nil }

// fakeAccessor stores values per characteristic; err fails every call.
type fakeAccessor struct {
	mu     sync.Mutex
	values map[hap.Address]any
	writes []any
	err    error
}

func (a *fakeAccessor) Read(_ context.Context, c *hap.Characteristic) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return a.values[c.Address], nil
}

func (a *fakeAccessor) Write(_ context.Context, c *hap.Characteristic, v any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.values[c.Address] = v
	a.writes = append(a.writes, v)
	return nil
}

func (a *fakeAccessor) fail(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

func (a *fakeAccessor) lastWrite() any {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.writes) == 0 {
		return nil
	}
	return a.writes[len(a.writes)-1]
}

type fakeExecutor struct{}

func (fakeExecutor) Run(context.Context, hap.Procedure) (any, error) { return nil, nil }

type fakeTransport struct {
	db  *fakeDB
	acc *fakeAccessor
}

func (t *fakeTransport) OpenDatabase(context.Context, bridge.Peripheral) (bridge.Database, error) {
	return t.db, nil
}
func (t *fakeTransport) NewExecutor(bridge.Peripheral, bridge.Database) bridge.Executor {
	return fakeExecutor{}
}
func (t *fakeTransport) NewAccessor(bridge.Peripheral, bridge.Database, bridge.Executor) bridge.Accessor {
	return t.acc
}
func (t *fakeTransport) NewSubscriptionManager(bridge.Peripheral, bridge.Database, bridge.Executor) bridge.SubscriptionManager {
	return nil
}
func (t *fakeTransport) PairSetup(bridge.Database, string) hap.Procedure { return nil }
func (t *fakeTransport) RemovePairing(bridge.Database) hap.Procedure     { return nil }

type fakePeripheral struct {
	id, name string
}

func (p *fakePeripheral) ID() string                     { return p.id }
func (p *fakePeripheral) Name() string                   { return p.name }
func (p *fakePeripheral) IsPaired() bool                 { return true }
func (p *fakePeripheral) Category() uint16               { return 0 }
func (p *fakePeripheral) Disconnect() error              { return nil }
func (p *fakePeripheral) OnRSSI(func(rssi, diff int))    {}
func (p *fakePeripheral) OnManufacturerData(func([]byte)) {}

// newTestBridge returns a bridge with a started "Lamp" and an idle "Fan".
func newTestBridge(t *testing.T) (*bridge.Bridge, *fakeAccessor) {
	t.Helper()
	acc := &fakeAccessor{values: map[hap.Address]any{
		{Service: hap.ServiceAccessoryInformation, Characteristic: hap.CharManufacturer}: "Acme",
		{Service: svcLightbulb, Characteristic: charOn}:                                 false,
	}}
	tr := &fakeTransport{db: &fakeDB{services: testServices()}, acc: acc}

	off := false
	events := bridge.NewEventBus(newTestLogger())
	br := bridge.New(tr, events, []bridge.Config{
		{Name: "Lamp", Address: "AA:BB:CC:DD:EE:FF", Reachability: &off},
		{Name: "Fan", Reachability: &off},
	}, newTestLogger())
	t.Cleanup(br.Stop)

	started := make(chan struct{}, 1)
	unsub := events.On(bridge.EventAccessoryStarted, func(bridge.Event) {
		select {
		case started <- struct{}{}:
		default:
		}
	})
	defer unsub()

	if !br.HandleDiscovered(&fakePeripheral{id: "AA:BB:CC:DD:EE:FF", name: "Lamp"}) {
		t.Fatal("peripheral not taken")
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("accessory did not start")
	}
	return br, acc
}
