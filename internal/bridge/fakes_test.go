package bridge

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"hap-ble-bridge/internal/hap"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var (
	svcLightbulb   = hap.ShortUUID(0x43)
	charOn         = hap.ShortUUID(0x25)
	charBrightness = hap.ShortUUID(0x08)
	svcSensor      = hap.ShortUUID(0x8A)
	charTemp       = hap.ShortUUID(0x11)
	charBlob       = uuid.MustParse("E863F11E-079E-48FF-8F27-9C2605A29F52")
	charTLV        = hap.ShortUUID(0x201)
)

func meta(svc, char uuid.UUID, iid uint16, f hap.Format, props uint16) *hap.Characteristic {
	return &hap.Characteristic{
		Address:    hap.Address{Service: svc, Characteristic: char},
		IID:        iid,
		Format:     f,
		Properties: props,
	}
}

const rw = hap.PropPairedRead | hap.PropPairedWrite

// testServices returns a discovered database with every reserved service,
// a lightbulb and a sensor with opaque characteristics.
func testServices() []*hap.Service {
	info := hap.ServiceAccessoryInformation
	return []*hap.Service{
		{UUID: info, IID: 1, Characteristics: []*hap.Characteristic{
			meta(info, hap.CharIdentify, 2, hap.FormatTLV8, hap.PropPairedWrite),
			meta(info, hap.CharManufacturer, 3, hap.FormatString, hap.PropPairedRead),
			meta(info, hap.CharModel, 4, hap.FormatString, hap.PropPairedRead),
			meta(info, hap.CharName, 5, hap.FormatString, hap.PropPairedRead),
			meta(info, hap.CharSerialNumber, 6, hap.FormatString, hap.PropPairedRead),
			meta(info, hap.CharFirmwareRevision, 7, hap.FormatString, hap.PropPairedRead),
			meta(info, hap.CharHardwareRevision, 8, hap.FormatString, hap.PropPairedRead),
		}},
		{UUID: hap.ServiceProtocolInformation, IID: 10, Characteristics: []*hap.Characteristic{
			meta(hap.ServiceProtocolInformation, hap.ShortUUID(0x37), 11, hap.FormatString, hap.PropRead),
		}},
		{UUID: hap.ServicePairing, IID: 12, Characteristics: []*hap.Characteristic{
			meta(hap.ServicePairing, hap.CharPairSetup, 13, hap.FormatTLV8, hap.PropRead|hap.PropWrite),
			meta(hap.ServicePairing, hap.CharPairings, 14, hap.FormatTLV8, rw),
		}},
		{UUID: svcLightbulb, IID: 20, Characteristics: []*hap.Characteristic{
			meta(svcLightbulb, charOn, 21, hap.FormatBool, rw|hap.PropEventsConnected),
			meta(svcLightbulb, charBrightness, 22, hap.FormatInt, rw),
		}},
		{UUID: svcSensor, IID: 30, Characteristics: []*hap.Characteristic{
			meta(svcSensor, charTemp, 31, hap.FormatFloat, hap.PropPairedRead),
			meta(svcSensor, charBlob, 32, hap.FormatData, hap.PropPairedRead),
			meta(svcSensor, charTLV, 33, hap.FormatTLV8, hap.PropPairedRead),
		}},
	}
}

type fakeDB struct {
	mu       sync.Mutex
	services []*hap.Service
	pairing  *hap.PairingRecord
	saves    int
	deletes  int
}

func newFakeDB(services []*hap.Service) *fakeDB {
	return &fakeDB{services: services}
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

func (d *fakeDB) Pairing() *hap.PairingRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pairing
}

func (d *fakeDB) SetPairing(p *hap.PairingRecord) {
	d.mu.Lock()
	d.pairing = p
	d.mu.Unlock()
}

func (d *fakeDB) Save() error {
	d.mu.Lock()
	d.saves++
	d.mu.Unlock()
	return nil
}

func (d *fakeDB) Delete() error {
	d.mu.Lock()
	d.deletes++
	d.mu.Unlock()
	return nil
}

type fakeProcedure struct{ name string }

func (p fakeProcedure) Name() string { return p.name }
func (p fakeProcedure) Execute(context.Context, hap.Channel) (any, error) {
	return nil, nil
}

// fakeExecutor fails the first len(errs) runs with the given errors.
type fakeExecutor struct {
	mu     sync.Mutex
	calls  []string
	errs   []error
	result any
}

func (e *fakeExecutor) Run(_ context.Context, p hap.Procedure) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, p.Name())
	if n := len(e.calls) - 1; n < len(e.errs) && e.errs[n] != nil {
		return nil, e.errs[n]
	}
	return e.result, nil
}

func (e *fakeExecutor) runs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type write struct {
	addr   hap.Address
	format hap.Format
	value  any
}

type fakeAccessor struct {
	mu       sync.Mutex
	values   map[hap.Address]any
	readErrs map[hap.Address]error
	writeErr error
	reads    []hap.Address
	writes   []write
	// onRead runs after each read is recorded.
	onRead func(addr hap.Address)
}

func newFakeAccessor() *fakeAccessor {
	return &fakeAccessor{
		values:   make(map[hap.Address]any),
		readErrs: make(map[hap.Address]error),
	}
}

func (a *fakeAccessor) set(addr hap.Address, v any) {
	a.mu.Lock()
	a.values[addr] = v
	a.mu.Unlock()
}

func (a *fakeAccessor) Read(_ context.Context, c *hap.Characteristic) (any, error) {
	a.mu.Lock()
	a.reads = append(a.reads, c.Address)
	hook := a.onRead
	v, err := a.values[c.Address], a.readErrs[c.Address]
	a.mu.Unlock()

	if hook != nil {
		hook(c.Address)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (a *fakeAccessor) readsOf(addr hap.Address) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, r := range a.reads {
		if r == addr {
			n++
		}
	}
	return n
}

func (a *fakeAccessor) Write(_ context.Context, c *hap.Characteristic, v any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writes = append(a.writes, write{addr: c.Address, format: c.Format, value: v})
	return a.writeErr
}

func (a *fakeAccessor) readCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reads)
}

func (a *fakeAccessor) resetReads() {
	a.mu.Lock()
	a.reads = nil
	a.mu.Unlock()
}

func (a *fakeAccessor) readAddrs() []hap.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]hap.Address(nil), a.reads...)
}

type fakeSubs struct {
	mu     sync.Mutex
	notify map[hap.Address]func()
	closed bool
}

func (s *fakeSubs) Subscribe(_ context.Context, c *hap.Characteristic, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notify == nil {
		s.notify = make(map[hap.Address]func())
	}
	s.notify[c.Address] = fn
	return nil
}

func (s *fakeSubs) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type fakePeripheral struct {
	id, name string
	paired   bool

	mu          sync.Mutex
	category    uint16
	disconnects int
	rssiFn      func(rssi, diff int)
	mfgFns      []func([]byte)
}

func (p *fakePeripheral) ID() string     { return p.id }
func (p *fakePeripheral) Name() string   { return p.name }
func (p *fakePeripheral) IsPaired() bool { return p.paired }

func (p *fakePeripheral) Category() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.category
}

func (p *fakePeripheral) Disconnect() error {
	p.mu.Lock()
	p.disconnects++
	p.mu.Unlock()
	return nil
}

func (p *fakePeripheral) OnRSSI(fn func(rssi, diff int)) { p.rssiFn = fn }
func (p *fakePeripheral) OnManufacturerData(fn func([]byte)) {
	p.mu.Lock()
	p.mfgFns = append(p.mfgFns, fn)
	p.mu.Unlock()
}

// advertise delivers one manufacturer-data sample. A non-zero category
// replaces the advertised one first.
func (p *fakePeripheral) advertise(category uint16) {
	p.mu.Lock()
	if category != 0 {
		p.category = category
	}
	fns := append([]func([]byte){}, p.mfgFns...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn([]byte{0x06})
	}
}

type fakeTransport struct {
	db      *fakeDB
	exec    *fakeExecutor
	acc     *fakeAccessor
	subs    *fakeSubs
	openErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		db:   newFakeDB(testServices()),
		exec: &fakeExecutor{result: &hap.PairingRecord{AccessoryPairingID: "11:22:33:44:55:66"}},
		acc:  newFakeAccessor(),
		subs: &fakeSubs{},
	}
}

func (t *fakeTransport) OpenDatabase(context.Context, Peripheral) (Database, error) {
	if t.openErr != nil {
		return nil, t.openErr
	}
	return t.db, nil
}
func (t *fakeTransport) NewExecutor(Peripheral, Database) Executor { return t.exec }
func (t *fakeTransport) NewAccessor(Peripheral, Database, Executor) Accessor {
	return t.acc
}
func (t *fakeTransport) NewSubscriptionManager(Peripheral, Database, Executor) SubscriptionManager {
	return t.subs
}
func (t *fakeTransport) PairSetup(_ Database, pin string) hap.Procedure {
	return fakeProcedure{name: "pair-setup:" + pin}
}
func (t *fakeTransport) RemovePairing(Database) hap.Procedure {
	return fakeProcedure{name: "remove-pairing"}
}

// recordingSleep counts delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return nil
}

func (s *recordingSleep) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

var errLink = errors.New("link lost")

func disabled() *bool {
	b := false
	return &b
}
