package hapble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

// Central scans for HAP-BLE accessories with the host adapter and dials
// them on demand.
type Central struct {
	adapter *bluetooth.Adapter
	logger  *slog.Logger

	mu          sync.Mutex
	peripherals map[string]*Peripheral
	addrs       map[string]bluetooth.Address
	onDiscover  func(*Peripheral)
}

var _ Dialer = (*Central)(nil)

// NewCentral wraps the default system adapter.
func NewCentral(logger *slog.Logger) *Central {
	return &Central{
		adapter:     bluetooth.DefaultAdapter,
		logger:      logger.With("component", "central"),
		peripherals: make(map[string]*Peripheral),
		addrs:       make(map[string]bluetooth.Address),
	}
}

// OnDiscover sets the callback fired once per newly seen accessory.
func (c *Central) OnDiscover(fn func(*Peripheral)) {
	c.mu.Lock()
	c.onDiscover = fn
	c.mu.Unlock()
}

// Enable powers on the adapter.
func (c *Central) Enable() error {
	if err := c.adapter.Enable(); err != nil {
		return fmt.Errorf("hapble: enable adapter: %w", err)
	}
	return nil
}

// Scan runs until ctx is cancelled.
func (c *Central) Scan(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.adapter.StopScan()
		case <-done:
		}
	}()

	c.logger.Info("scanning")
	err := c.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		c.handleScan(result)
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("hapble: scan: %w", err)
	}
	return nil
}

func (c *Central) handleScan(result bluetooth.ScanResult) {
	var payload []byte
	for _, m := range result.ManufacturerData() {
		if m.CompanyID != appleCompanyID {
			continue
		}
		if _, err := ParseAdvertisement(m.Data); err == nil {
			payload = m.Data
			break
		}
	}
	if payload == nil {
		return
	}

	id := result.Address.String()
	c.mu.Lock()
	p, known := c.peripherals[id]
	if !known {
		p = NewPeripheral(id, result.LocalName(), c, c.logger)
		c.peripherals[id] = p
		c.addrs[id] = result.Address
	}
	fn := c.onDiscover
	c.mu.Unlock()

	p.Update(result.LocalName(), int(result.RSSI), payload)
	if !known {
		c.logger.Info("accessory discovered", "peripheral", id, "name", p.Name(), "paired", p.IsPaired())
		if fn != nil {
			fn(p)
		}
	}
}

// Dial implements Dialer.
func (c *Central) Dial(ctx context.Context, address string) (Link, error) {
	c.mu.Lock()
	addr, ok := c.addrs[address]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("hapble: %s not seen in scan", address)
	}

	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := c.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("hapble: connect to %s: %w", address, ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("hapble: connect to %s: %w", address, res.err)
		}
		return &deviceLink{device: res.device}, nil
	}
}

type deviceLink struct {
	device bluetooth.Device
	mtu    int
}

func (l *deviceLink) Discover() ([]GATTService, error) {
	svcs, err := l.device.DiscoverServices(nil)
	if err != nil {
		return nil, err
	}
	out := make([]GATTService, 0, len(svcs))
	for i := range svcs {
		id, err := uuid.Parse(svcs[i].UUID().String())
		if err != nil {
			continue
		}
		chars, err := svcs[i].DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("characteristics of %s: %w", id, err)
		}
		gs := GATTService{UUID: id}
		for j := range chars {
			cid, err := uuid.Parse(chars[j].UUID().String())
			if err != nil {
				continue
			}
			if l.mtu == 0 {
				if mtu, err := chars[j].GetMTU(); err == nil {
					l.mtu = int(mtu)
				}
			}
			gs.Characteristics = append(gs.Characteristics, &deviceCharacteristic{c: chars[j], id: cid})
		}
		out = append(out, gs)
	}
	return out, nil
}

func (l *deviceLink) MTU() int {
	if l.mtu == 0 {
		return defaultMTU
	}
	return l.mtu
}

func (l *deviceLink) Disconnect() error {
	return l.device.Disconnect()
}

type deviceCharacteristic struct {
	c  bluetooth.DeviceCharacteristic
	id uuid.UUID
}

func (d *deviceCharacteristic) UUID() uuid.UUID            { return d.id }
func (d *deviceCharacteristic) Read(p []byte) (int, error) { return d.c.Read(p) }

func (d *deviceCharacteristic) EnableNotifications(cb func([]byte)) error {
	return d.c.EnableNotifications(cb)
}
