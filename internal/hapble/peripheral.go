package hapble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Peripheral is one advertising HAP-BLE accessory. Scan results update its
// name, RSSI and advertisement; a GATT link is opened on first use.
type Peripheral struct {
	id     string
	dialer Dialer
	logger *slog.Logger
	exec   *Executor

	mu       sync.Mutex
	name     string
	adv      Advertisement
	rssi     int
	haveRSSI bool
	rssiFns  []func(rssi, diff int)
	mfgFns   []func(data []byte)

	connMu    sync.Mutex
	session   *Session
	onConnect []func(*Session)
}

// NewPeripheral creates a peripheral reachable through dialer at address id.
func NewPeripheral(id, name string, dialer Dialer, logger *slog.Logger) *Peripheral {
	p := &Peripheral{
		id:     id,
		name:   name,
		dialer: dialer,
		logger: logger.With("peripheral", id),
	}
	p.exec = &Executor{p: p}
	return p
}

func (p *Peripheral) ID() string { return p.id }

func (p *Peripheral) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// IsPaired reports the paired flag of the latest advertisement.
func (p *Peripheral) IsPaired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adv.Paired()
}

// Category returns the category of the latest advertisement.
func (p *Peripheral) Category() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adv.Category
}

// Advertisement returns the latest decoded advertisement.
func (p *Peripheral) Advertisement() Advertisement {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adv
}

func (p *Peripheral) OnRSSI(fn func(rssi, diff int)) {
	p.mu.Lock()
	p.rssiFns = append(p.rssiFns, fn)
	p.mu.Unlock()
}

func (p *Peripheral) OnManufacturerData(fn func(data []byte)) {
	p.mu.Lock()
	p.mfgFns = append(p.mfgFns, fn)
	p.mu.Unlock()
}

// Update applies one scan result. mfg is the HAP manufacturer payload, or
// nil when the result carried none.
func (p *Peripheral) Update(name string, rssi int, mfg []byte) {
	p.mu.Lock()
	if name != "" {
		p.name = name
	}
	diff := 0
	if p.haveRSSI {
		diff = rssi - p.rssi
	}
	p.rssi, p.haveRSSI = rssi, true
	if mfg != nil {
		if adv, err := ParseAdvertisement(mfg); err == nil {
			p.adv = adv
		}
	}
	rssiFns := append([]func(int, int){}, p.rssiFns...)
	mfgFns := append([]func([]byte){}, p.mfgFns...)
	p.mu.Unlock()

	for _, fn := range rssiFns {
		fn(rssi, diff)
	}
	if mfg != nil {
		for _, fn := range mfgFns {
			fn(mfg)
		}
	}
}

// OnConnect registers fn to run on every newly opened session.
func (p *Peripheral) OnConnect(fn func(*Session)) {
	p.connMu.Lock()
	p.onConnect = append(p.onConnect, fn)
	p.connMu.Unlock()
}

// connect returns the open session, dialing when there is none.
func (p *Peripheral) connect(ctx context.Context) (*Session, error) {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.session != nil {
		return p.session, nil
	}

	p.logger.Debug("connecting")
	link, err := p.dialer.Dial(ctx, p.id)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", p.id, err)
	}
	s, err := NewSession(link)
	if err != nil {
		link.Disconnect()
		return nil, err
	}
	p.session = s
	for _, fn := range p.onConnect {
		fn(s)
	}
	p.logger.Info("connected")
	return s, nil
}

// drop closes s if it is still the current session.
func (p *Peripheral) drop(s *Session) {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.session != s {
		return
	}
	p.session = nil
	if err := s.Close(); err != nil {
		p.logger.Debug("disconnect after failure", "err", err)
	}
}

// Disconnect closes the GATT link if one is open.
func (p *Peripheral) Disconnect() error {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	p.session = nil
	p.logger.Info("disconnected")
	return err
}
