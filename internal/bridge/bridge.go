// Package bridge binds configured HAP-over-BLE accessories to discovered
// peripherals and runs each accessory's lifecycle.
package bridge

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Bridge owns the configured accessories and starts each one when its
// peripheral is discovered.
type Bridge struct {
	transport Transport
	events    *EventBus
	logger    *slog.Logger

	accessories []*Accessory
	byName      map[string]*Accessory

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a bridge with one accessory per config.
func New(transport Transport, events *EventBus, cfgs []Config, logger *slog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		transport: transport,
		events:    events,
		logger:    logger.With("component", "bridge"),
		byName:    make(map[string]*Accessory),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, cfg := range cfgs {
		acc := NewAccessory(cfg, events, logger)
		b.accessories = append(b.accessories, acc)
		b.byName[cfg.Name] = acc
	}
	return b
}

// Context returns the bridge's context, which is cancelled on Stop().
func (b *Bridge) Context() context.Context {
	return b.ctx
}

// Events returns the event bus.
func (b *Bridge) Events() *EventBus {
	return b.events
}

// Accessories returns the accessories in configuration order.
func (b *Bridge) Accessories() []*Accessory {
	return b.accessories
}

// Accessory looks up an accessory by configured name.
func (b *Bridge) Accessory(name string) (*Accessory, bool) {
	acc, ok := b.byName[name]
	return acc, ok
}

// match finds the accessory configured for p: by address, or by advertised
// name for entries without an address.
func (b *Bridge) match(p Peripheral) *Accessory {
	for _, acc := range b.accessories {
		cfg := acc.Config()
		if cfg.Address != "" {
			if strings.EqualFold(cfg.Address, p.ID()) {
				return acc
			}
			continue
		}
		if p.Name() != "" && cfg.Name == p.Name() {
			return acc
		}
	}
	return nil
}

// HandleDiscovered binds a newly discovered peripheral to its accessory and
// starts it in the background. It reports whether the peripheral was taken.
func (b *Bridge) HandleDiscovered(p Peripheral) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx.Err() != nil {
		return false
	}
	acc := b.match(p)
	if acc == nil {
		b.logger.Debug("ignoring peripheral", "peripheral", p.ID(), "name", p.Name())
		return false
	}
	if acc.HasPeripheral() {
		return false
	}

	acc.AssignPeripheral(p)
	b.events.Emit(Event{Type: EventAccessoryFound, Data: map[string]interface{}{
		"accessory":  acc.Name(),
		"peripheral": p.ID(),
	}})

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := acc.Start(b.ctx, b.transport); err != nil {
			b.logger.Error("start accessory", "accessory", acc.Name(), "err", err)
		}
	}()
	return true
}

// Stop cancels running startups, waits for them and closes every accessory.
func (b *Bridge) Stop() {
	b.mu.Lock()
	b.cancel()
	b.mu.Unlock()

	b.wg.Wait()
	for _, acc := range b.accessories {
		acc.Close()
	}
}
