package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"hap-ble-bridge/internal/hap"
	"hap-ble-bridge/internal/host"
)

var (
	// ErrNoPeripheral is returned by Start before a peripheral is assigned.
	ErrNoPeripheral = errors.New("no peripheral assigned")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("accessory already started")
	// ErrNoDatabase is reported when an operation needs the accessory
	// database before Start opened it.
	ErrNoDatabase = errors.New("accessory database not open")
	// ErrIdentifyUnavailable is reported when the accessory has no
	// Identify characteristic.
	ErrIdentifyUnavailable = errors.New("identify characteristic not found")
	// ErrNotStarted is returned for proxy access before startup completed.
	ErrNotStarted = errors.New("accessory not started")
	// ErrUnknownCharacteristic is returned for an address with no proxy.
	ErrUnknownCharacteristic = errors.New("unknown characteristic")
)

var identifyAddr = hap.Address{Service: hap.ServiceAccessoryInformation, Characteristic: hap.CharIdentify}

// Accessory drives one bridged BLE accessory through pairing, information
// sync, proxy construction, refresh, reachability and identify.
type Accessory struct {
	cfg    Config
	events *EventBus
	logger *slog.Logger
	retry  RetryPolicy

	info     *host.AccessoryInformation
	bridging *host.BridgingState

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	// sigMu serializes reachability signals so host updates keep order.
	sigMu sync.Mutex

	mu         sync.Mutex
	peripheral Peripheral
	watcher    *LivenessWatcher
	db         Database
	exec       Executor
	accessor   Accessor
	subs       SubscriptionManager
	transport  Transport
	registry   *Registry
	state      ReachabilityState
	linkQ      int
	starting   bool
	started    bool
	refreshing bool
	closed     bool
}

// NewAccessory creates an accessory controller. Only the fixed services exist
// until Start builds the proxies.
func NewAccessory(cfg Config, events *EventBus, logger *slog.Logger) *Accessory {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Accessory{
		cfg:      cfg,
		events:   events,
		logger:   logger.With("accessory", cfg.Name),
		retry:    DefaultRetry,
		info:     host.NewAccessoryInformation(cfg.Name),
		bridging: host.NewBridgingState(""),
		ctx:      ctx,
		cancel:   cancel,
		linkQ:    1,
	}
	a.registry = NewRegistry(a.fixedServices(), nil)
	return a
}

// SetRetryPolicy replaces the pairing and unpairing retry policy.
func (a *Accessory) SetRetryPolicy(p RetryPolicy) {
	a.retry = p
}

func (a *Accessory) fixedServices() []*host.Service {
	return []*host.Service{a.info.Service, a.bridging.Service}
}

// Name returns the configured display name.
func (a *Accessory) Name() string {
	return a.cfg.Name
}

// Config returns the accessory configuration.
func (a *Accessory) Config() Config {
	return a.cfg
}

// Info returns the accessory information service.
func (a *Accessory) Info() *host.AccessoryInformation {
	return a.info
}

// BridgingState returns the bridging state service.
func (a *Accessory) BridgingState() *host.BridgingState {
	return a.bridging
}

// HasPeripheral reports whether a peripheral has been assigned.
func (a *Accessory) HasPeripheral() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peripheral != nil
}

// Peripheral returns the assigned peripheral, or nil.
func (a *Accessory) Peripheral() Peripheral {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peripheral
}

// AssignPeripheral binds p to the accessory and wires its signals.
func (a *Accessory) AssignPeripheral(p Peripheral) {
	a.mu.Lock()
	a.peripheral = p
	a.mu.Unlock()

	a.bridging.AccessoryIdentifier.UpdateValue(p.ID())
	a.syncCategory(p)
	p.OnRSSI(a.handleRSSI)
	p.OnManufacturerData(func([]byte) { a.syncCategory(p) })

	if a.cfg.reachabilityEnabled() {
		w := NewLivenessWatcher(a.cfg.reachabilityTimeout(), func(visible bool) {
			if visible {
				a.signal(SignalSeen)
			} else {
				a.signal(SignalTimeout)
			}
		})
		a.mu.Lock()
		a.watcher = w
		a.mu.Unlock()
		p.OnManufacturerData(func([]byte) { w.Seen() })
		w.Seen()
	} else {
		a.signal(SignalAssumed)
	}

	a.logger.Info("accessory found", "peripheral", p.ID())
}

// syncCategory mirrors the advertised category into the bridging state.
func (a *Accessory) syncCategory(p Peripheral) {
	c := p.Category()
	if c == 0 {
		return
	}
	if a.bridging.Category.UpdateValue(c) {
		a.logger.Debug("accessory category", "category", c)
	}
}

// Reachability returns the current reachability state.
func (a *Accessory) Reachability() ReachabilityState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// LinkQuality returns the link quality derived from the latest RSSI sample.
func (a *Accessory) LinkQuality() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.linkQ
}

// Started reports whether startup completed.
func (a *Accessory) Started() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

func (a *Accessory) signal(sig Signal) {
	a.sigMu.Lock()
	defer a.sigMu.Unlock()

	a.mu.Lock()
	t := Reduce(a.state, sig, a.started)
	if !t.Changed {
		a.mu.Unlock()
		return
	}
	a.state = t.Next
	refresh := t.Refresh && !a.refreshing && !a.closed
	if refresh {
		a.refreshing = true
		a.bg.Add(1)
	}
	a.mu.Unlock()

	reachable := t.Next == Reachable
	a.logger.Info("reachability changed", "reachable", reachable)
	a.bridging.Reachable.UpdateValue(reachable)
	a.emit(EventReachability, map[string]interface{}{"reachable": reachable})

	if refresh {
		go func() {
			defer a.bg.Done()
			a.RefreshAll(a.ctx)
			a.mu.Lock()
			a.refreshing = false
			a.mu.Unlock()
		}()
	}
}

func (a *Accessory) handleRSSI(rssi, diff int) {
	if a.cfg.RSSI && (diff > 1 || diff < -1) {
		a.logger.Info("rssi", "rssi", rssi, "diff", diff)
	}

	lq := LinkQuality(rssi)
	a.mu.Lock()
	a.linkQ = lq
	a.mu.Unlock()
	if a.bridging.LinkQuality.UpdateValue(uint8(lq)) {
		a.emit(EventLinkQuality, map[string]interface{}{"link_quality": lq, "rssi": rssi})
	}
}

// Start opens the accessory's collaborators and runs the startup sequence:
// pairing, information sync, proxy construction and the initial refresh.
// With Remove configured it only removes the pairing. Per-step failures are
// logged, not returned.
func (a *Accessory) Start(ctx context.Context, t Transport) error {
	a.mu.Lock()
	p := a.peripheral
	if p == nil {
		a.mu.Unlock()
		return ErrNoPeripheral
	}
	if a.starting {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.starting = true
	a.mu.Unlock()

	db, err := t.OpenDatabase(ctx, p)
	if err != nil {
		a.mu.Lock()
		a.starting = false
		a.mu.Unlock()
		return fmt.Errorf("open database: %w", err)
	}
	exec := t.NewExecutor(p, db)
	accessor := t.NewAccessor(p, db, exec)
	subs := t.NewSubscriptionManager(p, db, exec)

	a.mu.Lock()
	a.transport = t
	a.db = db
	a.exec = exec
	a.accessor = accessor
	a.subs = subs
	a.mu.Unlock()

	if a.cfg.Remove {
		a.removePairing(ctx)
		return nil
	}

	a.ensurePaired(ctx)
	a.syncAccessoryInfo(ctx)
	a.buildProxies(ctx)
	a.RefreshAll(ctx)

	a.mu.Lock()
	a.started = true
	a.mu.Unlock()
	a.logger.Info("accessory started")
	a.emit(EventAccessoryStarted, nil)
	return nil
}

func (a *Accessory) ensurePaired(ctx context.Context) {
	p := a.Peripheral()
	if p.IsPaired() || a.cfg.Remove {
		return
	}
	a.logger.Info("device is not paired yet, pairing now")

	ok := a.retry.Run(ctx, func(n int) bool {
		if a.pairOnce(ctx) {
			return true
		}
		a.logger.Warn("pairing attempt failed", "attempt", n)
		return false
	})
	if !ok {
		a.logger.Error("pairing failed, halting", "attempts", a.retry.Attempts)
		return
	}
	a.logger.Info("pairing completed")
}

func (a *Accessory) pairOnce(ctx context.Context) bool {
	a.mu.Lock()
	t, db, exec, p := a.transport, a.db, a.exec, a.peripheral
	a.mu.Unlock()

	res, err := exec.Run(ctx, t.PairSetup(db, a.cfg.PIN))
	if err != nil {
		a.logger.Warn("pairing failed", "err", err)
		return false
	}
	rec, ok := res.(*hap.PairingRecord)
	if !ok || rec == nil {
		a.logger.Warn("pairing failed", "err", fmt.Errorf("unexpected pair-setup result %T", res))
		return false
	}

	db.SetPairing(rec)
	if err := db.Save(); err != nil {
		a.logger.Error("persist pairing", "err", err)
	}
	if err := p.Disconnect(); err != nil {
		a.logger.Warn("disconnect after pairing", "err", err)
	}
	a.emit(EventPaired, map[string]interface{}{"accessory_pairing_id": rec.AccessoryPairingID})
	return true
}

func (a *Accessory) removePairing(ctx context.Context) {
	p := a.Peripheral()
	if !p.IsPaired() || !a.cfg.Remove {
		return
	}
	a.logger.Info("removing pairing")

	ok := a.retry.Run(ctx, func(n int) bool {
		if a.unpairOnce(ctx) {
			return true
		}
		a.logger.Warn("remove pairing attempt failed", "attempt", n)
		return false
	})
	if !ok {
		a.logger.Error("remove pairing failed, aborting", "attempts", a.retry.Attempts)
		return
	}
	a.logger.Info("pairing removed")
}

func (a *Accessory) unpairOnce(ctx context.Context) bool {
	a.mu.Lock()
	t, db, exec, p := a.transport, a.db, a.exec, a.peripheral
	a.mu.Unlock()

	if _, err := exec.Run(ctx, t.RemovePairing(db)); err != nil {
		a.logger.Warn("remove pairing failed", "err", err)
		return false
	}

	db.SetPairing(nil)
	if err := db.Delete(); err != nil {
		a.logger.Error("delete accessory record", "err", err)
	}
	if err := p.Disconnect(); err != nil {
		a.logger.Warn("disconnect after remove pairing", "err", err)
	}
	a.emit(EventUnpaired, nil)
	return true
}

func (a *Accessory) syncAccessoryInfo(ctx context.Context) {
	a.mu.Lock()
	db, accessor := a.db, a.accessor
	a.mu.Unlock()

	targets := []struct {
		char   uuid.UUID
		target *host.Characteristic
	}{
		{hap.CharManufacturer, a.info.Manufacturer},
		{hap.CharModel, a.info.Model},
		{hap.CharName, a.info.Name},
		{hap.CharSerialNumber, a.info.SerialNumber},
		{hap.CharFirmwareRevision, a.info.FirmwareRevision},
		{hap.CharHardwareRevision, a.info.HardwareRevision},
	}
	for _, t := range targets {
		meta, ok := db.Characteristic(hap.Address{Service: hap.ServiceAccessoryInformation, Characteristic: t.char})
		if !ok {
			continue
		}
		v, err := accessor.Read(ctx, meta)
		if err != nil {
			a.logger.Warn("read accessory information", "characteristic", t.target.Description, "err", err)
			continue
		}
		t.target.UpdateValue(v)
		a.logger.Info("retrieved accessory information", "characteristic", t.target.Description, "value", v)
	}
}

func (a *Accessory) buildProxies(ctx context.Context) {
	a.mu.Lock()
	db, accessor, subs := a.db, a.accessor, a.subs
	a.mu.Unlock()

	var proxies []*ProxyService
	for _, meta := range db.Services() {
		if Blacklisted(meta.UUID) {
			continue
		}
		a.logger.Info("publishing service via proxy", "service", hap.ShortName(meta.UUID))
		ps := newProxyService(meta, accessor)
		for _, c := range ps.Proxies() {
			a.wireProxy(ctx, subs, c)
		}
		proxies = append(proxies, ps)
	}

	reg := NewRegistry(a.fixedServices(), proxies)
	a.mu.Lock()
	a.registry = reg
	a.mu.Unlock()
}

func (a *Accessory) wireProxy(ctx context.Context, subs SubscriptionManager, c *ProxyCharacteristic) {
	addr := c.Address()
	c.OnChange(func(_ *host.Characteristic, _, v any) {
		a.emit(EventCharacteristicValue, map[string]interface{}{
			"service":        hap.ShortName(addr.Service),
			"characteristic": hap.ShortName(addr.Characteristic),
			"value":          v,
		})
	})

	if subs == nil || !c.Metadata().Notifies() {
		return
	}
	err := subs.Subscribe(ctx, c.Metadata(), func() {
		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			return
		}
		a.bg.Add(1)
		a.mu.Unlock()
		go func() {
			defer a.bg.Done()
			if err := c.Refresh(a.ctx); err != nil {
				a.logger.Warn("refresh after notification", "characteristic", addr.String(), "err", err)
			}
		}()
	})
	if err != nil {
		a.logger.Warn("subscribe", "characteristic", addr.String(), "err", err)
	}
}

// RefreshAll pulls every refreshable proxy value from the device in turn.
// A failing read is logged and skipped.
func (a *Accessory) RefreshAll(ctx context.Context) {
	a.mu.Lock()
	reg := a.registry
	a.mu.Unlock()

	for _, c := range reg.Refreshable() {
		if ctx.Err() != nil {
			return
		}
		if err := c.Refresh(ctx); err != nil {
			a.logger.Warn("refresh characteristic", "characteristic", c.Address().String(), "err", err)
		}
	}
}

// Services returns the fixed services followed by the proxies.
func (a *Accessory) Services() []*host.Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.Services()
}

// Proxies returns the proxy services.
func (a *Accessory) Proxies() []*ProxyService {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.Proxies()
}

// Characteristic resolves an address to its proxy characteristic.
func (a *Accessory) Characteristic(addr hap.Address) (*ProxyCharacteristic, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.Lookup(addr)
}

// ReadCharacteristic reads a proxied characteristic from the device.
func (a *Accessory) ReadCharacteristic(ctx context.Context, addr hap.Address) (any, error) {
	c, err := a.proxy(addr)
	if err != nil {
		return nil, err
	}
	return c.Get(ctx)
}

// WriteCharacteristic writes v to a proxied characteristic.
func (a *Accessory) WriteCharacteristic(ctx context.Context, addr hap.Address, v any) error {
	c, err := a.proxy(addr)
	if err != nil {
		return err
	}
	return c.Set(ctx, v)
}

func (a *Accessory) proxy(addr hap.Address) (*ProxyCharacteristic, error) {
	if !a.Started() {
		return nil, ErrNotStarted
	}
	c, ok := a.Characteristic(addr)
	if !ok {
		return nil, fmt.Errorf("%s: %w", addr, ErrUnknownCharacteristic)
	}
	return c, nil
}

// Identify writes true to the accessory's Identify characteristic and
// reports the outcome through done.
func (a *Accessory) Identify(ctx context.Context, done func(error)) {
	a.logger.Info("identify requested")
	a.mu.Lock()
	db, accessor := a.db, a.accessor
	a.mu.Unlock()

	if db == nil {
		done(ErrNoDatabase)
		return
	}
	meta, ok := db.Characteristic(identifyAddr)
	if !ok {
		a.logger.Warn("identify characteristic not found")
		done(ErrIdentifyUnavailable)
		return
	}

	// Some firmware reports Identify as tlv8.
	meta.Format = hap.FormatBool

	err := accessor.Write(ctx, meta, true)
	if err != nil {
		a.logger.Warn("identify failed", "err", err)
	} else {
		a.emit(EventIdentify, nil)
	}
	done(err)
}

// Close stops liveness tracking and background refreshes and closes the
// subscription manager.
func (a *Accessory) Close() {
	a.mu.Lock()
	w, subs := a.watcher, a.subs
	a.closed = true
	a.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	a.cancel()
	a.bg.Wait()
	if subs != nil {
		if err := subs.Close(); err != nil {
			a.logger.Warn("close subscriptions", "err", err)
		}
	}
}

func (a *Accessory) emit(typ string, data map[string]interface{}) {
	if data == nil {
		data = make(map[string]interface{})
	}
	data["accessory"] = a.cfg.Name
	a.events.Emit(Event{Type: typ, Data: data})
}
