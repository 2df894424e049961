// Package hapble carries HAP over Bluetooth LE: advertisement decoding, PDU
// framing and the per-accessory collaborators the bridge runs on.
package hapble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hap-ble-bridge/internal/bridge"
	"hap-ble-bridge/internal/hap"
	"hap-ble-bridge/internal/hapdb"
	"hap-ble-bridge/internal/pairing"
	"hap-ble-bridge/internal/store"
)

// ErrNoPairingService means the accessory database lacks the pairing
// characteristics.
var ErrNoPairingService = errors.New("hapble: accessory has no pairing service")

var (
	addrPairSetup = hap.Address{Service: hap.ServicePairing, Characteristic: hap.CharPairSetup}
	addrPairings  = hap.Address{Service: hap.ServicePairing, Characteristic: hap.CharPairings}
)

// Transport builds HAP-BLE collaborators backed by the persistent store.
type Transport struct {
	st     store.Store
	id     *pairing.Identity
	logger *slog.Logger
}

var _ bridge.Transport = (*Transport)(nil)

// NewTransport creates a transport pairing as the controller id.
func NewTransport(st store.Store, id *pairing.Identity, logger *slog.Logger) *Transport {
	return &Transport{st: st, id: id, logger: logger.With("component", "hapble")}
}

func (t *Transport) peripheral(bp bridge.Peripheral) (*Peripheral, error) {
	p, ok := bp.(*Peripheral)
	if !ok {
		return nil, fmt.Errorf("hapble: unsupported peripheral type %T", bp)
	}
	return p, nil
}

// OpenDatabase loads the stored database for p, rediscovering it when none
// is stored or the advertised configuration number moved.
func (t *Transport) OpenDatabase(ctx context.Context, bp bridge.Peripheral) (bridge.Database, error) {
	p, err := t.peripheral(bp)
	if err != nil {
		return nil, err
	}
	db, err := hapdb.Open(t.st, p.ID(), p.Name())
	if err != nil {
		return nil, err
	}

	adv := p.Advertisement()
	if db.Discovered() && db.ConfigNum() == adv.ConfigNum {
		return db, nil
	}

	t.logger.Info("discovering accessory database", "peripheral", p.ID(), "config_num", adv.ConfigNum)
	var services []*hap.Service
	err = p.exec.withSession(ctx, func(s *Session) error {
		var err error
		services, err = s.Discover(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", p.ID(), err)
	}
	db.SetServices(services, adv.ConfigNum)
	if err := db.Save(); err != nil {
		return nil, err
	}
	t.logger.Info("accessory database stored", "peripheral", p.ID(), "services", len(services))
	return db, nil
}

func (t *Transport) NewExecutor(bp bridge.Peripheral, _ bridge.Database) bridge.Executor {
	if p, err := t.peripheral(bp); err == nil {
		return p.exec
	}
	return nil
}

func (t *Transport) NewAccessor(_ bridge.Peripheral, _ bridge.Database, exec bridge.Executor) bridge.Accessor {
	return &Accessor{exec: exec}
}

func (t *Transport) NewSubscriptionManager(bp bridge.Peripheral, _ bridge.Database, _ bridge.Executor) bridge.SubscriptionManager {
	p, err := t.peripheral(bp)
	if err != nil {
		return nil
	}
	return newSubscriptions(p, t.logger.With("peripheral", p.ID()))
}

func (t *Transport) PairSetup(db bridge.Database, pin string) hap.Procedure {
	c, ok := db.Characteristic(addrPairSetup)
	if !ok {
		return failedProcedure{name: "pair-setup", err: ErrNoPairingService}
	}
	return pairing.NewSetup(c, t.id, pin)
}

func (t *Transport) RemovePairing(db bridge.Database) hap.Procedure {
	c, ok := db.Characteristic(addrPairings)
	if !ok {
		return failedProcedure{name: "remove-pairing", err: ErrNoPairingService}
	}
	controller := t.id.PairingID
	if rec := db.Pairing(); rec != nil && rec.ControllerID != "" {
		controller = rec.ControllerID
	}
	return pairing.NewRemove(c, controller)
}
