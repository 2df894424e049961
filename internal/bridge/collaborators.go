package bridge

import (
	"context"

	"hap-ble-bridge/internal/hap"
)

// Database holds the discovered metadata and pairing credentials of one
// accessory.
type Database interface {
	Services() []*hap.Service
	Characteristic(addr hap.Address) (*hap.Characteristic, bool)
	Pairing() *hap.PairingRecord
	SetPairing(p *hap.PairingRecord)
	Save() error
	Delete() error
}

// Executor runs one protocol procedure at a time against a peripheral.
type Executor interface {
	Run(ctx context.Context, p hap.Procedure) (any, error)
}

// Accessor reads and writes single characteristic values.
type Accessor interface {
	Read(ctx context.Context, c *hap.Characteristic) (any, error)
	Write(ctx context.Context, c *hap.Characteristic, v any) error
}

// SubscriptionManager delivers characteristic change notifications.
type SubscriptionManager interface {
	// Subscribe calls notify whenever the accessory signals that c changed.
	// notify runs on the transport's goroutine and must not block.
	Subscribe(ctx context.Context, c *hap.Characteristic, notify func()) error
	Close() error
}

// Peripheral is the BLE device an accessory is bound to.
type Peripheral interface {
	ID() string
	Name() string
	IsPaired() bool
	// Category is the accessory category from the latest advertisement, or
	// 0 before one was decoded.
	Category() uint16
	Disconnect() error
	// OnRSSI registers a callback for signal-strength samples. diff is the
	// change against the previous sample.
	OnRSSI(fn func(rssi, diff int))
	OnManufacturerData(fn func(data []byte))
}

// Transport builds the per-accessory collaborators.
type Transport interface {
	OpenDatabase(ctx context.Context, p Peripheral) (Database, error)
	NewExecutor(p Peripheral, db Database) Executor
	NewAccessor(p Peripheral, db Database, exec Executor) Accessor
	NewSubscriptionManager(p Peripheral, db Database, exec Executor) SubscriptionManager
	PairSetup(db Database, pin string) hap.Procedure
	RemovePairing(db Database) hap.Procedure
}
