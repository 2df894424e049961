// Package hapdb keeps the discovered GATT database and pairing credentials of
// one accessory, addressable by (service, characteristic) UUID pairs.
package hapdb

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"hap-ble-bridge/internal/hap"
	"hap-ble-bridge/internal/store"
)

// Database is the addressable view of one persisted accessory record.
type Database struct {
	st store.Store

	mu    sync.RWMutex
	rec   *store.Accessory
	index map[hap.Address]*hap.Characteristic
}

// Open loads the record for id, or starts an empty one that is written on
// the first Save.
func Open(st store.Store, id, name string) (*Database, error) {
	rec, err := st.GetAccessory(id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rec = &store.Accessory{ID: id, Name: name, Discovered: time.Now()}
	case err != nil:
		return nil, fmt.Errorf("load accessory %s: %w", id, err)
	}
	if name != "" {
		rec.Name = name
	}
	d := &Database{st: st, rec: rec}
	d.reindex()
	return d, nil
}

// reindex rebuilds the address index. Caller holds mu or owns d exclusively.
// The first characteristic registered for an address wins.
func (d *Database) reindex() {
	d.index = make(map[hap.Address]*hap.Characteristic)
	for _, s := range d.rec.Services {
		for _, c := range s.Characteristics {
			if _, dup := d.index[c.Address]; !dup {
				d.index[c.Address] = c
			}
		}
	}
}

// ID returns the peripheral identifier the record is keyed by.
func (d *Database) ID() string {
	return d.rec.ID
}

// Discovered reports whether a GATT database has been recorded.
func (d *Database) Discovered() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rec.Services) > 0
}

// Services returns the discovered services.
func (d *Database) Services() []*hap.Service {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rec.Services
}

// SetServices replaces the discovered services and the address index.
func (d *Database) SetServices(services []*hap.Service, configNum uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rec.Services = services
	d.rec.ConfigNum = configNum
	d.reindex()
}

// ConfigNum returns the configuration number the services were discovered at.
func (d *Database) ConfigNum() uint8 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rec.ConfigNum
}

// Characteristic resolves addr to its metadata. The returned pointer is the
// stored metadata itself.
func (d *Database) Characteristic(addr hap.Address) (*hap.Characteristic, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.index[addr]
	return c, ok
}

// Pairing returns the stored pairing record, or nil.
func (d *Database) Pairing() *hap.PairingRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rec.Pairing
}

// SetPairing replaces the pairing record in memory. Call Save to persist.
func (d *Database) SetPairing(p *hap.PairingRecord) {
	d.mu.Lock()
	d.rec.Pairing = p
	d.mu.Unlock()
}

// Save persists the record.
func (d *Database) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.st.SaveAccessory(d.rec); err != nil {
		return fmt.Errorf("save accessory %s: %w", d.rec.ID, err)
	}
	return nil
}

// Delete removes the persisted record.
func (d *Database) Delete() error {
	if err := d.st.DeleteAccessory(d.ID()); err != nil {
		return fmt.Errorf("delete accessory %s: %w", d.ID(), err)
	}
	return nil
}
