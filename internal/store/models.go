package store

import (
	"time"

	"hap-ble-bridge/internal/hap"
)

// Accessory is the persisted record of one BLE accessory: its discovered
// GATT database and, once paired, its pairing credentials.
type Accessory struct {
	ID         string             `json:"id"`
	Name       string             `json:"name,omitempty"`
	Services   []*hap.Service     `json:"services,omitempty"`
	Pairing    *hap.PairingRecord `json:"pairing,omitempty"`
	ConfigNum  uint8              `json:"config_num,omitempty"`
	Discovered time.Time          `json:"discovered"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Identity is the bridge's controller identity used for pairing.
// LTSK is hidden from API/JSON serialization via json:"-".
type Identity struct {
	PairingID string `json:"pairing_id"`
	LTPK      []byte `json:"ltpk"`
	LTSK      []byte `json:"-"`
}

// identityStorage is the internal struct used for DB serialization,
// preserving the secret key on disk.
type identityStorage struct {
	PairingID string `json:"pairing_id"`
	LTPK      []byte `json:"ltpk"`
	LTSK      []byte `json:"ltsk,omitempty"`
}
