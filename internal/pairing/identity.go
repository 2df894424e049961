package pairing

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"hap-ble-bridge/internal/store"
)

// Identity is the bridge's long-term controller key pair.
type Identity struct {
	PairingID string
	LTPK      ed25519.PublicKey
	LTSK      ed25519.PrivateKey
}

// NewIdentity generates a fresh controller identity.
func NewIdentity() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate controller key: %w", err)
	}
	return &Identity{
		PairingID: uuid.NewString(),
		LTPK:      pub,
		LTSK:      priv,
	}, nil
}

// LoadIdentity returns the stored controller identity, creating and saving
// one on first use.
func LoadIdentity(st store.Store) (*Identity, error) {
	rec, err := st.GetIdentity()
	if err == nil {
		if len(rec.LTSK) != ed25519.PrivateKeySize || len(rec.LTPK) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("stored controller identity %s is malformed", rec.PairingID)
		}
		return &Identity{
			PairingID: rec.PairingID,
			LTPK:      ed25519.PublicKey(rec.LTPK),
			LTSK:      ed25519.PrivateKey(rec.LTSK),
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load controller identity: %w", err)
	}

	id, err := NewIdentity()
	if err != nil {
		return nil, err
	}
	if err := st.SaveIdentity(&store.Identity{PairingID: id.PairingID, LTPK: id.LTPK, LTSK: id.LTSK}); err != nil {
		return nil, fmt.Errorf("save controller identity: %w", err)
	}
	return id, nil
}
