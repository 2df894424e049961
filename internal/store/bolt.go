package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketAccessories = []byte("accessories")
	bucketIdentity    = []byte("identity")
	keyController     = []byte("controller")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketAccessories, bucketIdentity} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveAccessory(acc *Accessory) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putAccessory(tx, acc)
	})
}

func putAccessory(tx *bolt.Tx, acc *Accessory) error {
	b := tx.Bucket(bucketAccessories)
	if b == nil {
		return fmt.Errorf("bucket %q not found", bucketAccessories)
	}
	acc.UpdatedAt = time.Now()
	data, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	return b.Put([]byte(acc.ID), data)
}

func getAccessory(tx *bolt.Tx, id string) (*Accessory, error) {
	b := tx.Bucket(bucketAccessories)
	if b == nil {
		return nil, fmt.Errorf("bucket %q not found", bucketAccessories)
	}
	data := b.Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("accessory %s: %w", id, ErrNotFound)
	}
	var acc Accessory
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *BoltStore) GetAccessory(id string) (*Accessory, error) {
	var acc *Accessory
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		acc, err = getAccessory(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *BoltStore) UpdateAccessory(id string, fn func(acc *Accessory) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		acc, err := getAccessory(tx, id)
		if err != nil {
			return err
		}
		if err := fn(acc); err != nil {
			return err
		}
		acc.ID = id
		return putAccessory(tx, acc)
	})
}

func (s *BoltStore) DeleteAccessory(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccessories)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketAccessories)
		}
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) ListAccessories() ([]*Accessory, error) {
	var accessories []*Accessory
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccessories)
		if b == nil {
			return nil // no bucket = no accessories
		}
		accessories = make([]*Accessory, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var acc Accessory
			if err := json.Unmarshal(v, &acc); err != nil {
				return err
			}
			accessories = append(accessories, &acc)
			return nil
		})
	})
	return accessories, err
}

func (s *BoltStore) SaveIdentity(id *Identity) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIdentity)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketIdentity)
		}
		// Use internal storage struct to persist the secret key.
		data, err := json.Marshal(identityStorage{
			PairingID: id.PairingID,
			LTPK:      id.LTPK,
			LTSK:      id.LTSK,
		})
		if err != nil {
			return err
		}
		return b.Put(keyController, data)
	})
}

func (s *BoltStore) GetIdentity() (*Identity, error) {
	var id Identity
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIdentity)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketIdentity)
		}
		data := b.Get(keyController)
		if data == nil {
			return fmt.Errorf("controller identity: %w", ErrNotFound)
		}
		var st identityStorage
		if err := json.Unmarshal(data, &st); err != nil {
			return err
		}
		id = Identity{PairingID: st.PairingID, LTPK: st.LTPK, LTSK: st.LTSK}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
