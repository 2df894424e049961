package hapble

import (
	"context"

	"github.com/google/uuid"
)

// GATTCharacteristic is one discovered characteristic on a connected link.
type GATTCharacteristic interface {
	UUID() uuid.UUID
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	EnableNotifications(cb func(value []byte)) error
}

// GATTService groups the characteristics of one primary service.
type GATTService struct {
	UUID            uuid.UUID
	Characteristics []GATTCharacteristic
}

// Link is a connected GATT client session with one peripheral.
type Link interface {
	Discover() ([]GATTService, error)
	MTU() int
	Disconnect() error
}

// Dialer opens links to peripherals by address.
type Dialer interface {
	Dial(ctx context.Context, address string) (Link, error)
}
