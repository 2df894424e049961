package hap

import (
	"fmt"

	"github.com/google/uuid"
)

// Address identifies one characteristic within an accessory.
type Address struct {
	Service        uuid.UUID `json:"service"`
	Characteristic uuid.UUID `json:"characteristic"`
}

func (a Address) String() string {
	return fmt.Sprintf("%s/%s", ShortName(a.Service), ShortName(a.Characteristic))
}

// ParseAddress builds an Address from two UUID strings in any ParseUUID form.
func ParseAddress(service, characteristic string) (Address, error) {
	s, err := ParseUUID(service)
	if err != nil {
		return Address{}, err
	}
	c, err := ParseUUID(characteristic)
	if err != nil {
		return Address{}, err
	}
	return Address{Service: s, Characteristic: c}, nil
}

// Characteristic property bits from the HAP-BLE signature.
const (
	PropRead               uint16 = 0x0001
	PropWrite              uint16 = 0x0002
	PropAdditionalAuth     uint16 = 0x0004
	PropTimedWrite         uint16 = 0x0008
	PropPairedRead         uint16 = 0x0010
	PropPairedWrite        uint16 = 0x0020
	PropHidden             uint16 = 0x0040
	PropEventsConnected    uint16 = 0x0080
	PropEventsDisconnected uint16 = 0x0100
	PropBroadcast          uint16 = 0x0200
)

// Characteristic is the discovered metadata for one characteristic.
type Characteristic struct {
	Address     Address `json:"address"`
	IID         uint16  `json:"iid"`
	Format      Format  `json:"format"`
	Properties  uint16  `json:"properties"`
	Unit        string  `json:"unit,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Readable reports whether the characteristic accepts reads.
func (c *Characteristic) Readable() bool {
	return c.Properties&(PropRead|PropPairedRead) != 0
}

// Writable reports whether the characteristic accepts writes.
func (c *Characteristic) Writable() bool {
	return c.Properties&(PropWrite|PropPairedWrite) != 0
}

// Notifies reports whether the characteristic signals changes, either as
// connected events or through the advertisement.
func (c *Characteristic) Notifies() bool {
	return c.Properties&(PropEventsConnected|PropEventsDisconnected|PropBroadcast) != 0
}

// Service is the discovered metadata for one service.
type Service struct {
	UUID            uuid.UUID         `json:"uuid"`
	IID             uint16            `json:"iid"`
	Characteristics []*Characteristic `json:"characteristics"`
}

// PairingRecord is the credential material produced by pair-setup.
type PairingRecord struct {
	ControllerID       string `json:"controller_id"`
	AccessoryPairingID string `json:"accessory_pairing_id"`
	AccessoryLTPK      []byte `json:"accessory_ltpk"`
}
