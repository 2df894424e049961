package hap

import (
	"context"
	"fmt"
)

// Channel moves raw characteristic values over one accessory session.
type Channel interface {
	// ReadValue returns the raw value body of c.
	ReadValue(ctx context.Context, c *Characteristic) ([]byte, error)
	// WriteValue writes value to c. When response is true the accessory's
	// write-response payload is returned.
	WriteValue(ctx context.Context, c *Characteristic, value []byte, response bool) ([]byte, error)
}

// Procedure is one stateful protocol operation run against a peripheral.
type Procedure interface {
	Name() string
	Execute(ctx context.Context, ch Channel) (any, error)
}

// HAP-BLE PDU status codes.
const (
	StatusSuccess           uint8 = 0x00
	StatusUnsupportedPDU    uint8 = 0x01
	StatusMaxProcedures     uint8 = 0x02
	StatusInsufficientAuthz uint8 = 0x03
	StatusInvalidInstanceID uint8 = 0x04
	StatusInsufficientAuthn uint8 = 0x05
	StatusInvalidRequest    uint8 = 0x06
)

var statusNames = map[uint8]string{
	StatusUnsupportedPDU:    "unsupported PDU",
	StatusMaxProcedures:     "max procedures",
	StatusInsufficientAuthz: "insufficient authorization",
	StatusInvalidInstanceID: "invalid instance ID",
	StatusInsufficientAuthn: "insufficient authentication",
	StatusInvalidRequest:    "invalid request",
}

// StatusError is a non-success PDU status returned by an accessory.
type StatusError struct {
	Status uint8
}

func (e *StatusError) Error() string {
	if name, ok := statusNames[e.Status]; ok {
		return "hap: " + name
	}
	return fmt.Sprintf("hap: status 0x%02X", e.Status)
}
