package hap

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/brutella/hap/tlv8"
	"github.com/google/uuid"
)

// signatureTLV is the body of a signature read response.
type signatureTLV struct {
	CharType     []byte `tlv8:"4"`
	ServiceType  []byte `tlv8:"6"`
	ServiceIID   []byte `tlv8:"7"`
	Properties   []byte `tlv8:"10"`
	Description  string `tlv8:"11"`
	Presentation []byte `tlv8:"12"`
}

var gattUnits = map[uint16]string{
	0x2700: "",
	0x2703: "seconds",
	0x272F: "celsius",
	0x2731: "lux",
	0x2763: "arcdegrees",
	0x27AD: "percentage",
}

// Signature is the decoded body of a characteristic signature read.
type Signature struct {
	CharType    uuid.UUID
	ServiceType uuid.UUID
	ServiceIID  uint16
	Properties  uint16
	Format      Format
	Unit        string
	Description string
}

// ParseSignature decodes a signature read response body.
func ParseSignature(body []byte) (*Signature, error) {
	var raw signatureTLV
	if err := tlv8.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}

	var err error
	sig := &Signature{Format: FormatData, Description: raw.Description}
	if len(raw.CharType) > 0 {
		if sig.CharType, err = UUIDFromLE(raw.CharType); err != nil {
			return nil, fmt.Errorf("characteristic type: %w", err)
		}
	}
	if len(raw.ServiceType) > 0 {
		if sig.ServiceType, err = UUIDFromLE(raw.ServiceType); err != nil {
			return nil, fmt.Errorf("service type: %w", err)
		}
	}
	if len(raw.ServiceIID) == 2 {
		sig.ServiceIID = binary.LittleEndian.Uint16(raw.ServiceIID)
	}
	if len(raw.Properties) == 2 {
		sig.Properties = binary.LittleEndian.Uint16(raw.Properties)
	}
	if v := raw.Presentation; len(v) > 0 {
		if len(v) != 7 {
			return nil, fmt.Errorf("presentation format: want 7 bytes, got %d", len(v))
		}
		if sig.Format, err = FormatFromGATT(v[0]); err != nil {
			return nil, err
		}
		sig.Unit = gattUnits[binary.LittleEndian.Uint16(v[2:4])]
	}
	return sig, nil
}

// UUIDFromLE converts a little-endian 128-bit BLE UUID into a uuid.UUID.
func UUIDFromLE(b []byte) (uuid.UUID, error) {
	if len(b) != 16 {
		return uuid.Nil, fmt.Errorf("hap: uuid must be 16 bytes, got %d", len(b))
	}
	be := slices.Clone(b)
	slices.Reverse(be)
	return uuid.FromBytes(be)
}

// UUIDToLE returns the little-endian wire form of id.
func UUIDToLE(id uuid.UUID) []byte {
	b := slices.Clone(id[:])
	slices.Reverse(b)
	return b
}
