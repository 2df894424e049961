// Package hap holds the HomeKit Accessory Protocol vocabulary shared by the
// bridge: UUIDs, characteristic formats and metadata, TLV8 and the procedure
// contract executed over a BLE session.
package hap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// baseSuffix is the HAP base UUID every Apple-defined type is derived from.
const baseSuffix = "-0000-1000-8000-0026BB765291"

// ShortUUID expands an Apple-defined short type (e.g. 0x3E) into its full UUID.
func ShortUUID(short uint32) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("%08X%s", short, baseSuffix))
}

// ParseUUID accepts a short HAP type ("3E"), a compact 32-digit hex string or
// a canonical UUID.
func ParseUUID(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if len(s) > 0 && len(s) <= 8 {
		n, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return uuid.Nil, fmt.Errorf("parse short uuid %q: %w", s, err)
		}
		return ShortUUID(uint32(n)), nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse uuid %q: %w", s, err)
	}
	return id, nil
}

// IsAppleDefined reports whether id is derived from the HAP base UUID.
func IsAppleDefined(id uuid.UUID) bool {
	return strings.HasSuffix(strings.ToUpper(id.String()), baseSuffix)
}

// ShortName returns the short hex form of an Apple-defined UUID ("3E") or the
// canonical string for custom types.
func ShortName(id uuid.UUID) string {
	if !IsAppleDefined(id) {
		return id.String()
	}
	n, err := strconv.ParseUint(id.String()[:8], 16, 32)
	if err != nil {
		return id.String()
	}
	return strings.ToUpper(strconv.FormatUint(n, 16))
}

// Services.
var (
	ServiceAccessoryInformation = ShortUUID(0x3E)
	ServiceBridgingState        = ShortUUID(0x62)
	ServicePairing              = ShortUUID(0x55)
	ServiceProtocolInformation  = ShortUUID(0xA2)
)

// Characteristics.
var (
	CharIdentify            = ShortUUID(0x14)
	CharManufacturer        = ShortUUID(0x20)
	CharModel               = ShortUUID(0x21)
	CharName                = ShortUUID(0x23)
	CharSerialNumber        = ShortUUID(0x30)
	CharFirmwareRevision    = ShortUUID(0x52)
	CharHardwareRevision    = ShortUUID(0x53)
	CharAccessoryIdentifier = ShortUUID(0x57)
	CharReachable           = ShortUUID(0x63)
	CharLinkQuality         = ShortUUID(0x9C)
	CharCategory            = ShortUUID(0xA3)

	CharPairSetup       = ShortUUID(0x4C)
	CharPairVerify      = ShortUUID(0x4E)
	CharPairingFeatures = ShortUUID(0x4F)
	CharPairings        = ShortUUID(0x50)
)

// ServiceInstanceID is the GATT characteristic carrying a HAP service's
// instance ID; it is transport plumbing and never a HAP characteristic.
var ServiceInstanceID = uuid.MustParse("E604E95D-A759-4817-87D3-AA005083A0D1")
