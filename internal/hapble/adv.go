package hapble

import (
	"encoding/binary"
	"fmt"
	"net"
)

const (
	appleCompanyID = 0x004C
	hapAdvType     = 0x06
	advMinLength   = 15
)

// Advertisement is the HAP payload of an accessory's manufacturer data.
type Advertisement struct {
	StatusFlags   uint8
	DeviceID      string
	Category      uint16
	GSN           uint16
	ConfigNum     uint8
	CompatVersion uint8
	SetupHash     []byte
}

// Paired reports whether the accessory already has a controller.
func (a Advertisement) Paired() bool {
	return a.StatusFlags&0x01 == 0
}

// ParseAdvertisement decodes the manufacturer data of company 0x004C. The
// payload starts at the type byte, after the company identifier.
func ParseAdvertisement(data []byte) (Advertisement, error) {
	if len(data) < advMinLength {
		return Advertisement{}, fmt.Errorf("hapble: advertisement too short (%d bytes)", len(data))
	}
	if data[0] != hapAdvType {
		return Advertisement{}, fmt.Errorf("hapble: not a HAP advertisement (type 0x%02X)", data[0])
	}
	adv := Advertisement{
		StatusFlags:   data[2],
		DeviceID:      net.HardwareAddr(data[3:9]).String(),
		Category:      binary.LittleEndian.Uint16(data[9:11]),
		GSN:           binary.LittleEndian.Uint16(data[11:13]),
		ConfigNum:     data[13],
		CompatVersion: data[14],
	}
	if len(data) >= advMinLength+4 {
		adv.SetupHash = append([]byte(nil), data[15:19]...)
	}
	return adv, nil
}
