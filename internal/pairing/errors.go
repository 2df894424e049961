package pairing

import "fmt"

// Pairing messages. Requests carry only the items their step defines.
type (
	startRequest struct {
		State  byte `tlv8:"6"`
		Method byte `tlv8:"0"`
	}
	verifyRequest struct {
		State     byte   `tlv8:"6"`
		PublicKey []byte `tlv8:"3"`
		Proof     []byte `tlv8:"4"`
	}
	exchangeRequest struct {
		State         byte   `tlv8:"6"`
		EncryptedData []byte `tlv8:"5"`
	}
	removeRequest struct {
		State      byte   `tlv8:"6"`
		Method     byte   `tlv8:"0"`
		Identifier string `tlv8:"1"`
	}

	// response holds every item an accessory may answer with.
	response struct {
		State         byte   `tlv8:"6"`
		Error         byte   `tlv8:"7"`
		Identifier    string `tlv8:"1"`
		Salt          []byte `tlv8:"2"`
		PublicKey     []byte `tlv8:"3"`
		Proof         []byte `tlv8:"4"`
		EncryptedData []byte `tlv8:"5"`
	}

	// credentials is the encrypted sub-TLV of M5 and M6.
	credentials struct {
		Identifier string `tlv8:"1"`
		PublicKey  []byte `tlv8:"3"`
		Signature  []byte `tlv8:"10"`
	}
)

// Pairing methods.
const (
	MethodPairSetup     uint8 = 0x00
	MethodPairVerify    uint8 = 0x02
	MethodAddPairing    uint8 = 0x03
	MethodRemovePairing uint8 = 0x04
	MethodListPairings  uint8 = 0x05
)

// Accessory-reported error codes.
const (
	ErrCodeUnknown        uint8 = 0x01
	ErrCodeAuthentication uint8 = 0x02
	ErrCodeBackoff        uint8 = 0x03
	ErrCodeMaxPeers       uint8 = 0x04
	ErrCodeMaxTries       uint8 = 0x05
	ErrCodeUnavailable    uint8 = 0x06
	ErrCodeBusy           uint8 = 0x07
)

var errCodeNames = map[uint8]string{
	ErrCodeUnknown:        "unknown",
	ErrCodeAuthentication: "authentication failed",
	ErrCodeBackoff:        "back off",
	ErrCodeMaxPeers:       "max peers",
	ErrCodeMaxTries:       "max tries",
	ErrCodeUnavailable:    "unavailable",
	ErrCodeBusy:           "busy",
}

// Error is an error code returned by the accessory in a pairing response.
type Error struct {
	State uint8
	Code  uint8
}

func (e *Error) Error() string {
	name, ok := errCodeNames[e.Code]
	if !ok {
		name = fmt.Sprintf("code 0x%02X", e.Code)
	}
	return fmt.Sprintf("pairing: accessory error at M%d: %s", e.State, name)
}
