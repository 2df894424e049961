package hapble

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HAP-BLE PDU opcodes.
const (
	OpSignatureRead        uint8 = 0x01
	OpWrite                uint8 = 0x02
	OpRead                 uint8 = 0x03
	OpTimedWrite           uint8 = 0x04
	OpExecuteWrite         uint8 = 0x05
	OpServiceSignatureRead uint8 = 0x06
	OpConfiguration        uint8 = 0x07
	OpProtocolConfig       uint8 = 0x08
)

// Control field bits.
const (
	ctrlRequest      uint8 = 0x00
	ctrlResponse     uint8 = 0x02
	ctrlContinuation uint8 = 0x80
)

// valueParams is the parameter TLV of read responses and plain writes.
type valueParams struct {
	Value []byte `tlv8:"1"`
}

// writeResponseParams is a write that asks for a value in the response.
type writeResponseParams struct {
	Value          []byte `tlv8:"1"`
	ReturnResponse byte   `tlv8:"9"`
}

const defaultMTU = 23

var errShortFragment = errors.New("hapble: short pdu fragment")

// Request is one controller-to-accessory PDU.
type Request struct {
	Opcode uint8
	TID    uint8
	IID    uint16
	Body   []byte
}

// Fragments serializes the request into GATT writes of at most mtu-3 bytes.
func (r Request) Fragments(mtu int) [][]byte {
	if mtu < defaultMTU {
		mtu = defaultMTU
	}
	size := mtu - 3

	first := []byte{ctrlRequest, r.Opcode, r.TID, 0, 0}
	binary.LittleEndian.PutUint16(first[3:], r.IID)
	if len(r.Body) > 0 {
		first = binary.LittleEndian.AppendUint16(first, uint16(len(r.Body)))
	}

	rest := r.Body
	n := min(len(rest), size-len(first))
	frags := [][]byte{append(first, rest[:n]...)}
	rest = rest[n:]

	for len(rest) > 0 {
		n := min(len(rest), size-2)
		frag := append([]byte{ctrlRequest | ctrlContinuation, r.TID}, rest[:n]...)
		frags = append(frags, frag)
		rest = rest[n:]
	}
	return frags
}

// Response is one accessory-to-controller PDU.
type Response struct {
	TID    uint8
	Status uint8
	Body   []byte
}

// responseAssembler joins response fragments read back from the accessory.
type responseAssembler struct {
	resp    Response
	want    int
	started bool
}

// Add consumes one fragment and reports whether the response is complete.
func (a *responseAssembler) Add(frag []byte) (bool, error) {
	if !a.started {
		if len(frag) < 3 {
			return false, errShortFragment
		}
		if frag[0]&ctrlContinuation != 0 || frag[0]&0x0E != ctrlResponse {
			return false, fmt.Errorf("hapble: unexpected control field 0x%02X", frag[0])
		}
		a.started = true
		a.resp.TID = frag[1]
		a.resp.Status = frag[2]
		if len(frag) == 3 {
			return true, nil
		}
		if len(frag) < 5 {
			return false, errShortFragment
		}
		a.want = int(binary.LittleEndian.Uint16(frag[3:5]))
		a.resp.Body = append(a.resp.Body, frag[5:]...)
		return len(a.resp.Body) >= a.want, nil
	}

	if len(frag) < 2 {
		return false, errShortFragment
	}
	if frag[0]&ctrlContinuation == 0 {
		return false, fmt.Errorf("hapble: expected continuation, got control 0x%02X", frag[0])
	}
	if frag[1] != a.resp.TID {
		return false, fmt.Errorf("hapble: continuation TID %d, want %d", frag[1], a.resp.TID)
	}
	a.resp.Body = append(a.resp.Body, frag[2:]...)
	return len(a.resp.Body) >= a.want, nil
}

// Response returns the assembled response, trimmed to the declared length.
func (a *responseAssembler) Response() Response {
	r := a.resp
	if len(r.Body) > a.want {
		r.Body = r.Body[:a.want]
	}
	return r
}
