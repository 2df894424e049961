package hapble

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/brutella/hap/tlv8"
	"github.com/google/uuid"

	"hap-ble-bridge/internal/hap"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeChar answers HAP-BLE PDUs like an accessory characteristic. A char
// with raw set is a plain GATT characteristic instead.
type fakeChar struct {
	id     uuid.UUID
	iid    uint16
	sig    []byte
	raw    []byte
	status uint8
	mtu    int

	mu      sync.Mutex
	value   []byte
	op, tid uint8
	reqIID  uint16
	want    int
	pending []byte
	out     [][]byte
	notify  func([]byte)
	writes  int
}

func (c *fakeChar) UUID() uuid.UUID { return c.id }

func (c *fakeChar) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.raw != nil {
		return 0, errors.New("not writable")
	}
	c.writes++
	if p[0]&ctrlContinuation == 0 {
		c.op, c.tid = p[1], p[2]
		c.reqIID = binary.LittleEndian.Uint16(p[3:5])
		c.want, c.pending = 0, nil
		if len(p) > 5 {
			c.want = int(binary.LittleEndian.Uint16(p[5:7]))
			c.pending = append([]byte(nil), p[7:]...)
		}
	} else {
		c.pending = append(c.pending, p[2:]...)
	}
	if len(c.pending) >= c.want {
		c.handle()
	}
	return len(p), nil
}

func (c *fakeChar) handle() {
	if c.reqIID != c.iid {
		c.respond(hap.StatusInvalidInstanceID, nil)
		return
	}
	if c.status != hap.StatusSuccess {
		c.respond(c.status, nil)
		return
	}
	switch c.op {
	case OpSignatureRead:
		c.respond(hap.StatusSuccess, c.sig)
	case OpRead:
		body, _ := tlv8.Marshal(valueParams{Value: c.value})
		c.respond(hap.StatusSuccess, body)
	case OpWrite:
		var params writeResponseParams
		if err := tlv8.Unmarshal(c.pending, &params); err != nil {
			c.respond(hap.StatusInvalidRequest, nil)
			return
		}
		c.value = params.Value
		if params.ReturnResponse == 1 {
			echo := append([]byte("ack:"), params.Value...)
			body, _ := tlv8.Marshal(valueParams{Value: echo})
			c.respond(hap.StatusSuccess, body)
			return
		}
		c.respond(hap.StatusSuccess, nil)
	default:
		c.respond(hap.StatusUnsupportedPDU, nil)
	}
}

func (c *fakeChar) respond(status uint8, body []byte) {
	mtu := c.mtu
	if mtu == 0 {
		mtu = defaultMTU
	}
	size := mtu - 3
	first := []byte{ctrlResponse, c.tid, status}
	if len(body) == 0 {
		c.out = append(c.out, first)
		return
	}
	first = binary.LittleEndian.AppendUint16(first, uint16(len(body)))
	n := min(len(body), size-len(first))
	c.out = append(c.out, append(first, body[:n]...))
	body = body[n:]
	for len(body) > 0 {
		n := min(len(body), size-2)
		c.out = append(c.out, append([]byte{ctrlResponse | ctrlContinuation, c.tid}, body[:n]...))
		body = body[n:]
	}
}

func (c *fakeChar) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.raw != nil {
		return copy(p, c.raw), nil
	}
	if len(c.out) == 0 {
		return 0, errors.New("no pending response")
	}
	frag := c.out[0]
	c.out = c.out[1:]
	return copy(p, frag), nil
}

func (c *fakeChar) EnableNotifications(cb func([]byte)) error {
	c.mu.Lock()
	c.notify = cb
	c.mu.Unlock()
	return nil
}

func (c *fakeChar) indicate() {
	c.mu.Lock()
	cb := c.notify
	c.mu.Unlock()
	if cb != nil {
		cb(nil)
	}
}

func (c *fakeChar) current() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func instanceChar(iid uint16) *fakeChar {
	return &fakeChar{id: hap.ServiceInstanceID, raw: binary.LittleEndian.AppendUint16(nil, iid)}
}

// signature is the accessory side of a signature read response.
type signature struct {
	CharType     []byte `tlv8:"4"`
	ServiceType  []byte `tlv8:"6"`
	ServiceIID   []byte `tlv8:"7"`
	Properties   []byte `tlv8:"10"`
	Presentation []byte `tlv8:"12"`
}

func sigBody(svc, char uuid.UUID, svcIID uint16, gattFormat uint8, props uint16) []byte {
	body, err := tlv8.Marshal(signature{
		CharType:     hap.UUIDToLE(char),
		ServiceType:  hap.UUIDToLE(svc),
		ServiceIID:   binary.LittleEndian.AppendUint16(nil, svcIID),
		Properties:   binary.LittleEndian.AppendUint16(nil, props),
		Presentation: []byte{gattFormat, 0, 0x00, 0x27, 1, 0, 0},
	})
	if err != nil {
		panic(err)
	}
	return body
}

var (
	svcLightbulb = hap.ShortUUID(0x43)
	charOn       = hap.ShortUUID(0x25)
	svcGAP       = uuid.MustParse("00001800-0000-1000-8000-00805f9b34fb")
	charGAPName  = uuid.MustParse("00002a00-0000-1000-8000-00805f9b34fb")
)

// fakeAccessory is a lamp with information, pairing and lightbulb services.
type fakeAccessory struct {
	name, on, pairSetup *fakeChar
	services            []GATTService
}

func newFakeAccessory() *fakeAccessory {
	info := hap.ServiceAccessoryInformation
	a := &fakeAccessory{
		name: &fakeChar{
			id: hap.CharName, iid: 2, value: []byte("Lamp"),
			sig: sigBody(info, hap.CharName, 1, 0x19, hap.PropPairedRead),
		},
		on: &fakeChar{
			id: charOn, iid: 11, value: []byte{0},
			sig: sigBody(svcLightbulb, charOn, 10, 0x01, hap.PropPairedRead|hap.PropPairedWrite|hap.PropEventsConnected|hap.PropEventsDisconnected),
		},
		pairSetup: &fakeChar{
			id: hap.CharPairSetup, iid: 21,
			sig: sigBody(hap.ServicePairing, hap.CharPairSetup, 20, 0x1B, hap.PropRead|hap.PropWrite),
		},
	}
	identify := &fakeChar{
		id: hap.CharIdentify, iid: 3,
		sig: sigBody(info, hap.CharIdentify, 1, 0x01, hap.PropPairedWrite),
	}
	a.services = []GATTService{
		{UUID: svcGAP, Characteristics: []GATTCharacteristic{&fakeChar{id: charGAPName, raw: []byte("Lamp")}}},
		{UUID: info, Characteristics: []GATTCharacteristic{instanceChar(1), a.name, identify}},
		{UUID: hap.ServicePairing, Characteristics: []GATTCharacteristic{instanceChar(20), a.pairSetup}},
		{UUID: svcLightbulb, Characteristics: []GATTCharacteristic{instanceChar(10), a.on}},
	}
	return a
}

type fakeLink struct {
	acc          *fakeAccessory
	mtu          int
	disconnected bool
}

func (l *fakeLink) Discover() ([]GATTService, error) { return l.acc.services, nil }

func (l *fakeLink) MTU() int {
	if l.mtu == 0 {
		return defaultMTU
	}
	return l.mtu
}

func (l *fakeLink) Disconnect() error {
	l.disconnected = true
	return nil
}

type fakeDialer struct {
	acc   *fakeAccessory
	mu    sync.Mutex
	dials int
	links []*fakeLink
	err   error
}

func (d *fakeDialer) Dial(context.Context, string) (Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	l := &fakeLink{acc: d.acc}
	d.links = append(d.links, l)
	return l, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// advPayload builds a HAP advertisement payload.
func advPayload(paired bool, gsn uint16, configNum uint8) []byte {
	flags := uint8(0x01)
	if paired {
		flags = 0
	}
	b := []byte{hapAdvType, 0x31, flags, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x05, 0x00}
	b = binary.LittleEndian.AppendUint16(b, gsn)
	return append(b, configNum, 0x02)
}
