package hapble

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/brutella/hap/tlv8"

	"hap-ble-bridge/internal/hap"
)

const maxFragmentRead = 512

// Session exchanges HAP-BLE PDUs over one connected link. It implements
// hap.Channel.
type Session struct {
	link     Link
	mtu      int
	services []GATTService
	chars    map[hap.Address]GATTCharacteristic

	mu  sync.Mutex
	tid uint8
}

// NewSession discovers the link's GATT layout and returns a session over it.
func NewSession(link Link) (*Session, error) {
	services, err := link.Discover()
	if err != nil {
		return nil, fmt.Errorf("hapble: discover: %w", err)
	}
	s := &Session{
		link:     link,
		mtu:      link.MTU(),
		services: services,
		chars:    make(map[hap.Address]GATTCharacteristic),
	}
	for _, svc := range services {
		for _, c := range svc.Characteristics {
			addr := hap.Address{Service: svc.UUID, Characteristic: c.UUID()}
			if _, dup := s.chars[addr]; !dup {
				s.chars[addr] = c
			}
		}
	}
	return s, nil
}

func (s *Session) gatt(c *hap.Characteristic) (GATTCharacteristic, error) {
	g, ok := s.chars[c.Address]
	if !ok {
		return nil, fmt.Errorf("hapble: characteristic %s not on link", c.Address)
	}
	return g, nil
}

// transact writes one request PDU and reads back its response body.
func (s *Session) transact(ctx context.Context, c *hap.Characteristic, op uint8, body []byte) ([]byte, error) {
	g, err := s.gatt(c)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tid++
	req := Request{Opcode: op, TID: s.tid, IID: c.IID, Body: body}

	for _, frag := range req.Fragments(s.mtu) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := g.Write(frag); err != nil {
			return nil, fmt.Errorf("hapble: write %s: %w", c.Address, err)
		}
	}

	var asm responseAssembler
	buf := make([]byte, maxFragmentRead)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := g.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("hapble: read %s: %w", c.Address, err)
		}
		done, err := asm.Add(buf[:n])
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}

	resp := asm.Response()
	if resp.TID != req.TID {
		return nil, fmt.Errorf("hapble: response TID %d, want %d", resp.TID, req.TID)
	}
	if resp.Status != hap.StatusSuccess {
		return nil, &hap.StatusError{Status: resp.Status}
	}
	return resp.Body, nil
}

// ReadValue implements hap.Channel.
func (s *Session) ReadValue(ctx context.Context, c *hap.Characteristic) ([]byte, error) {
	body, err := s.transact(ctx, c, OpRead, nil)
	if err != nil {
		return nil, err
	}
	return valueParam(body)
}

// WriteValue implements hap.Channel.
func (s *Session) WriteValue(ctx context.Context, c *hap.Characteristic, value []byte, response bool) ([]byte, error) {
	var params any = valueParams{Value: value}
	if response {
		params = writeResponseParams{Value: value, ReturnResponse: 1}
	}
	req, err := tlv8.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("hapble: write params: %w", err)
	}
	body, err := s.transact(ctx, c, OpWrite, req)
	if err != nil || !response {
		return nil, err
	}
	return valueParam(body)
}

func valueParam(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var params valueParams
	if err := tlv8.Unmarshal(body, &params); err != nil {
		return nil, fmt.Errorf("hapble: response params: %w", err)
	}
	return params.Value, nil
}

// Subscribe enables GATT indications on c. HAP indications carry no value;
// onChange is called for each one.
func (s *Session) Subscribe(c *hap.Characteristic, onChange func()) error {
	g, err := s.gatt(c)
	if err != nil {
		return err
	}
	return g.EnableNotifications(func([]byte) { onChange() })
}

// Discover builds the accessory's HAP database from the GATT layout. Only
// services exposing a service instance ID are HAP services; characteristic
// instance IDs follow the service's in discovery order.
func (s *Session) Discover(ctx context.Context) ([]*hap.Service, error) {
	var out []*hap.Service
	for _, gs := range s.services {
		var (
			svcIID uint16
			found  bool
			chars  []GATTCharacteristic
		)
		for _, g := range gs.Characteristics {
			if g.UUID() != hap.ServiceInstanceID {
				chars = append(chars, g)
				continue
			}
			buf := make([]byte, 2)
			n, err := g.Read(buf)
			if err != nil {
				return nil, fmt.Errorf("hapble: read service instance id of %s: %w", hap.ShortName(gs.UUID), err)
			}
			if n == 2 {
				svcIID, found = binary.LittleEndian.Uint16(buf), true
			}
		}
		if !found {
			continue
		}

		svc := &hap.Service{UUID: gs.UUID, IID: svcIID}
		for i, g := range chars {
			c := &hap.Characteristic{
				Address: hap.Address{Service: gs.UUID, Characteristic: g.UUID()},
				IID:     svcIID + 1 + uint16(i),
			}
			body, err := s.transact(ctx, c, OpSignatureRead, nil)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			sig, err := hap.ParseSignature(body)
			if err != nil {
				continue
			}
			c.Format = sig.Format
			c.Properties = sig.Properties
			c.Unit = sig.Unit
			c.Description = sig.Description
			svc.Characteristics = append(svc.Characteristics, c)
		}
		out = append(out, svc)
	}
	return out, nil
}

// Close disconnects the underlying link.
func (s *Session) Close() error {
	return s.link.Disconnect()
}
