// Package pairing implements the HAP controller side of pair-setup and
// remove-pairing over a characteristic channel.
package pairing

import (
	"context"
	"crypto/ed25519"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"

	"github.com/brutella/hap/tlv8"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"hap-ble-bridge/internal/hap"
)

var (
	// ErrInvalidProof means the accessory's SRP proof did not verify,
	// usually because the setup code is wrong.
	ErrInvalidProof = errors.New("pairing: accessory proof mismatch")
	// ErrInvalidSignature means the accessory's long-term key signature did
	// not verify.
	ErrInvalidSignature = errors.New("pairing: accessory signature invalid")
)

// Setup runs the six-message pair-setup exchange and returns the resulting
// *hap.PairingRecord.
type Setup struct {
	char *hap.Characteristic
	id   *Identity
	pin  string
}

// NewSetup builds a pair-setup procedure that writes to the pair-setup
// characteristic char using the setup code pin (XXX-XX-XXX).
func NewSetup(char *hap.Characteristic, id *Identity, pin string) *Setup {
	return &Setup{char: char, id: id, pin: pin}
}

// Name implements hap.Procedure.
func (s *Setup) Name() string { return "pair-setup" }

// Execute implements hap.Procedure.
func (s *Setup) Execute(ctx context.Context, ch hap.Channel) (any, error) {
	group, err := newSRP()
	if err != nil {
		return nil, err
	}
	client := group.NewClientSession([]byte(srpUsername), []byte(s.pin))

	// M1 -> M2: start request, salt and accessory public key back.
	m2, err := exchange(ctx, ch, s.char, startRequest{State: 1, Method: MethodPairSetup}, 2)
	if err != nil {
		return nil, err
	}
	if len(m2.Salt) == 0 || len(m2.PublicKey) == 0 {
		return nil, errors.New("pairing: M2 missing salt or public key")
	}
	K, err := client.ComputeKey(m2.Salt, m2.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("pairing: srp: %w", err)
	}

	// M3 -> M4: proofs.
	m4, err := exchange(ctx, ch, s.char, verifyRequest{
		State:     3,
		PublicKey: client.GetA(),
		Proof:     client.ComputeAuthenticator(),
	}, 4)
	if err != nil {
		return nil, err
	}
	if !client.VerifyServerAuthenticator(m4.Proof) {
		return nil, ErrInvalidProof
	}

	// M5 -> M6: long-term key exchange under the session key.
	sessionKey, err := deriveKey(K, "Pair-Setup-Encrypt-Salt", "Pair-Setup-Encrypt-Info")
	if err != nil {
		return nil, err
	}
	controllerX, err := deriveKey(K, "Pair-Setup-Controller-Sign-Salt", "Pair-Setup-Controller-Sign-Info")
	if err != nil {
		return nil, err
	}
	info := concat(controllerX, []byte(s.id.PairingID), s.id.LTPK)
	sub, err := tlv8.Marshal(credentials{
		Identifier: s.id.PairingID,
		PublicKey:  s.id.LTPK,
		Signature:  ed25519.Sign(s.id.LTSK, info),
	})
	if err != nil {
		return nil, fmt.Errorf("pairing: M5 sub-tlv: %w", err)
	}
	sealed, err := seal(sessionKey, "PS-Msg05", sub)
	if err != nil {
		return nil, err
	}

	m6, err := exchange(ctx, ch, s.char, exchangeRequest{State: 5, EncryptedData: sealed}, 6)
	if err != nil {
		return nil, err
	}
	if len(m6.EncryptedData) == 0 {
		return nil, errors.New("pairing: M6 missing encrypted data")
	}
	plain, err := open(sessionKey, "PS-Msg06", m6.EncryptedData)
	if err != nil {
		return nil, err
	}
	var acc credentials
	if err := tlv8.Unmarshal(plain, &acc); err != nil {
		return nil, fmt.Errorf("pairing: M6 sub-tlv: %w", err)
	}
	if acc.Identifier == "" || len(acc.Signature) == 0 || len(acc.PublicKey) != ed25519.PublicKeySize {
		return nil, errors.New("pairing: M6 incomplete accessory credentials")
	}

	accessoryX, err := deriveKey(K, "Pair-Setup-Accessory-Sign-Salt", "Pair-Setup-Accessory-Sign-Info")
	if err != nil {
		return nil, err
	}
	if !ed25519.Verify(ed25519.PublicKey(acc.PublicKey), concat(accessoryX, []byte(acc.Identifier), acc.PublicKey), acc.Signature) {
		return nil, ErrInvalidSignature
	}

	return &hap.PairingRecord{
		ControllerID:       s.id.PairingID,
		AccessoryPairingID: acc.Identifier,
		AccessoryLTPK:      append([]byte(nil), acc.PublicKey...),
	}, nil
}

// exchange writes one request and checks the response for an accessory
// error and the expected state.
func exchange(ctx context.Context, ch hap.Channel, char *hap.Characteristic, req any, want uint8) (*response, error) {
	body, err := tlv8.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("pairing: M%d: %w", want-1, err)
	}
	body, err = ch.WriteValue(ctx, char, body, true)
	if err != nil {
		return nil, fmt.Errorf("pairing: M%d: %w", want-1, err)
	}
	var resp response
	if err := tlv8.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("pairing: M%d: %w", want, err)
	}
	if resp.Error != 0 {
		return nil, &Error{State: want, Code: resp.Error}
	}
	if resp.State != want {
		return nil, fmt.Errorf("pairing: expected state M%d, got M%d", want, resp.State)
	}
	return &resp, nil
}

func deriveKey(secret []byte, salt, info string) ([]byte, error) {
	r := hkdf.New(sha512.New, secret, []byte(salt), []byte(info))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("pairing: hkdf %s: %w", info, err)
	}
	return key, nil
}

func nonce(label string) []byte {
	n := make([]byte, chacha20poly1305.NonceSize)
	copy(n[4:], label)
	return n
}

func seal(key []byte, label string, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("pairing: aead: %w", err)
	}
	return aead.Seal(nil, nonce(label), plaintext, nil), nil
}

func open(key []byte, label string, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("pairing: aead: %w", err)
	}
	out, err := aead.Open(nil, nonce(label), ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("pairing: decrypt %s: %w", label, err)
	}
	return out, nil
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
