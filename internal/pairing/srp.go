package pairing

import (
	"crypto/sha512"
	"fmt"

	"github.com/tadglines/go-pkgs/crypto/srp"
)

const (
	srpGroup    = "rfc5054.3072"
	srpUsername = "Pair-Setup"
)

// srpKDF is the RFC 2945 private key x = H(s | H(I ":" P)) with I fixed to
// the pair-setup username.
func srpKDF(salt, password []byte) []byte {
	h := sha512.New()
	h.Write([]byte(srpUsername))
	h.Write([]byte(":"))
	h.Write(password)
	inner := h.Sum(nil)

	h.Reset()
	h.Write(salt)
	h.Write(inner)
	return h.Sum(nil)
}

func newSRP() (*srp.SRP, error) {
	s, err := srp.NewSRP(srpGroup, sha512.New, srpKDF)
	if err != nil {
		return nil, fmt.Errorf("pairing: srp: %w", err)
	}
	return s, nil
}
