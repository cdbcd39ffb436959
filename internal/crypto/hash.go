package crypto

import (
	stdcrypto "crypto"
	"fmt"
)

// HashID identifies a hash function used for pre-hashing messages before
// ECDSA or RSA signing. Ed25519 and ML-DSA hash internally and take the
// full message.
type HashID string

const (
	HashSHA256 HashID = "sha-256"
	HashSHA384 HashID = "sha-384"
	HashSHA512 HashID = "sha-512"
)

// ParseHash parses a string into a HashID. The empty string is valid and
// means "use the algorithm default".
func ParseHash(s string) (HashID, error) {
	switch HashID(s) {
	case "", HashSHA256, HashSHA384, HashSHA512:
		return HashID(s), nil
	default:
		return "", fmt.Errorf("unknown hash: %s", s)
	}
}

// Func returns the stdlib crypto.Hash for this HashID.
func (h HashID) Func() (stdcrypto.Hash, error) {
	switch h {
	case HashSHA256:
		return stdcrypto.SHA256, nil
	case HashSHA384:
		return stdcrypto.SHA384, nil
	case HashSHA512:
		return stdcrypto.SHA512, nil
	default:
		return 0, fmt.Errorf("unknown hash: %s", h)
	}
}

// Digest hashes message with this hash function.
func (h HashID) Digest(message []byte) ([]byte, error) {
	fn, err := h.Func()
	if err != nil {
		return nil, err
	}
	hh := fn.New()
	hh.Write(message)
	return hh.Sum(nil), nil
}
