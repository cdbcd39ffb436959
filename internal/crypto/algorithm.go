// Package crypto provides the cryptographic primitives shared by the key
// registry and the backend adapters. It supports classical algorithms
// (ECDSA, Ed25519, RSA) and post-quantum algorithms (ML-DSA) via the
// cloudflare/circl library.
package crypto

import (
	"fmt"
)

// AlgorithmID identifies a cryptographic algorithm.
type AlgorithmID string

// Classical signature algorithms.
const (
	AlgECDSAP256 AlgorithmID = "ecdsa-p256"
	AlgECDSAP384 AlgorithmID = "ecdsa-p384"
	AlgECDSAP521 AlgorithmID = "ecdsa-p521"
	AlgEd25519   AlgorithmID = "ed25519"
	AlgRSA2048   AlgorithmID = "rsa-2048"
	AlgRSA4096   AlgorithmID = "rsa-4096"
)

// Post-quantum signature algorithms (FIPS 204 ML-DSA).
const (
	AlgMLDSA44 AlgorithmID = "ml-dsa-44"
	AlgMLDSA65 AlgorithmID = "ml-dsa-65"
	AlgMLDSA87 AlgorithmID = "ml-dsa-87"
)

// AlgorithmType categorizes algorithms.
type AlgorithmType int

const (
	TypeUnknown AlgorithmType = iota
	TypeClassicalSignature
	TypePQCSignature
)

// algorithmInfo holds metadata about an algorithm.
type algorithmInfo struct {
	Type        AlgorithmType
	KeySizeBits int
	DefaultHash HashID
	Description string
}

// algorithms maps AlgorithmID to its metadata.
var algorithms = map[AlgorithmID]algorithmInfo{
	AlgECDSAP256: {
		Type:        TypeClassicalSignature,
		KeySizeBits: 256,
		DefaultHash: HashSHA256,
		Description: "ECDSA with P-256 curve",
	},
	AlgECDSAP384: {
		Type:        TypeClassicalSignature,
		KeySizeBits: 384,
		DefaultHash: HashSHA384,
		Description: "ECDSA with P-384 curve",
	},
	AlgECDSAP521: {
		Type:        TypeClassicalSignature,
		KeySizeBits: 521,
		DefaultHash: HashSHA512,
		Description: "ECDSA with P-521 curve",
	},
	AlgEd25519: {
		Type:        TypeClassicalSignature,
		KeySizeBits: 256,
		Description: "Ed25519 (EdDSA with Curve25519)",
	},
	AlgRSA2048: {
		Type:        TypeClassicalSignature,
		KeySizeBits: 2048,
		DefaultHash: HashSHA256,
		Description: "RSA 2048-bit (legacy)",
	},
	AlgRSA4096: {
		Type:        TypeClassicalSignature,
		KeySizeBits: 4096,
		DefaultHash: HashSHA256,
		Description: "RSA 4096-bit",
	},
	AlgMLDSA44: {
		Type:        TypePQCSignature,
		Description: "ML-DSA-44 (NIST Level 1)",
	},
	AlgMLDSA65: {
		Type:        TypePQCSignature,
		Description: "ML-DSA-65 (NIST Level 3)",
	},
	AlgMLDSA87: {
		Type:        TypePQCSignature,
		Description: "ML-DSA-87 (NIST Level 5)",
	},
}

// IsValid returns true if the algorithm is recognized.
func (a AlgorithmID) IsValid() bool {
	_, ok := algorithms[a]
	return ok
}

// Type returns the algorithm type.
func (a AlgorithmID) Type() AlgorithmType {
	if info, ok := algorithms[a]; ok {
		return info.Type
	}
	return TypeUnknown
}

// IsPQC returns true for post-quantum algorithms.
func (a AlgorithmID) IsPQC() bool {
	return a.Type() == TypePQCSignature
}

// DefaultHash returns the hash used when sign parameters do not name one.
// Returns "" for algorithms that hash internally (Ed25519, ML-DSA).
func (a AlgorithmID) DefaultHash() HashID {
	if info, ok := algorithms[a]; ok {
		return info.DefaultHash
	}
	return ""
}

// Description returns a human-readable description of the algorithm.
func (a AlgorithmID) Description() string {
	if info, ok := algorithms[a]; ok {
		return info.Description
	}
	return "Unknown algorithm"
}

// String returns the algorithm identifier as a string.
func (a AlgorithmID) String() string {
	return string(a)
}

// ParseAlgorithm parses a string into an AlgorithmID.
// Returns an error if the algorithm is not recognized.
func ParseAlgorithm(s string) (AlgorithmID, error) {
	alg := AlgorithmID(s)
	if !alg.IsValid() {
		return "", fmt.Errorf("unknown algorithm: %s", s)
	}
	return alg, nil
}

// AllAlgorithms returns a list of all supported algorithm IDs.
func AllAlgorithms() []AlgorithmID {
	result := make([]AlgorithmID, 0, len(algorithms))
	for alg := range algorithms {
		result = append(result, alg)
	}
	return result
}

// KeyUsage restricts what a key may be used for.
type KeyUsage string

const (
	UsageSign   KeyUsage = "sign"
	UsageVerify KeyUsage = "verify"
)

// ParseKeyUsage parses a string into a KeyUsage.
func ParseKeyUsage(s string) (KeyUsage, error) {
	switch KeyUsage(s) {
	case UsageSign, UsageVerify:
		return KeyUsage(s), nil
	default:
		return "", fmt.Errorf("unknown key usage: %s", s)
	}
}

// Descriptor describes the algorithm bound to a key at creation time.
// It is immutable for the lifetime of the key.
type Descriptor struct {
	Algorithm AlgorithmID `json:"algorithm" cbor:"1,keyasint"`
	Usages    []KeyUsage  `json:"usages"    cbor:"2,keyasint"`
}

// Validate checks that the descriptor names a known signature algorithm
// and only recognized usages.
func (d Descriptor) Validate() error {
	if !d.Algorithm.IsValid() {
		return fmt.Errorf("unknown algorithm: %s", d.Algorithm)
	}
	if len(d.Usages) == 0 {
		return fmt.Errorf("at least one key usage is required")
	}
	for _, u := range d.Usages {
		if _, err := ParseKeyUsage(string(u)); err != nil {
			return err
		}
	}
	return nil
}

// AllowsUsage reports whether the descriptor permits the given usage.
func (d Descriptor) AllowsUsage(u KeyUsage) bool {
	for _, got := range d.Usages {
		if got == u {
			return true
		}
	}
	return false
}
