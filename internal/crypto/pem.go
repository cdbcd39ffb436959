package crypto

import (
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// MarshalPrivateKey encodes a private key as a PEM block.
// Classical keys use PKCS#8; ML-DSA keys use a typed raw-bytes block.
func MarshalPrivateKey(priv stdcrypto.PrivateKey) ([]byte, error) {
	var block *pem.Block

	switch key := priv.(type) {
	case *ecdsa.PrivateKey, ed25519.PrivateKey, *rsa.PrivateKey:
		der, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal private key: %w", err)
		}
		block = &pem.Block{Type: "PRIVATE KEY", Bytes: der}

	case *mldsa44.PrivateKey:
		block = &pem.Block{Type: "ML-DSA-44 PRIVATE KEY", Bytes: key.Bytes()}
	case *mldsa65.PrivateKey:
		block = &pem.Block{Type: "ML-DSA-65 PRIVATE KEY", Bytes: key.Bytes()}
	case *mldsa87.PrivateKey:
		block = &pem.Block{Type: "ML-DSA-87 PRIVATE KEY", Bytes: key.Bytes()}

	default:
		return nil, fmt.Errorf("unsupported private key type: %T", priv)
	}

	return pem.EncodeToMemory(block), nil
}

// ParsePrivateKey decodes a PEM-encoded private key produced by
// MarshalPrivateKey.
func ParsePrivateKey(data []byte) (stdcrypto.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	switch block.Type {
	case "PRIVATE KEY":
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 key: %w", err)
		}
		return priv, nil

	case "ML-DSA-44 PRIVATE KEY":
		var priv mldsa44.PrivateKey
		if err := priv.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-44 key: %w", err)
		}
		return &priv, nil

	case "ML-DSA-65 PRIVATE KEY":
		var priv mldsa65.PrivateKey
		if err := priv.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-65 key: %w", err)
		}
		return &priv, nil

	case "ML-DSA-87 PRIVATE KEY":
		var priv mldsa87.PrivateKey
		if err := priv.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-87 key: %w", err)
		}
		return &priv, nil

	default:
		return nil, fmt.Errorf("unknown PEM type: %s", block.Type)
	}
}

// MarshalPublicKey encodes a public key as a PEM block.
// Classical keys use PKIX; ML-DSA keys use a typed raw-bytes block.
func MarshalPublicKey(pub stdcrypto.PublicKey) ([]byte, error) {
	var block *pem.Block

	switch key := pub.(type) {
	case *ecdsa.PublicKey, ed25519.PublicKey, *rsa.PublicKey:
		der, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal public key: %w", err)
		}
		block = &pem.Block{Type: "PUBLIC KEY", Bytes: der}

	case *mldsa44.PublicKey:
		block = &pem.Block{Type: "ML-DSA-44 PUBLIC KEY", Bytes: key.Bytes()}
	case *mldsa65.PublicKey:
		block = &pem.Block{Type: "ML-DSA-65 PUBLIC KEY", Bytes: key.Bytes()}
	case *mldsa87.PublicKey:
		block = &pem.Block{Type: "ML-DSA-87 PUBLIC KEY", Bytes: key.Bytes()}

	default:
		return nil, fmt.Errorf("unsupported public key type: %T", pub)
	}

	return pem.EncodeToMemory(block), nil
}

// ParsePublicKey decodes a PEM-encoded public key produced by
// MarshalPublicKey.
func ParsePublicKey(data []byte) (stdcrypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	switch block.Type {
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKIX key: %w", err)
		}
		return pub, nil

	case "ML-DSA-44 PUBLIC KEY":
		var pub mldsa44.PublicKey
		if err := pub.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-44 key: %w", err)
		}
		return &pub, nil

	case "ML-DSA-65 PUBLIC KEY":
		var pub mldsa65.PublicKey
		if err := pub.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-65 key: %w", err)
		}
		return &pub, nil

	case "ML-DSA-87 PUBLIC KEY":
		var pub mldsa87.PublicKey
		if err := pub.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-87 key: %w", err)
		}
		return &pub, nil

	default:
		return nil, fmt.Errorf("unknown PEM type: %s", block.Type)
	}
}
