package crypto

import (
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// SignMessage signs a message with the private key.
//
// For ECDSA and RSA the message is pre-hashed with hash (or the algorithm
// default when hash is empty). Ed25519 and ML-DSA sign the full message
// and reject an explicit hash.
func SignMessage(random io.Reader, alg AlgorithmID, priv any, hash HashID, message []byte) ([]byte, error) {
	if random == nil {
		random = rand.Reader
	}

	switch key := priv.(type) {
	case *ecdsa.PrivateKey:
		digest, err := resolveHash(alg, hash).Digest(message)
		if err != nil {
			return nil, err
		}
		return ecdsa.SignASN1(random, key, digest)

	case ed25519.PrivateKey:
		if hash != "" {
			return nil, fmt.Errorf("ed25519 does not take a hash parameter")
		}
		return ed25519.Sign(key, message), nil

	case *rsa.PrivateKey:
		h := resolveHash(alg, hash)
		fn, err := h.Func()
		if err != nil {
			return nil, err
		}
		digest, err := h.Digest(message)
		if err != nil {
			return nil, err
		}
		return rsa.SignPKCS1v15(random, key, fn, digest)

	// ML-DSA (FIPS 204) hashes internally; the opts hash must be 0.
	case *mldsa44.PrivateKey:
		if hash != "" {
			return nil, fmt.Errorf("ml-dsa does not take a hash parameter")
		}
		return key.Sign(random, message, stdcrypto.Hash(0))
	case *mldsa65.PrivateKey:
		if hash != "" {
			return nil, fmt.Errorf("ml-dsa does not take a hash parameter")
		}
		return key.Sign(random, message, stdcrypto.Hash(0))
	case *mldsa87.PrivateKey:
		if hash != "" {
			return nil, fmt.Errorf("ml-dsa does not take a hash parameter")
		}
		return key.Sign(random, message, stdcrypto.Hash(0))

	default:
		return nil, fmt.Errorf("unsupported private key type: %T", priv)
	}
}

// VerifyMessage verifies a signature over a message.
//
// The hash parameter follows the same rules as SignMessage. A malformed
// request (unknown hash, mismatched key type) returns an error; a valid
// request with a bad signature returns (false, nil).
func VerifyMessage(alg AlgorithmID, pub any, hash HashID, message, signature []byte) (bool, error) {
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		digest, err := resolveHash(alg, hash).Digest(message)
		if err != nil {
			return false, err
		}
		return ecdsa.VerifyASN1(key, digest, signature), nil

	case ed25519.PublicKey:
		if hash != "" {
			return false, fmt.Errorf("ed25519 does not take a hash parameter")
		}
		return ed25519.Verify(key, message, signature), nil

	case *rsa.PublicKey:
		h := resolveHash(alg, hash)
		fn, err := h.Func()
		if err != nil {
			return false, err
		}
		digest, err := h.Digest(message)
		if err != nil {
			return false, err
		}
		return rsa.VerifyPKCS1v15(key, fn, digest, signature) == nil, nil

	case *mldsa44.PublicKey:
		if hash != "" {
			return false, fmt.Errorf("ml-dsa does not take a hash parameter")
		}
		return mldsa44.Verify(key, message, nil, signature), nil
	case *mldsa65.PublicKey:
		if hash != "" {
			return false, fmt.Errorf("ml-dsa does not take a hash parameter")
		}
		return mldsa65.Verify(key, message, nil, signature), nil
	case *mldsa87.PublicKey:
		if hash != "" {
			return false, fmt.Errorf("ml-dsa does not take a hash parameter")
		}
		return mldsa87.Verify(key, message, nil, signature), nil

	default:
		return false, fmt.Errorf("unsupported public key type: %T", pub)
	}
}

// resolveHash picks the explicit hash if given, else the algorithm default.
func resolveHash(alg AlgorithmID, hash HashID) HashID {
	if hash != "" {
		return hash
	}
	return alg.DefaultHash()
}
