package crypto

import (
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// KeyPair holds a public/private key pair.
type KeyPair struct {
	Algorithm  AlgorithmID
	PrivateKey stdcrypto.PrivateKey
	PublicKey  stdcrypto.PublicKey
}

// GenerateKeyPair generates a new key pair for the specified algorithm.
//
// Supported algorithms:
//   - Classical: ecdsa-p256, ecdsa-p384, ecdsa-p521, ed25519, rsa-2048, rsa-4096
//   - PQC: ml-dsa-44, ml-dsa-65, ml-dsa-87
func GenerateKeyPair(alg AlgorithmID) (*KeyPair, error) {
	return GenerateKeyPairWithRand(rand.Reader, alg)
}

// GenerateKeyPairWithRand generates a key pair using the provided random source.
// This is useful for testing with deterministic randomness.
func GenerateKeyPairWithRand(random io.Reader, alg AlgorithmID) (*KeyPair, error) {
	if !alg.IsValid() {
		return nil, fmt.Errorf("unsupported algorithm: %s", alg)
	}

	var priv stdcrypto.PrivateKey
	var pub stdcrypto.PublicKey
	var err error

	switch alg {
	case AlgECDSAP256:
		priv, pub, err = generateECDSA(random, elliptic.P256())
	case AlgECDSAP384:
		priv, pub, err = generateECDSA(random, elliptic.P384())
	case AlgECDSAP521:
		priv, pub, err = generateECDSA(random, elliptic.P521())

	case AlgEd25519:
		priv, pub, err = generateEd25519(random)

	case AlgRSA2048:
		priv, pub, err = generateRSA(random, 2048)
	case AlgRSA4096:
		priv, pub, err = generateRSA(random, 4096)

	case AlgMLDSA44:
		var p *mldsa44.PublicKey
		var k *mldsa44.PrivateKey
		p, k, err = mldsa44.GenerateKey(random)
		priv, pub = k, p
	case AlgMLDSA65:
		var p *mldsa65.PublicKey
		var k *mldsa65.PrivateKey
		p, k, err = mldsa65.GenerateKey(random)
		priv, pub = k, p
	case AlgMLDSA87:
		var p *mldsa87.PublicKey
		var k *mldsa87.PrivateKey
		p, k, err = mldsa87.GenerateKey(random)
		priv, pub = k, p

	default:
		return nil, fmt.Errorf("key generation not implemented for: %s", alg)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", alg, err)
	}

	return &KeyPair{
		Algorithm:  alg,
		PrivateKey: priv,
		PublicKey:  pub,
	}, nil
}

// generateECDSA generates an ECDSA key pair on the specified curve.
func generateECDSA(random io.Reader, curve elliptic.Curve) (stdcrypto.PrivateKey, stdcrypto.PublicKey, error) {
	priv, err := ecdsa.GenerateKey(curve, random)
	if err != nil {
		return nil, nil, err
	}
	return priv, &priv.PublicKey, nil
}

// generateEd25519 generates an Ed25519 key pair.
func generateEd25519(random io.Reader) (stdcrypto.PrivateKey, stdcrypto.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(random)
	if err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}

// generateRSA generates an RSA key pair with the specified bit size.
func generateRSA(random io.Reader, bits int) (stdcrypto.PrivateKey, stdcrypto.PublicKey, error) {
	priv, err := rsa.GenerateKey(random, bits)
	if err != nil {
		return nil, nil, err
	}
	return priv, &priv.PublicKey, nil
}

// AlgorithmOf returns the AlgorithmID for a private key, or "" if the key
// type is not recognized.
func AlgorithmOf(priv stdcrypto.PrivateKey) AlgorithmID {
	switch k := priv.(type) {
	case *ecdsa.PrivateKey:
		switch k.Curve.Params().BitSize {
		case 256:
			return AlgECDSAP256
		case 384:
			return AlgECDSAP384
		case 521:
			return AlgECDSAP521
		}
	case ed25519.PrivateKey:
		return AlgEd25519
	case *rsa.PrivateKey:
		if k.N.BitLen() <= 2048 {
			return AlgRSA2048
		}
		return AlgRSA4096
	case *mldsa44.PrivateKey:
		return AlgMLDSA44
	case *mldsa65.PrivateKey:
		return AlgMLDSA65
	case *mldsa87.PrivateKey:
		return AlgMLDSA87
	}
	return ""
}

// PublicKeyOf returns the public half of a private key.
func PublicKeyOf(priv stdcrypto.PrivateKey) (stdcrypto.PublicKey, error) {
	signer, ok := priv.(stdcrypto.Signer)
	if !ok {
		return nil, fmt.Errorf("private key type %T has no public key", priv)
	}
	return signer.Public(), nil
}

// RawPublicKey returns the fixed-size encoding of an ML-DSA public key.
func RawPublicKey(pub stdcrypto.PublicKey) ([]byte, error) {
	switch k := pub.(type) {
	case *mldsa44.PublicKey:
		return k.Bytes(), nil
	case *mldsa65.PublicKey:
		return k.Bytes(), nil
	case *mldsa87.PublicKey:
		return k.Bytes(), nil
	}
	return nil, fmt.Errorf("public key type %T has no raw encoding", pub)
}
