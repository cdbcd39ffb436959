//go:build !cgo

// Package backend: stub implementations when CGO is not available.
// HSM support via PKCS#11 requires CGO.
package backend

import (
	"context"
	stdcrypto "crypto"
	"fmt"

	wcrypto "github.com/brave-experiments/hardware-backed-webcrypto/internal/crypto"
)

// errNoCGO is returned when PKCS#11 operations are attempted without CGO.
var errNoCGO = fmt.Errorf("HSM support requires CGO (build with CGO_ENABLED=1)")

// PKCS11 delegates key material operations to a hardware token.
// This stub is used when CGO is not available.
type PKCS11 struct{}

var _ Adapter = (*PKCS11)(nil)

// NewPKCS11 opens a session pool against the configured PKCS#11 module.
// This stub returns an error when CGO is not available.
func NewPKCS11(_ *HSMConfig) (*PKCS11, error) {
	return nil, errNoCGO
}

// Close releases the underlying session pool.
func (p *PKCS11) Close() error {
	return nil
}

// Generate creates a key pair on the token.
func (p *PKCS11) Generate(_ context.Context, _ wcrypto.AlgorithmID, _ bool) (Handle, error) {
	return "", errNoCGO
}

// Sign signs the message with the token-resident private key.
func (p *PKCS11) Sign(_ context.Context, _ Handle, _ SignParams, _ []byte) ([]byte, error) {
	return nil, errNoCGO
}

// Verify checks the signature against the token key's public half.
func (p *PKCS11) Verify(_ context.Context, _ Handle, _ SignParams, _, _ []byte) (bool, error) {
	return false, errNoCGO
}

// Public returns the public half of the token-resident key pair.
func (p *PKCS11) Public(_ context.Context, _ Handle) (stdcrypto.PublicKey, error) {
	return nil, errNoCGO
}

// Purge destroys both halves of the key pair on the token.
func (p *PKCS11) Purge(_ context.Context, _ Handle) error {
	return errNoCGO
}

// CloseAllPools closes all session pools.
// No-op when CGO is not available.
func CloseAllPools() {}
