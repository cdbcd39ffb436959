// Package backend defines the adapter interface to the component holding
// actual key material (software keystore or PKCS#11 hardware token), and
// its implementations.
//
// Adapter calls may block for arbitrary durations (hardware round trips,
// user-presence prompts) and honor context cancellation. Callers must not
// hold registry locks across adapter calls.
package backend

import (
	"context"
	stdcrypto "crypto"

	wcrypto "github.com/brave-experiments/hardware-backed-webcrypto/internal/crypto"
)

// Handle is an opaque reference to key material held by an adapter.
// A handle is exclusively owned by one registry record.
type Handle string

// SignParams carries per-call signing parameters. An empty Hash means
// the algorithm default; Ed25519 and ML-DSA reject an explicit hash.
type SignParams struct {
	Hash wcrypto.HashID `json:"hash,omitempty"`
}

// Adapter performs key generation, signing, verification, and secure
// erasure of key material.
type Adapter interface {
	// Generate creates key material for the algorithm and returns a
	// handle to it.
	Generate(ctx context.Context, alg wcrypto.AlgorithmID, extractable bool) (Handle, error)

	// Sign signs the message with the key behind the handle.
	Sign(ctx context.Context, h Handle, params SignParams, message []byte) ([]byte, error)

	// Verify verifies a signature with the key behind the handle.
	// A well-formed request with a bad signature returns (false, nil).
	Verify(ctx context.Context, h Handle, params SignParams, signature, message []byte) (bool, error)

	// Public returns the public half of the key behind the handle.
	Public(ctx context.Context, h Handle) (stdcrypto.PublicKey, error)

	// Purge irrecoverably destroys the key material behind the handle.
	Purge(ctx context.Context, h Handle) error
}
