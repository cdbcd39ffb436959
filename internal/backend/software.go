package backend

import (
	"context"
	stdcrypto "crypto"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	wcrypto "github.com/brave-experiments/hardware-backed-webcrypto/internal/crypto"
)

// Software implements Adapter with key material stored on the local
// filesystem. When a passphrase is configured, private keys are sealed
// with scrypt + XChaCha20-Poly1305; otherwise they are stored as PEM.
//
// Keystore layout: {dir}/{handle}.key
type Software struct {
	dir        string
	passphrase []byte
	mu         sync.RWMutex
}

var _ Adapter = (*Software)(nil)

// NewSoftware creates a software adapter rooted at dir.
// The directory is created on first use.
func NewSoftware(dir string, passphrase []byte) *Software {
	return &Software{dir: dir, passphrase: passphrase}
}

// keyPath returns the path to the key file for a handle.
func (s *Software) keyPath(h Handle) string {
	return filepath.Join(s.dir, string(h)+".key")
}

// Generate creates a new key pair and stores the private key.
func (s *Software) Generate(ctx context.Context, alg wcrypto.AlgorithmID, extractable bool) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	kp, err := wcrypto.GenerateKeyPair(alg)
	if err != nil {
		return "", err
	}

	pemData, err := wcrypto.MarshalPrivateKey(kp.PrivateKey)
	if err != nil {
		return "", err
	}

	data := pemData
	if len(s.passphrase) > 0 {
		data, err = seal(pemData, s.passphrase)
		if err != nil {
			return "", err
		}
	}

	h := Handle(uuid.NewString())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create keystore directory: %w", err)
	}
	if err := os.WriteFile(s.keyPath(h), data, 0600); err != nil {
		return "", fmt.Errorf("failed to write key material: %w", err)
	}

	return h, nil
}

// load reads and decodes the private key behind a handle.
func (s *Software) load(h Handle) (stdcrypto.PrivateKey, error) {
	s.mu.RLock()
	data, err := os.ReadFile(s.keyPath(h))
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no key material for handle %s", h)
		}
		return nil, fmt.Errorf("failed to read key material: %w", err)
	}

	if len(s.passphrase) > 0 {
		data, err = open(data, s.passphrase)
		if err != nil {
			return nil, err
		}
	}

	return wcrypto.ParsePrivateKey(data)
}

// Sign signs the message with the key behind the handle.
func (s *Software) Sign(ctx context.Context, h Handle, params SignParams, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	priv, err := s.load(h)
	if err != nil {
		return nil, err
	}

	alg := wcrypto.AlgorithmOf(priv)
	if alg == "" {
		return nil, fmt.Errorf("unrecognized key material for handle %s", h)
	}

	return wcrypto.SignMessage(rand.Reader, alg, priv, params.Hash, message)
}

// Verify verifies a signature with the key behind the handle.
func (s *Software) Verify(ctx context.Context, h Handle, params SignParams, signature, message []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	priv, err := s.load(h)
	if err != nil {
		return false, err
	}

	alg := wcrypto.AlgorithmOf(priv)
	pub, err := wcrypto.PublicKeyOf(priv)
	if err != nil {
		return false, err
	}

	return wcrypto.VerifyMessage(alg, pub, params.Hash, message, signature)
}

// Public returns the public half of the key behind the handle.
func (s *Software) Public(ctx context.Context, h Handle) (stdcrypto.PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	priv, err := s.load(h)
	if err != nil {
		return nil, err
	}
	return wcrypto.PublicKeyOf(priv)
}

// Purge overwrites the key file and removes it. After Purge the handle
// is permanently unusable.
func (s *Software) Purge(ctx context.Context, h Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.keyPath(h)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no key material for handle %s", h)
		}
		return err
	}

	// Best-effort overwrite before unlink.
	if f, err := os.OpenFile(path, os.O_WRONLY, 0600); err == nil {
		zeros := make([]byte, info.Size())
		_, _ = f.Write(zeros)
		_ = f.Sync()
		_ = f.Close()
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove key material: %w", err)
	}
	return nil
}
