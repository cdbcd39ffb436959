package backend

import (
	"context"
	"crypto/ecdsa"
	"testing"

	wcrypto "github.com/brave-experiments/hardware-backed-webcrypto/internal/crypto"
)

func TestU_Software_GenerateSignVerify(t *testing.T) {
	ctx := context.Background()
	adapter := NewSoftware(t.TempDir(), nil)

	for _, alg := range []wcrypto.AlgorithmID{
		wcrypto.AlgECDSAP256,
		wcrypto.AlgEd25519,
		wcrypto.AlgMLDSA44,
	} {
		t.Run(string(alg), func(t *testing.T) {
			h, err := adapter.Generate(ctx, alg, false)
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if h == "" {
				t.Fatal("expected non-empty handle")
			}

			message := []byte("test message")
			sig, err := adapter.Sign(ctx, h, SignParams{}, message)
			if err != nil {
				t.Fatalf("Sign failed: %v", err)
			}

			ok, err := adapter.Verify(ctx, h, SignParams{}, sig, message)
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if !ok {
				t.Error("expected signature to verify")
			}

			ok, err = adapter.Verify(ctx, h, SignParams{}, sig, []byte("tampered"))
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if ok {
				t.Error("expected tampered message to fail verification")
			}
		})
	}
}

func TestU_Software_Public(t *testing.T) {
	ctx := context.Background()
	adapter := NewSoftware(t.TempDir(), nil)

	h, err := adapter.Generate(ctx, wcrypto.AlgECDSAP256, false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	pub, err := adapter.Public(ctx, h)
	if err != nil {
		t.Fatalf("Public failed: %v", err)
	}
	if _, ok := pub.(*ecdsa.PublicKey); !ok {
		t.Errorf("expected *ecdsa.PublicKey, got %T", pub)
	}
}

func TestU_Software_Sealed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	adapter := NewSoftware(dir, []byte("correct horse battery staple"))

	h, err := adapter.Generate(ctx, wcrypto.AlgEd25519, false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	message := []byte("sealed keystore")
	sig, err := adapter.Sign(ctx, h, SignParams{}, message)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	ok, err := adapter.Verify(ctx, h, SignParams{}, sig, message)
	if err != nil || !ok {
		t.Fatalf("Verify failed: ok=%v err=%v", ok, err)
	}

	// A wrong passphrase must not be able to use the key.
	wrong := NewSoftware(dir, []byte("wrong passphrase"))
	if _, err := wrong.Sign(ctx, h, SignParams{}, message); err == nil {
		t.Error("expected Sign with wrong passphrase to fail")
	}
}

func TestU_Software_Purge(t *testing.T) {
	ctx := context.Background()
	adapter := NewSoftware(t.TempDir(), nil)

	h, err := adapter.Generate(ctx, wcrypto.AlgECDSAP256, false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if err := adapter.Purge(ctx, h); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	if _, err := adapter.Sign(ctx, h, SignParams{}, []byte("data")); err == nil {
		t.Error("expected Sign after Purge to fail")
	}
	if err := adapter.Purge(ctx, h); err == nil {
		t.Error("expected second Purge to fail")
	}
}

func TestU_Software_UnknownHandle(t *testing.T) {
	ctx := context.Background()
	adapter := NewSoftware(t.TempDir(), nil)

	if _, err := adapter.Sign(ctx, Handle("no-such-handle"), SignParams{}, []byte("data")); err == nil {
		t.Error("expected Sign with unknown handle to fail")
	}
	if _, err := adapter.Public(ctx, Handle("no-such-handle")); err == nil {
		t.Error("expected Public with unknown handle to fail")
	}
}

func TestU_Software_ContextCancelled(t *testing.T) {
	adapter := NewSoftware(t.TempDir(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := adapter.Generate(ctx, wcrypto.AlgECDSAP256, false); err == nil {
		t.Error("expected Generate with cancelled context to fail")
	}
}
