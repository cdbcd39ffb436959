package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestU_FileWriter_HashChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}

	events := []*Event{
		NewEvent(EventKeyGenerated, "https://example.com", ResultSuccess).
			WithObject(Object{Identifier: "123ABC", Algorithm: "ecdsa-p256"}),
		NewEvent(EventKeySigned, "https://example.com", ResultSuccess).
			WithObject(Object{Identifier: "123ABC"}),
		NewEvent(EventAuthDenied, "https://evil.example", ResultFailure).
			WithObject(Object{Identifier: "123ABC"}).
			WithContext(Context{Operation: "sign", Reason: "origin not authorized"}),
	}

	prev := GenesisHash
	for _, e := range events {
		if err := w.Write(e); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if e.HashPrev != prev {
			t.Errorf("expected HashPrev %s, got %s", prev, e.HashPrev)
		}
		if !strings.HasPrefix(e.Hash, HashPrefix) {
			t.Errorf("hash missing prefix: %s", e.Hash)
		}
		prev = e.Hash
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	n, err := VerifyChain(path)
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if n != len(events) {
		t.Errorf("expected %d verified events, got %d", len(events), n)
	}
}

func TestU_FileWriter_ChainContinuity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	w1, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	if err := w1.Write(NewEvent(EventKeyGenerated, "https://a.example", ResultSuccess)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	last := w1.LastHash()
	_ = w1.Close()

	// Reopening must continue the chain from the persisted last hash.
	w2, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter reopen failed: %v", err)
	}
	if w2.LastHash() != last {
		t.Errorf("expected last hash %s after reopen, got %s", last, w2.LastHash())
	}
	if err := w2.Write(NewEvent(EventKeyDeleted, "https://a.example", ResultSuccess)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	_ = w2.Close()

	if _, err := VerifyChain(path); err != nil {
		t.Errorf("VerifyChain failed after reopen: %v", err)
	}
}

func TestU_VerifyChain_DetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := w.Write(NewEvent(EventKeySigned, "https://a.example", ResultSuccess)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	_ = w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), "https://a.example", "https://b.example", 1)
	if err := os.WriteFile(path, []byte(tampered), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := VerifyChain(path); err == nil {
		t.Error("expected VerifyChain to detect tampering")
	}
}

func TestU_MultiWriter_FansOut(t *testing.T) {
	dir := t.TempDir()

	w1, err := NewFileWriter(filepath.Join(dir, "a.jsonl"))
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	w2, err := NewFileWriter(filepath.Join(dir, "b.jsonl"))
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}

	mw := NewMultiWriter(w1, NopWriter{}, w2)
	if err := mw.Write(NewEvent(EventKeyGenerated, "https://a.example", ResultSuccess)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for _, name := range []string{"a.jsonl", "b.jsonl"} {
		if n, err := VerifyChain(filepath.Join(dir, name)); err != nil || n != 1 {
			t.Errorf("expected 1 valid event in %s, got %d (%v)", name, n, err)
		}
	}
}

func TestU_Event_Validate(t *testing.T) {
	e := NewEvent(EventKeyGenerated, "https://example.com", ResultSuccess)
	if err := e.Validate(); err != nil {
		t.Errorf("expected valid event, got %v", err)
	}

	if err := (&Event{}).Validate(); err == nil {
		t.Error("expected empty event to be invalid")
	}
}
