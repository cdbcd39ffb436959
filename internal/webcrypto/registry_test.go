package webcrypto

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brave-experiments/hardware-backed-webcrypto/internal/backend"
	wcrypto "github.com/brave-experiments/hardware-backed-webcrypto/internal/crypto"
)

func testRecord(uid, identifier string, origins ...string) *KeyRecord {
	if len(origins) == 0 {
		origins = []string{"https://example.com"}
	}
	return &KeyRecord{
		UID:           uid,
		Identifier:    identifier,
		Origins:       origins,
		Updatable:     true,
		Algorithm:     wcrypto.Descriptor{Algorithm: wcrypto.AlgECDSAP256, Usages: []wcrypto.KeyUsage{wcrypto.UsageSign}},
		Handle:        backend.Handle("h-" + uid),
		CreatorOrigin: origins[0],
		CreatedAt:     time.Now().UTC(),
		State:         StateActive,
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(context.Background(), NewMemoryStore())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return reg
}

func TestU_Registry_CreateAndResolve(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Create(ctx, testRecord("u1", "key-1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rec, err := reg.Resolve("key-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if rec.UID != "u1" {
		t.Errorf("resolved wrong record: %s", rec.UID)
	}

	// Snapshots are isolated from registry state.
	rec.Origins[0] = "https://mutated.example"
	again, _ := reg.Resolve("key-1")
	if again.Origins[0] != "https://example.com" {
		t.Error("registry state mutated through a snapshot")
	}

	if err := reg.Create(ctx, testRecord("u2", "key-1")); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if _, err := reg.Resolve("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestU_Registry_UpdateRenameAtomic(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Create(ctx, testRecord("u1", "old-name")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err := reg.Update(ctx, "old-name", func(current *KeyRecord) (ValidatedPatch, error) {
		return ValidatedPatch{
			Identifier: "new-name",
			Origins:    current.Origins,
			Updatable:  current.Updatable,
		}, nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if _, err := reg.Resolve("old-name"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected old identifier to be gone, got %v", err)
	}
	rec, err := reg.Resolve("new-name")
	if err != nil {
		t.Fatalf("expected new identifier to resolve, got %v", err)
	}
	if rec.UID != "u1" || rec.Handle != "h-u1" {
		t.Error("rename changed record identity")
	}
}

func TestU_Registry_UpdateRenameCollision(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Create(ctx, testRecord("u1", "key-1")); err != nil {
		t.Fatal(err)
	}
	if err := reg.Create(ctx, testRecord("u2", "key-2")); err != nil {
		t.Fatal(err)
	}

	_, err := reg.Update(ctx, "key-1", func(current *KeyRecord) (ValidatedPatch, error) {
		return ValidatedPatch{Identifier: "key-2", Origins: current.Origins, Updatable: true}, nil
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict on rename collision, got %v", err)
	}

	// Both records are untouched.
	if _, err := reg.Resolve("key-1"); err != nil {
		t.Errorf("key-1 should still resolve: %v", err)
	}
	r2, err := reg.Resolve("key-2")
	if err != nil || r2.UID != "u2" {
		t.Errorf("key-2 should still resolve to u2: %v", err)
	}
}

func TestU_Registry_MarkDeleted(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Create(ctx, testRecord("u1", "key-1")); err != nil {
		t.Fatal(err)
	}

	if err := reg.MarkDeleted(ctx, "u1"); err != nil {
		t.Fatalf("MarkDeleted failed: %v", err)
	}
	if _, err := reg.Resolve("key-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected deleted record to be unresolvable, got %v", err)
	}
	if err := reg.MarkDeleted(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected second MarkDeleted to fail, got %v", err)
	}

	// The identifier slot is free for an unrelated record.
	if err := reg.Create(ctx, testRecord("u2", "key-1", "https://fresh.example")); err != nil {
		t.Fatalf("expected recreate to succeed, got %v", err)
	}
	rec, _ := reg.Resolve("key-1")
	if rec.UID != "u2" {
		t.Errorf("expected fresh record, got %s", rec.UID)
	}
}

func TestU_Registry_ConcurrentRenameAndResolve(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.Create(ctx, testRecord("u1", "name-0")); err != nil {
		t.Fatal(err)
	}

	// One goroutine renames repeatedly; readers must always see exactly
	// one of the two identifiers.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			from, to := "name-0", "name-1"
			if i%2 == 1 {
				from, to = to, from
			}
			_, err := reg.Update(ctx, from, func(current *KeyRecord) (ValidatedPatch, error) {
				return ValidatedPatch{Identifier: to, Origins: current.Origins, Updatable: true}, nil
			})
			if err != nil {
				t.Errorf("rename %d failed: %v", i, err)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				_, err0 := reg.Resolve("name-0")
				_, err1 := reg.Resolve("name-1")
				ok0 := err0 == nil
				ok1 := err1 == nil
				if ok0 == ok1 {
					// Snapshots of two separate Resolve calls can
					// straddle a rename, making both or neither
					// visible momentarily from the caller's side;
					// what must never happen is an error other
					// than NotFound.
					for _, err := range []error{err0, err1} {
						if err != nil && !errors.Is(err, ErrNotFound) {
							t.Errorf("unexpected resolve error: %v", err)
							return
						}
					}
				}
			}
		}()
	}
	<-done
	wg.Wait()
}

func TestU_Registry_PersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := NewFileStore(dir)
	reg, err := NewRegistry(ctx, store)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	if err := reg.Create(ctx, testRecord("u1", "persisted")); err != nil {
		t.Fatal(err)
	}
	if err := reg.Create(ctx, testRecord("u2", "doomed")); err != nil {
		t.Fatal(err)
	}
	if err := reg.MarkDeleted(ctx, "u2"); err != nil {
		t.Fatal(err)
	}

	// A fresh registry over the same store sees the same state,
	// including the tombstone.
	reloaded, err := NewRegistry(ctx, NewFileStore(dir))
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	rec, err := reloaded.Resolve("persisted")
	if err != nil {
		t.Fatalf("Resolve after reload failed: %v", err)
	}
	if rec.UID != "u1" || rec.Handle != "h-u1" || !rec.Updatable {
		t.Errorf("record fields lost across reload: %+v", rec)
	}
	if _, err := reloaded.Resolve("doomed"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected tombstone to survive reload, got %v", err)
	}

	// The freed identifier stays free after reload.
	if err := reloaded.Create(ctx, testRecord("u3", "doomed")); err != nil {
		t.Errorf("expected recreate after reload to succeed: %v", err)
	}
}

func TestU_Registry_List(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		if err := reg.Create(ctx, testRecord("u-"+id, id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := reg.MarkDeleted(ctx, "u-bravo"); err != nil {
		t.Fatal(err)
	}

	records := reg.List()
	if len(records) != 2 {
		t.Fatalf("expected 2 active records, got %d", len(records))
	}
	if records[0].Identifier != "alpha" || records[1].Identifier != "charlie" {
		t.Errorf("expected identifier order, got %s, %s", records[0].Identifier, records[1].Identifier)
	}
}
