package webcrypto

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry is the authoritative owner of all key records. It keeps the
// full record set in memory, indexed by UID and by identifier (active
// records only), and writes every mutation through to the store before
// making it visible.
//
// All mutations run under a single write lock, which makes create,
// update (including rename), and delete atomic with respect to every
// reader. The lock is never held across a backend adapter call; the
// dispatcher sequences backend work outside the registry.
type Registry struct {
	mu    sync.RWMutex
	store Store

	byUID        map[string]*KeyRecord
	byIdentifier map[string]string // identifier -> UID, active records only
}

// NewRegistry creates a registry backed by the store and loads the
// existing record set.
func NewRegistry(ctx context.Context, store Store) (*Registry, error) {
	records, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	r := &Registry{
		store:        store,
		byUID:        make(map[string]*KeyRecord, len(records)),
		byIdentifier: make(map[string]string),
	}

	for _, rec := range records {
		r.byUID[rec.UID] = rec
		if rec.State == StateActive {
			if other, ok := r.byIdentifier[rec.Identifier]; ok {
				return nil, fmt.Errorf("corrupt registry: identifier %q held by records %s and %s",
					rec.Identifier, other, rec.UID)
			}
			r.byIdentifier[rec.Identifier] = rec.UID
		}
	}

	return r, nil
}

// Create inserts a new active record. Fails with ErrConflict when the
// identifier already resolves to an active record.
func (r *Registry) Create(ctx context.Context, rec *KeyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byIdentifier[rec.Identifier]; ok {
		return fmt.Errorf("%w: %q", ErrConflict, rec.Identifier)
	}

	stored := rec.Clone()
	if err := r.store.Save(ctx, stored); err != nil {
		return err
	}

	r.byUID[stored.UID] = stored
	r.byIdentifier[stored.Identifier] = stored.UID
	return nil
}

// Resolve returns a snapshot of the active record behind an identifier.
func (r *Registry) Resolve(identifier string) (*KeyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uid, ok := r.byIdentifier[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, identifier)
	}
	return r.byUID[uid].Clone(), nil
}

// HasIdentifier reports whether an identifier currently resolves to an
// active record. Used by the dispatcher to fail fast before a backend
// call; the authoritative check is the atomic insert in Create.
func (r *Registry) HasIdentifier(identifier string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byIdentifier[identifier]
	return ok
}

// Update applies fn to the active record behind identifier as one
// atomic transaction: fn receives a snapshot, returns the new mutable
// field values, and the swap (including a rename) becomes visible all
// at once. No concurrent reader ever observes both or neither
// identifier during a rename. fn must not call into the backend.
func (r *Registry) Update(ctx context.Context, identifier string, fn func(current *KeyRecord) (ValidatedPatch, error)) (*KeyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	uid, ok := r.byIdentifier[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, identifier)
	}
	current := r.byUID[uid]

	patch, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}

	if patch.Identifier != current.Identifier {
		if otherUID, taken := r.byIdentifier[patch.Identifier]; taken && otherUID != uid {
			return nil, fmt.Errorf("%w: %q", ErrConflict, patch.Identifier)
		}
	}

	updated := current.Clone()
	updated.Identifier = patch.Identifier
	updated.Origins = patch.Origins
	updated.Updatable = patch.Updatable

	if err := r.store.Save(ctx, updated); err != nil {
		return nil, err
	}

	if updated.Identifier != current.Identifier {
		delete(r.byIdentifier, current.Identifier)
	}
	r.byIdentifier[updated.Identifier] = uid
	r.byUID[uid] = updated

	return updated.Clone(), nil
}

// MarkDeleted moves a record to the Deleted state by UID. Keying on the
// UID rather than the identifier means a rename that raced ahead of the
// delete cannot save the record: delete wins. Fails with ErrNotFound
// when the record is already deleted.
func (r *Registry) MarkDeleted(ctx context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byUID[uid]
	if !ok || current.State == StateDeleted {
		return fmt.Errorf("%w: record %s", ErrNotFound, uid)
	}

	updated := current.Clone()
	updated.State = StateDeleted

	if err := r.store.Save(ctx, updated); err != nil {
		return err
	}

	delete(r.byIdentifier, current.Identifier)
	r.byUID[uid] = updated
	return nil
}

// List returns snapshots of all active records, ordered by identifier.
func (r *Registry) List() []*KeyRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*KeyRecord, 0, len(r.byIdentifier))
	for _, uid := range r.byIdentifier {
		records = append(records, r.byUID[uid].Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Identifier < records[j].Identifier
	})
	return records
}
