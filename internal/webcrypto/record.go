// Package webcrypto implements the key registry, its binding rules, the
// origin access controller, and the operation dispatcher that sequences
// these checks around calls into the cryptographic backend.
package webcrypto

import (
	"time"

	"github.com/brave-experiments/hardware-backed-webcrypto/internal/backend"
	wcrypto "github.com/brave-experiments/hardware-backed-webcrypto/internal/crypto"
)

// LifecycleState tracks a record's lifecycle. Transitions are monotonic
// forward: Active to Deleted, never back.
type LifecycleState int

const (
	StateActive LifecycleState = iota
	StateDeleted
)

func (s LifecycleState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// KeyRecord is the registry's central entity. UID is the internal
// primary key and never changes; Identifier is the caller-visible name
// and may be renamed through update. Origins, Updatable, and Identifier
// are the only mutable fields, and each only moves one way: origins
// grow, updatable goes true to false, identifier renames but never
// duplicates another active record's.
type KeyRecord struct {
	UID           string             `json:"uid" cbor:"1,keyasint"`
	Identifier    string             `json:"identifier" cbor:"2,keyasint"`
	Origins       []string           `json:"origins" cbor:"3,keyasint"`
	HardwareBound bool               `json:"hardware_bound" cbor:"4,keyasint"`
	Extractable   bool               `json:"extractable" cbor:"5,keyasint"`
	Updatable     bool               `json:"updatable" cbor:"6,keyasint"`
	Algorithm     wcrypto.Descriptor `json:"algorithm" cbor:"7,keyasint"`
	Handle        backend.Handle     `json:"handle" cbor:"8,keyasint"`
	CreatorOrigin string             `json:"creator_origin" cbor:"9,keyasint"`
	CreatedAt     time.Time          `json:"created_at" cbor:"10,keyasint"`
	State         LifecycleState     `json:"state" cbor:"11,keyasint"`
}

// Clone returns a deep copy. The registry hands out clones so callers
// can never mutate registry state through a returned record.
func (r *KeyRecord) Clone() *KeyRecord {
	c := *r
	c.Origins = append([]string(nil), r.Origins...)
	c.Algorithm.Usages = append([]wcrypto.KeyUsage(nil), r.Algorithm.Usages...)
	return &c
}

// BoundTo reports whether the origin is in the record's bindings.
// The origin must already be in normalized form.
func (r *KeyRecord) BoundTo(callerOrigin string) bool {
	for _, o := range r.Origins {
		if o == callerOrigin {
			return true
		}
	}
	return false
}
