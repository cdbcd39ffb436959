package webcrypto

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/brave-experiments/hardware-backed-webcrypto/internal/origin"
)

// CreateBinding is the caller-supplied binding input for key creation.
// All fields are optional; zero values get documented defaults.
type CreateBinding struct {
	// Identifier is the caller-chosen name. Generated when empty.
	Identifier string `json:"identifier,omitempty"`

	// Origins authorizes additional origins. Defaults to the creator.
	Origins []string `json:"origins,omitempty"`

	// HardwareBound requests hardware-resident key material.
	HardwareBound bool `json:"hardware_bound,omitempty"`

	// Extractable allows later export of private material. Must be
	// false for hardware-bound keys.
	Extractable bool `json:"extractable,omitempty"`

	// Updatable controls whether the record accepts updates.
	// Defaults to true when nil.
	Updatable *bool `json:"updatable,omitempty"`
}

// ValidatedBinding is a CreateBinding with defaults filled and every
// rule checked. Only the validator constructs these.
type ValidatedBinding struct {
	Identifier    string
	Origins       []string
	HardwareBound bool
	Extractable   bool
	Updatable     bool
}

// ValidateCreate checks a proposed binding against the creation rules
// and fills defaults. creatorOrigin must already be normalized.
func ValidateCreate(in CreateBinding, creatorOrigin string) (ValidatedBinding, error) {
	if creatorOrigin == "" {
		return ValidatedBinding{}, fmt.Errorf("%w: creator origin is required", ErrInvalidBinding)
	}

	if in.HardwareBound && in.Extractable {
		return ValidatedBinding{}, fmt.Errorf("%w: hardware-bound keys cannot be extractable", ErrInvalidBinding)
	}

	origins, err := origin.NormalizeSet(in.Origins)
	if err != nil {
		return ValidatedBinding{}, fmt.Errorf("%w: %v", ErrInvalidBinding, err)
	}
	if len(origins) == 0 {
		origins = []string{creatorOrigin}
	}

	identifier := in.Identifier
	if identifier == "" {
		identifier = uuid.NewString()
	}

	updatable := true
	if in.Updatable != nil {
		updatable = *in.Updatable
	}

	return ValidatedBinding{
		Identifier:    identifier,
		Origins:       origins,
		HardwareBound: in.HardwareBound,
		Extractable:   in.Extractable,
		Updatable:     updatable,
	}, nil
}

// UpdatePatch is the caller-supplied mutation for an existing record.
// Nil fields mean no change.
type UpdatePatch struct {
	// Identifier renames the record when set and different.
	Identifier *string `json:"identifier,omitempty"`

	// Origins replaces the binding set. Must be a superset of the
	// current set; origins are never removed.
	Origins []string `json:"origins,omitempty"`

	// Updatable may only move true to false, freezing the record.
	Updatable *bool `json:"updatable,omitempty"`
}

// IsZero reports whether the patch requests no change at all.
func (p UpdatePatch) IsZero() bool {
	return p.Identifier == nil && p.Origins == nil && p.Updatable == nil
}

// ValidatedPatch holds the record's new mutable-field values after a
// patch has been checked against the current record.
type ValidatedPatch struct {
	Identifier string
	Origins    []string
	Updatable  bool
}

// ValidateUpdate checks a patch against the current record. A frozen
// record (updatable false) rejects every patch, including a patch that
// would leave the record unchanged; delete is the only operation left.
func ValidateUpdate(existing *KeyRecord, patch UpdatePatch) (ValidatedPatch, error) {
	if !existing.Updatable {
		return ValidatedPatch{}, fmt.Errorf("%w: key %q", ErrPermissionDenied, existing.Identifier)
	}

	out := ValidatedPatch{
		Identifier: existing.Identifier,
		Origins:    append([]string(nil), existing.Origins...),
		Updatable:  existing.Updatable,
	}

	if patch.Origins != nil {
		origins, err := origin.NormalizeSet(patch.Origins)
		if err != nil {
			return ValidatedPatch{}, fmt.Errorf("%w: %v", ErrInvalidBinding, err)
		}
		if !origin.IsSuperset(origins, existing.Origins) {
			return ValidatedPatch{}, fmt.Errorf("%w: origin bindings can only grow, removal is not supported", ErrInvalidBinding)
		}
		out.Origins = origins
	}

	if patch.Identifier != nil {
		if *patch.Identifier == "" {
			return ValidatedPatch{}, fmt.Errorf("%w: identifier cannot be empty", ErrInvalidBinding)
		}
		out.Identifier = *patch.Identifier
	}

	if patch.Updatable != nil {
		// existing.Updatable is true here, so only the freeze is a change.
		out.Updatable = *patch.Updatable
	}

	return out, nil
}
