package webcrypto

import (
	"context"
	stdcrypto "crypto"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brave-experiments/hardware-backed-webcrypto/internal/audit"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/backend"
	wcrypto "github.com/brave-experiments/hardware-backed-webcrypto/internal/crypto"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/origin"
)

// Dispatcher is the operation layer exposed to callers. Every public
// operation runs the same protocol: validate, authorize, mutate the
// registry, then delegate to the backend adapter. The registry lock is
// never held across a backend call; generate finalizes its record only
// after the backend returns, and the loser of a create race purges the
// material it generated.
type Dispatcher struct {
	registry *Registry
	backend  backend.Adapter
	audit    audit.Writer
}

// NewDispatcher wires the dispatcher to its collaborators. A nil audit
// writer disables audit logging.
func NewDispatcher(registry *Registry, adapter backend.Adapter, auditWriter audit.Writer) *Dispatcher {
	if auditWriter == nil {
		auditWriter = audit.NopWriter{}
	}
	return &Dispatcher{
		registry: registry,
		backend:  adapter,
		audit:    auditWriter,
	}
}

// Registry exposes the underlying registry for read-only consumers
// (listing, health checks).
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// GenerateRequest carries the inputs of a key creation.
type GenerateRequest struct {
	Algorithm    wcrypto.Descriptor
	Binding      CreateBinding
	CallerOrigin string
}

// GenerateKey validates the binding, asks the backend for key material,
// and inserts the new record. Binding and identifier problems fail
// before any backend call; a lost insert race returns ErrConflict and
// the freshly generated material is purged.
func (d *Dispatcher) GenerateKey(ctx context.Context, req GenerateRequest) (*KeyRecord, error) {
	caller, err := origin.Normalize(req.CallerOrigin)
	if err != nil {
		return nil, fmt.Errorf("%w: caller origin: %v", ErrInvalidBinding, err)
	}

	if err := req.Algorithm.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBinding, err)
	}

	vb, err := ValidateCreate(req.Binding, caller)
	if err != nil {
		return nil, err
	}

	// Fail fast on an obviously taken identifier so no hardware
	// operation is wasted. The authoritative check is the atomic
	// insert below.
	if d.registry.HasIdentifier(vb.Identifier) {
		return nil, fmt.Errorf("%w: %q", ErrConflict, vb.Identifier)
	}

	handle, err := d.backend.Generate(ctx, req.Algorithm.Algorithm, vb.Extractable)
	if err != nil {
		return nil, newBackendError("generate", err)
	}

	rec := &KeyRecord{
		UID:           uuid.NewString(),
		Identifier:    vb.Identifier,
		Origins:       vb.Origins,
		HardwareBound: vb.HardwareBound,
		Extractable:   vb.Extractable,
		Updatable:     vb.Updatable,
		Algorithm:     req.Algorithm,
		Handle:        handle,
		CreatorOrigin: caller,
		CreatedAt:     time.Now().UTC(),
		State:         StateActive,
	}

	if err := d.registry.Create(ctx, rec); err != nil {
		// Lost the insert race or failed to persist: the generated
		// material has no record and must not leak.
		_ = d.backend.Purge(context.WithoutCancel(ctx), handle)
		return nil, err
	}

	d.emit(audit.NewEvent(audit.EventKeyGenerated, caller, audit.ResultSuccess).
		WithObject(d.object(rec)).
		WithContext(audit.Context{Operation: "generate", HardwareBound: rec.HardwareBound}))

	return rec.Clone(), nil
}

// UpdateKey applies a patch to the record behind identifier, renaming
// it when the patch asks for that. Resolution, authorization,
// validation, and the swap run as one registry transaction, so a
// rename is atomic and no stale snapshot can slip through.
// Update never calls the backend.
func (d *Dispatcher) UpdateKey(ctx context.Context, identifier string, patch UpdatePatch, callerOrigin string) (*KeyRecord, error) {
	caller, err := origin.Normalize(callerOrigin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	updated, err := d.registry.Update(ctx, identifier, func(current *KeyRecord) (ValidatedPatch, error) {
		if err := Authorize(caller, current, OpUpdate); err != nil {
			return ValidatedPatch{}, err
		}
		return ValidateUpdate(current, patch)
	})
	if err != nil {
		d.emitDenied(caller, identifier, OpUpdate, err)
		return nil, err
	}

	evCtx := audit.Context{Operation: string(OpUpdate)}
	if updated.Identifier != identifier {
		evCtx.RenamedFrom = identifier
	}
	d.emit(audit.NewEvent(audit.EventKeyUpdated, caller, audit.ResultSuccess).
		WithObject(d.object(updated)).
		WithContext(evCtx))

	return updated, nil
}

// Sign signs the message with the key behind identifier.
func (d *Dispatcher) Sign(ctx context.Context, identifier string, params backend.SignParams, message []byte, callerOrigin string) ([]byte, error) {
	rec, caller, err := d.resolveAuthorized(identifier, callerOrigin, OpSign)
	if err != nil {
		return nil, err
	}

	if !rec.Algorithm.AllowsUsage(wcrypto.UsageSign) {
		return nil, fmt.Errorf("%w: key %q does not allow sign", ErrPermissionDenied, identifier)
	}

	sig, err := d.backend.Sign(ctx, rec.Handle, params, message)
	if err != nil {
		return nil, newBackendError("sign", err)
	}

	d.emit(audit.NewEvent(audit.EventKeySigned, caller, audit.ResultSuccess).
		WithObject(d.object(rec)))

	return sig, nil
}

// Verify checks a signature with the key behind identifier. A
// well-formed request with a bad signature returns (false, nil).
func (d *Dispatcher) Verify(ctx context.Context, identifier string, params backend.SignParams, signature, message []byte, callerOrigin string) (bool, error) {
	rec, caller, err := d.resolveAuthorized(identifier, callerOrigin, OpVerify)
	if err != nil {
		return false, err
	}

	if !rec.Algorithm.AllowsUsage(wcrypto.UsageVerify) {
		return false, fmt.Errorf("%w: key %q does not allow verify", ErrPermissionDenied, identifier)
	}

	ok, err := d.backend.Verify(ctx, rec.Handle, params, signature, message)
	if err != nil {
		return false, newBackendError("verify", err)
	}

	d.emit(audit.NewEvent(audit.EventKeyVerified, caller, audit.ResultSuccess).
		WithObject(d.object(rec)))

	return ok, nil
}

// DeleteKey purges the key material and then marks the record Deleted.
// When the purge fails the record stays fully Active; no partial
// deletion is ever visible. The final mark keys on the record UID, so
// a rename racing the delete cannot leave a live record behind.
func (d *Dispatcher) DeleteKey(ctx context.Context, identifier string, callerOrigin string) error {
	rec, caller, err := d.resolveAuthorized(identifier, callerOrigin, OpDelete)
	if err != nil {
		return err
	}

	if err := d.backend.Purge(ctx, rec.Handle); err != nil {
		return newBackendError("purge", err)
	}

	if err := d.registry.MarkDeleted(ctx, rec.UID); err != nil {
		return err
	}

	d.emit(audit.NewEvent(audit.EventKeyDeleted, caller, audit.ResultSuccess).
		WithObject(d.object(rec)).
		WithContext(audit.Context{Operation: string(OpDelete)}))

	return nil
}

// ExportPublicKey returns the public half of the key behind identifier
// together with a record snapshot.
func (d *Dispatcher) ExportPublicKey(ctx context.Context, identifier string, callerOrigin string) (stdcrypto.PublicKey, *KeyRecord, error) {
	rec, caller, err := d.resolveAuthorized(identifier, callerOrigin, OpExport)
	if err != nil {
		return nil, nil, err
	}

	pub, err := d.backend.Public(ctx, rec.Handle)
	if err != nil {
		return nil, nil, newBackendError("public", err)
	}

	d.emit(audit.NewEvent(audit.EventKeyExported, caller, audit.ResultSuccess).
		WithObject(d.object(rec)))

	return pub, rec, nil
}

// Describe returns a record snapshot for an authorized origin.
func (d *Dispatcher) Describe(identifier string, callerOrigin string) (*KeyRecord, error) {
	rec, _, err := d.resolveAuthorized(identifier, callerOrigin, OpVerify)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// resolveAuthorized normalizes the caller, resolves the identifier to
// an active record snapshot, and checks membership for the operation.
func (d *Dispatcher) resolveAuthorized(identifier, callerOrigin string, op Operation) (*KeyRecord, string, error) {
	caller, err := origin.Normalize(callerOrigin)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	rec, err := d.registry.Resolve(identifier)
	if err != nil {
		return nil, "", err
	}

	if err := Authorize(caller, rec, op); err != nil {
		d.emitDenied(caller, identifier, op, err)
		return nil, "", err
	}

	return rec, caller, nil
}

func (d *Dispatcher) object(rec *KeyRecord) audit.Object {
	return audit.Object{
		Identifier: rec.Identifier,
		UID:        rec.UID,
		Algorithm:  string(rec.Algorithm.Algorithm),
	}
}

// emit writes an audit event, best effort.
func (d *Dispatcher) emit(e *audit.Event) {
	_ = d.audit.Write(e)
}

// emitDenied records an authorization failure.
func (d *Dispatcher) emitDenied(caller, identifier string, op Operation, err error) {
	if !errors.Is(err, ErrUnauthorized) {
		return
	}
	d.emit(audit.NewEvent(audit.EventAuthDenied, caller, audit.ResultFailure).
		WithObject(audit.Object{Identifier: identifier}).
		WithContext(audit.Context{Operation: string(op), Reason: err.Error()}))
}
