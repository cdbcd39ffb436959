package webcrypto

import "fmt"

// Operation names an access-controlled action on a key record.
type Operation string

const (
	OpUpdate Operation = "update"
	OpSign   Operation = "sign"
	OpVerify Operation = "verify"
	OpDelete Operation = "delete"
	OpExport Operation = "export"
)

// Authorize decides whether the calling origin may perform the
// operation on the record: authorized iff the origin is in the record's
// bindings. The creator origin carries no extra privilege. Creation is
// not access-controlled, so it never passes through here.
//
// callerOrigin must already be normalized.
func Authorize(callerOrigin string, rec *KeyRecord, op Operation) error {
	if callerOrigin == "" {
		return fmt.Errorf("%w: caller origin is required for %s", ErrUnauthorized, op)
	}
	if !rec.BoundTo(callerOrigin) {
		return fmt.Errorf("%w: origin %q may not %s key %q", ErrUnauthorized, callerOrigin, op, rec.Identifier)
	}
	return nil
}
