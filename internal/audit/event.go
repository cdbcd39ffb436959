// Package audit provides secure audit logging for key-management operations.
//
// Audit logs are separate from technical logs and designed for:
//   - Compliance review of key lifecycle decisions
//   - SIEM integration
//   - Tamper evidence via cryptographic hash chaining
//
// Key principles:
//   - Never log secrets (private keys, passphrases, messages)
//   - All timestamps in UTC
//   - Hash chain for integrity verification
package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the category of audit event.
type EventType string

const (
	// Key lifecycle events
	EventKeyGenerated EventType = "KEY_GENERATED"
	EventKeyUpdated   EventType = "KEY_UPDATED"
	EventKeyDeleted   EventType = "KEY_DELETED"

	// Key usage events
	EventKeySigned   EventType = "KEY_SIGNED"
	EventKeyVerified EventType = "KEY_VERIFIED"
	EventKeyExported EventType = "KEY_EXPORTED"

	// Security events
	EventAuthDenied EventType = "AUTH_DENIED"
)

// Result represents the outcome of an audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Actor represents who performed the action. For operations arriving
// through the API the actor is the calling web origin; for CLI
// operations it is the local user.
type Actor struct {
	Type   string `json:"type"`             // "origin", "user", "system"
	Origin string `json:"origin,omitempty"` // calling web origin
	ID     string `json:"id,omitempty"`     // username or service identifier
	Host   string `json:"host,omitempty"`   // hostname where action occurred
}

// Object represents the key record acted upon.
type Object struct {
	Identifier string `json:"identifier,omitempty"` // caller-visible identifier
	UID        string `json:"uid,omitempty"`        // internal record UID
	Algorithm  string `json:"algorithm,omitempty"`  // key algorithm
}

// Context provides additional details about the operation.
type Context struct {
	Operation     string `json:"operation,omitempty"`      // dispatcher operation name
	Reason        string `json:"reason,omitempty"`         // failure or denial reason
	RenamedFrom   string `json:"renamed_from,omitempty"`   // previous identifier on rename
	HardwareBound bool   `json:"hardware_bound,omitempty"` // key lives on hardware
}

// Event represents a single audit log entry.
type Event struct {
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"` // RFC3339 UTC
	Actor     Actor     `json:"actor"`
	Object    Object    `json:"object"`
	Context   Context   `json:"context,omitempty"`
	Result    Result    `json:"result"`
	HashPrev  string    `json:"hash_prev"` // SHA-256 hash of previous event
	Hash      string    `json:"hash"`      // SHA-256 hash of this event
}

// NewEvent creates a new audit event with the current timestamp and an
// origin actor.
func NewEvent(eventType EventType, callerOrigin string, result Result) *Event {
	return &Event{
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor: Actor{
			Type:   "origin",
			Origin: callerOrigin,
		},
		Result: result,
	}
}

// WithObject sets the object field.
func (e *Event) WithObject(obj Object) *Event {
	e.Object = obj
	return e
}

// WithContext sets the context field.
func (e *Event) WithContext(ctx Context) *Event {
	e.Context = ctx
	return e
}

// Validate checks that required fields are present.
func (e *Event) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.Timestamp == "" {
		return fmt.Errorf("timestamp is required")
	}
	if e.Actor.Type == "" {
		return fmt.Errorf("actor type is required")
	}
	if e.Result == "" {
		return fmt.Errorf("result is required")
	}
	return nil
}

// CanonicalJSON returns the event as canonical JSON for hashing.
// Excludes the Hash field to allow hash calculation.
func (e *Event) CanonicalJSON() ([]byte, error) {
	type eventForHash struct {
		EventType EventType `json:"event_type"`
		Timestamp string    `json:"timestamp"`
		Actor     Actor     `json:"actor"`
		Object    Object    `json:"object"`
		Context   Context   `json:"context,omitempty"`
		Result    Result    `json:"result"`
		HashPrev  string    `json:"hash_prev"`
	}

	canonical := eventForHash{
		EventType: e.EventType,
		Timestamp: e.Timestamp,
		Actor:     e.Actor,
		Object:    e.Object,
		Context:   e.Context,
		Result:    e.Result,
		HashPrev:  e.HashPrev,
	}

	return json.Marshal(canonical)
}

// JSON returns the full event as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}
