// Package storeerr defines the error taxonomy shared by every KoruDelta
// component. Errors carry a Kind so callers can switch on category without
// string matching, and wrap an optional underlying cause for %w chains.
package storeerr

import "fmt"

// Kind classifies an error into one of the policy groups from the error
// handling design: not-found, validation, authorization, conflict, or
// infrastructure.
type Kind string

const (
	KindKeyNotFound         Kind = "key_not_found"
	KindNoValueAtTimestamp  Kind = "no_value_at_timestamp"
	KindCapabilityNotFound  Kind = "capability_not_found"
	KindIdentityNotFound    Kind = "identity_not_found"
	KindInvalidData         Kind = "invalid_data"
	KindInvalidProofOfWork  Kind = "invalid_proof_of_work"
	KindInvalidSignature    Kind = "invalid_signature"
	KindInvalidKeyFormat    Kind = "invalid_key_format"
	KindUnauthorized        Kind = "unauthorized"
	KindCapabilityRevoked   Kind = "capability_revoked"
	KindChallengeExpired    Kind = "challenge_expired"
	KindSessionExpired      Kind = "session_expired"
	KindIdentityExists      Kind = "identity_exists"
	KindRejected            Kind = "rejected"
	KindConflict            Kind = "conflict"
	KindStorageError        Kind = "storage_error"
	KindSerializationError  Kind = "serialization_error"
	KindReservedNamespace   Kind = "reserved_namespace"
	KindViewNotFound        Kind = "view_not_found"
)

// Error is the structured error value returned by every KoruDelta package.
// Field names the offending input, if any; Cause is the wrapped underlying
// error, if any.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, storeerr.KeyNotFound) style sentinel checks by
// comparing Kind rather than pointer identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func WithField(kind Kind, message, field string) *Error {
	return &Error{Kind: kind, Message: message, Field: field}
}

// Sentinel instances usable with errors.Is for the common not-found/
// authorization kinds, matching the table in spec.md §6.
var (
	KeyNotFound        = &Error{Kind: KindKeyNotFound, Message: "key not found"}
	NoValueAtTimestamp = &Error{Kind: KindNoValueAtTimestamp, Message: "no value at timestamp"}
	CapabilityNotFound = &Error{Kind: KindCapabilityNotFound, Message: "capability not found"}
	IdentityNotFound   = &Error{Kind: KindIdentityNotFound, Message: "identity not found"}
	Unauthorized       = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	CapabilityRevoked  = &Error{Kind: KindCapabilityRevoked, Message: "capability revoked"}
	ChallengeExpired   = &Error{Kind: KindChallengeExpired, Message: "challenge expired"}
	SessionExpired     = &Error{Kind: KindSessionExpired, Message: "session expired"}
	IdentityExists     = &Error{Kind: KindIdentityExists, Message: "identity already exists"}
	ReservedNamespace  = &Error{Kind: KindReservedNamespace, Message: "cannot write to reserved namespace"}
	ViewNotFound       = &Error{Kind: KindViewNotFound, Message: "view not found"}
)
