// Package auth implements identity, challenge-response authentication,
// HKDF session keys, and capability-based authorization (C10): proof-of-
// work-mined identities and signed capability grants stored as ordinary
// versioned records in the reserved "_auth" namespace.
package auth

import (
	"time"
)

// Namespace is the reserved namespace all identity, capability, and
// revocation records live in. The top-level store refuses external
// writes to it.
const Namespace = "_auth"

// UserData is the profile information attached to a mined Identity.
type UserData struct {
	DisplayName string         `json:"display_name,omitempty"`
	Bio         string         `json:"bio,omitempty"`
	AvatarHash  string         `json:"avatar_hash,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Identity is a self-sovereign identity: an Ed25519 public key bound to
// user data by a proof-of-work nonce. SHA-256 of the canonicalized
// identity with proof_hash set to the empty string must equal ProofHash and
// have at least Difficulty leading hex zeros.
type Identity struct {
	PublicKey  string    `json:"public_key"`
	UserData   UserData  `json:"user_data"`
	Nonce      uint64    `json:"nonce"`
	Difficulty uint8     `json:"difficulty"`
	ProofHash  string    `json:"proof_hash"`
	CreatedAt  time.Time `json:"created_at"`
}

// Challenge is a short-lived, single-use authentication challenge.
type Challenge struct {
	IdentityKey string    `json:"identity_key"`
	Challenge   string    `json:"challenge"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired reports whether the challenge is past its TTL.
func (c Challenge) IsExpired() bool { return time.Now().After(c.ExpiresAt) }

// Session is an authenticated session established after a successful
// challenge response.
type Session struct {
	SessionID   string          `json:"session_id"`
	IdentityKey string          `json:"identity_key"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Capabilities []CapabilityRef `json:"capabilities"`
}

// IsExpired reports whether the session is past its TTL.
func (s Session) IsExpired() bool { return time.Now().After(s.ExpiresAt) }

// CapabilityRef is a session's lightweight reference to a capability
// it was issued under.
type CapabilityRef struct {
	CapabilityKey   string          `json:"capability_key"`
	ResourcePattern ResourcePattern `json:"resource_pattern"`
	Permission      Permission      `json:"permission"`
}

// PatternKind discriminates the three resource-pattern shapes.
type PatternKind string

const (
	PatternExact     PatternKind = "exact"
	PatternWildcard  PatternKind = "wildcard"
	PatternNamespace PatternKind = "namespace"
)

// ResourcePattern matches a (namespace, key) pair against an exact
// "ns:key" string, a "ns:key"-prefix wildcard, or an entire namespace.
type ResourcePattern struct {
	Kind  PatternKind `json:"kind"`
	Value string      `json:"value"` // exact/namespace: the literal; wildcard: the prefix
}

// Exact builds an Exact resource pattern for "namespace:key".
func Exact(nsKey string) ResourcePattern { return ResourcePattern{Kind: PatternExact, Value: nsKey} }

// Wildcard builds a Wildcard resource pattern matching any "ns:key"
// sharing prefix.
func Wildcard(prefix string) ResourcePattern {
	return ResourcePattern{Kind: PatternWildcard, Value: prefix}
}

// NamespacePattern builds a Namespace resource pattern matching every
// key within ns.
func NamespacePattern(ns string) ResourcePattern {
	return ResourcePattern{Kind: PatternNamespace, Value: ns}
}

// Matches reports whether the pattern covers (namespace, key).
func (p ResourcePattern) Matches(namespace, key string) bool {
	switch p.Kind {
	case PatternExact:
		return p.Value == namespace+":"+key
	case PatternWildcard:
		full := namespace + ":" + key
		return len(full) >= len(p.Value) && full[:len(p.Value)] == p.Value
	case PatternNamespace:
		return p.Value == namespace
	default:
		return false
	}
}

// String renders the pattern the way original_source's Display impl
// does, for inclusion in signed messages.
func (p ResourcePattern) String() string {
	switch p.Kind {
	case PatternWildcard:
		return p.Value + "*"
	case PatternNamespace:
		return p.Value + ":**"
	default:
		return p.Value
	}
}

// Permission is a total order: Read < Write < Admin.
type Permission int

const (
	Read Permission = iota
	Write
	Admin
)

// Includes reports whether self grants at least other's level.
func (p Permission) Includes(other Permission) bool { return p >= other }

// String renders the permission the way signature messages expect.
func (p Permission) String() string {
	switch p {
	case Read:
		return "read"
	case Write:
		return "write"
	case Admin:
		return "admin"
	default:
		return "unknown"
	}
}

// Capability grants Permission on ResourcePattern from Granter to
// Grantee, signed by the granter.
type Capability struct {
	ID              string          `json:"id"`
	Granter         string          `json:"granter"`
	Grantee         string          `json:"grantee"`
	ResourcePattern ResourcePattern `json:"resource_pattern"`
	Permission      Permission      `json:"permission"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	Signature       string          `json:"signature"`
}

// IsExpired reports whether the capability has passed its optional
// expiry.
func (c Capability) IsExpired() bool {
	return c.ExpiresAt != nil && time.Now().After(*c.ExpiresAt)
}

// Revocation is a signed statement that a capability ID is no longer
// valid, regardless of its expiry.
type Revocation struct {
	CapabilityID string    `json:"capability_id"`
	RevokedBy    string    `json:"revoked_by"`
	RevokedAt    time.Time `json:"revoked_at"`
	Reason       string    `json:"reason,omitempty"`
	Signature    string    `json:"signature"`
}
