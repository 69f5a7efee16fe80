package auth

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"github.com/kittclouds/korudelta/internal/storeerr"
)

// NewCapability builds and signs a capability granting permission on
// pattern from granter to grantee. The signature covers every field
// that participates in authorization so a tampered grant fails
// verification.
func NewCapability(granter Identity, granterSecretKey ed25519.PrivateKey, grantee string, pattern ResourcePattern, permission Permission, expiresAt *time.Time) (Capability, error) {
	cap := Capability{
		ID:              uuid.NewString(),
		Granter:         granter.PublicKey,
		Grantee:         grantee,
		ResourcePattern: pattern,
		Permission:      permission,
		CreatedAt:       time.Now(),
		ExpiresAt:       expiresAt,
	}
	sig, err := SignMessageBase58(granterSecretKey, capabilityGrantMessage(cap))
	if err != nil {
		return Capability{}, err
	}
	cap.Signature = sig
	return cap, nil
}

// capabilityGrantMessage is the exact byte sequence a capability's
// signature covers:
// "capability_grant:{id}/{granter}->{grantee}/{pattern}/{permission}/{created_unix}"
func capabilityGrantMessage(cap Capability) []byte {
	return []byte(fmt.Sprintf("capability_grant:%s/%s->%s/%s/%s/%d",
		cap.ID, cap.Granter, cap.Grantee, cap.ResourcePattern.String(), cap.Permission.String(), cap.CreatedAt.Unix()))
}

// VerifySignature checks a capability's signature against its granter's
// public key.
func (c Capability) VerifySignature() (bool, error) {
	sig, err := base58.Decode(c.Signature)
	if err != nil {
		return false, storeerr.Wrap(storeerr.KindInvalidSignature, "decode capability signature", err)
	}
	return VerifySignature(c.Granter, capabilityGrantMessage(c), sig)
}

// NewRevocation builds and signs a revocation of cap. Per spec, only
// the granter may revoke a capability it issued; callers are
// responsible for checking revokerSecretKey corresponds to cap.Granter
// before trusting the result.
func NewRevocation(cap Capability, revokerSecretKey ed25519.PrivateKey, reason string) (Revocation, error) {
	rev := Revocation{
		CapabilityID: cap.ID,
		RevokedBy:    cap.Granter,
		RevokedAt:    time.Now(),
		Reason:       reason,
	}
	sig, err := SignMessageBase58(revokerSecretKey, capabilityRevokeMessage(rev))
	if err != nil {
		return Revocation{}, err
	}
	rev.Signature = sig
	return rev, nil
}

// capabilityRevokeMessage is the exact byte sequence a revocation's
// signature covers: "capability_revoke:{capability_id}/{granter}/{revoked_unix}"
func capabilityRevokeMessage(rev Revocation) []byte {
	return []byte(fmt.Sprintf("capability_revoke:%s/%s/%d", rev.CapabilityID, rev.RevokedBy, rev.RevokedAt.Unix()))
}

// VerifySignature checks a revocation's signature against the claimed
// granter's public key.
func (r Revocation) VerifySignature(granterPublicKey string) (bool, error) {
	sig, err := base58.Decode(r.Signature)
	if err != nil {
		return false, storeerr.Wrap(storeerr.KindInvalidSignature, "decode revocation signature", err)
	}
	return VerifySignature(granterPublicKey, capabilityRevokeMessage(r), sig)
}

// Authorize implements the capability lookup at the heart of P9: the
// first non-expired, non-revoked capability granting identityKey at
// least requiredPermission on (namespace, key) wins. revoked is the set
// of capability IDs with an active revocation.
func Authorize(identityKey, namespace, key string, required Permission, capabilities []Capability, revoked map[string]struct{}) (CapabilityRef, error) {
	for _, cap := range capabilities {
		if cap.Grantee != identityKey {
			continue
		}
		if _, isRevoked := revoked[cap.ID]; isRevoked {
			continue
		}
		if cap.IsExpired() {
			continue
		}
		if !cap.Permission.Includes(required) {
			continue
		}
		if cap.ResourcePattern.Matches(namespace, key) {
			return BuildCapabilityRef(cap), nil
		}
	}
	return CapabilityRef{}, storeerr.Unauthorized
}

// CheckPermission is a boolean-returning wrapper over Authorize.
func CheckPermission(identityKey, namespace, key string, required Permission, capabilities []Capability, revoked map[string]struct{}) bool {
	_, err := Authorize(identityKey, namespace, key, required, capabilities, revoked)
	return err == nil
}

// BuildCapabilityRef projects a Capability into the lightweight
// CapabilityRef recorded on a Session.
func BuildCapabilityRef(cap Capability) CapabilityRef {
	return CapabilityRef{
		CapabilityKey:   Namespace + ":capability:" + cap.ID,
		ResourcePattern: cap.ResourcePattern,
		Permission:      cap.Permission,
	}
}
