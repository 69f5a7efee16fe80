package auth

import (
	"context"
	"crypto/ed25519"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/kittclouds/korudelta/internal/storage"
	"github.com/kittclouds/korudelta/internal/storeerr"
)

const (
	identityPrefix   = "identity:"
	capabilityPrefix = "capability:"
	revocationPrefix = "revocation:"
)

// Config tunes identity mining difficulty and challenge/session TTLs
// for a Manager.
type Config struct {
	Difficulty   uint8
	ChallengeTTL time.Duration
	SessionTTL   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Difficulty:   DefaultDifficulty,
		ChallengeTTL: DefaultChallengeTTL,
		SessionTTL:   DefaultSessionTTL,
	}
}

// Manager orchestrates identity mining, challenge-response
// authentication, HKDF session issuance, and capability-based
// authorization (C10). Every identity, capability, and revocation is
// persisted as an ordinary versioned record in the reserved Namespace
// ("_auth") of the causal storage engine, so auth state gets the same
// history and time-travel guarantees as document state. Live challenges
// and sessions are kept in memory only — they are not causally
// versioned.
type Manager struct {
	storage    *storage.Storage
	challenges *ChallengeStore
	sessions   *SessionManager
	config     Config
}

func New(store *storage.Storage) *Manager {
	return NewWithConfig(store, DefaultConfig())
}

func NewWithConfig(store *storage.Storage, cfg Config) *Manager {
	return &Manager{
		storage:    store,
		challenges: NewChallengeStore(cfg.ChallengeTTL),
		sessions:   NewSessionManager(cfg.SessionTTL),
		config:     cfg,
	}
}

// CreateIdentity mines a fresh identity at the manager's configured
// difficulty, persists it, and returns it alongside its secret key. The
// secret key is never written to storage; the caller owns it from here.
func (m *Manager) CreateIdentity(ctx context.Context, userData UserData) (Identity, ed25519.PrivateKey, error) {
	id, secret, err := MineIdentity(ctx, userData, m.config.Difficulty)
	if err != nil {
		return Identity{}, nil, err
	}
	if err := m.RegisterIdentity(id); err != nil {
		return Identity{}, nil, err
	}
	return id, secret, nil
}

// RegisterIdentity verifies an externally-mined identity's proof of
// work and persists it, rejecting a duplicate public key.
func (m *Manager) RegisterIdentity(id Identity) error {
	if !VerifyPOW(id) {
		return storeerr.New(storeerr.KindInvalidProofOfWork, "proof of work does not meet claimed difficulty")
	}
	if m.IdentityExists(id.PublicKey) {
		return storeerr.IdentityExists
	}
	doc, err := toDoc(id)
	if err != nil {
		return err
	}
	_, err = m.storage.Put(Namespace, identityPrefix+id.PublicKey, doc)
	return err
}

func (m *Manager) GetIdentity(publicKey string) (Identity, error) {
	vv, err := m.storage.Get(Namespace, identityPrefix+publicKey)
	if err != nil {
		return Identity{}, storeerr.IdentityNotFound
	}
	return fromDoc[Identity](vv.Value)
}

func (m *Manager) IdentityExists(publicKey string) bool {
	_, err := m.GetIdentity(publicKey)
	return err == nil
}

// IdentityHistory returns every past version of an identity record
// (e.g. successive UserData updates), oldest first.
func (m *Manager) IdentityHistory(publicKey string) ([]Identity, error) {
	entries, err := m.storage.History(Namespace, identityPrefix+publicKey)
	if err != nil {
		return nil, storeerr.IdentityNotFound
	}
	out := make([]Identity, 0, len(entries))
	for _, e := range entries {
		if id, err := fromDoc[Identity](e.Value); err == nil {
			out = append(out, id)
		}
	}
	return out, nil
}

// UpdateIdentity writes a new UserData for an existing identity,
// preserving the identity's public key, nonce, and proof of work; the
// write becomes a new version in the identity's history.
func (m *Manager) UpdateIdentity(publicKey string, userData UserData) (Identity, error) {
	id, err := m.GetIdentity(publicKey)
	if err != nil {
		return Identity{}, err
	}
	id.UserData = userData
	doc, err := toDoc(id)
	if err != nil {
		return Identity{}, err
	}
	if _, err := m.storage.Put(Namespace, identityPrefix+publicKey, doc); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// CreateChallenge issues a fresh authentication challenge for a known
// identity.
func (m *Manager) CreateChallenge(publicKey string) (string, error) {
	if !m.IdentityExists(publicKey) {
		return "", storeerr.IdentityNotFound
	}
	c, err := m.challenges.Create(publicKey)
	if err != nil {
		return "", err
	}
	return c.Challenge, nil
}

// VerifyAndCreateSession consumes the (single-use) challenge, verifies
// response as an Ed25519 signature over "challenge:{challenge}" under
// the identity's public key, and on success issues a session carrying a
// snapshot of the identity's currently active capabilities.
func (m *Manager) VerifyAndCreateSession(publicKey, challenge, response string) (Session, error) {
	if _, err := m.challenges.Consume(publicKey, challenge); err != nil {
		return Session{}, err
	}

	sig, err := base58.Decode(response)
	if err != nil {
		return Session{}, storeerr.New(storeerr.KindInvalidSignature, "decode challenge response")
	}
	ok, err := VerifySignature(publicKey, []byte("challenge:"+challenge), sig)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, storeerr.New(storeerr.KindInvalidSignature, "challenge response signature mismatch")
	}

	caps, err := m.ActiveCapabilities(publicKey)
	if err != nil {
		return Session{}, err
	}
	refs := make([]CapabilityRef, 0, len(caps))
	for _, cap := range caps {
		refs = append(refs, BuildCapabilityRef(cap))
	}

	session, _ := m.sessions.Create(publicKey, challenge, refs)
	return session, nil
}

func (m *Manager) ValidateSession(sessionID string) (Session, error) {
	return m.sessions.Validate(sessionID)
}

func (m *Manager) RevokeSession(sessionID string) error {
	return m.sessions.Revoke(sessionID)
}

func (m *Manager) RevokeAllSessions(identityKey string) int {
	return m.sessions.RevokeAllForIdentity(identityKey)
}

func (m *Manager) CreateSessionToken(sessionID string) (string, error) {
	keys, err := m.sessions.Keys(sessionID)
	if err != nil {
		return "", err
	}
	return CreateSessionToken(keys, time.Now())
}

func (m *Manager) ValidateSessionToken(token string, maxAge time.Duration) (Session, error) {
	sessionID, _, err := ValidateSessionToken(token, maxAge)
	if err != nil {
		return Session{}, err
	}
	return m.sessions.Validate(sessionID)
}

// Cleanup sweeps expired challenges and sessions, returning the counts
// removed from each.
func (m *Manager) Cleanup() (expiredChallenges, expiredSessions int) {
	return m.challenges.CleanupExpired(), m.sessions.CleanupExpired()
}

// GrantCapability signs and persists a capability granting permission
// on pattern from granter to grantee. Both identities must already be
// registered.
func (m *Manager) GrantCapability(granter Identity, granterSecretKey ed25519.PrivateKey, grantee string, pattern ResourcePattern, permission Permission, expiresAt *time.Time) (Capability, error) {
	if !m.IdentityExists(granter.PublicKey) {
		return Capability{}, storeerr.IdentityNotFound
	}
	if !m.IdentityExists(grantee) {
		return Capability{}, storeerr.IdentityNotFound
	}
	cap, err := NewCapability(granter, granterSecretKey, grantee, pattern, permission, expiresAt)
	if err != nil {
		return Capability{}, err
	}
	doc, err := toDoc(cap)
	if err != nil {
		return Capability{}, err
	}
	if _, err := m.storage.Put(Namespace, capabilityPrefix+cap.ID, doc); err != nil {
		return Capability{}, err
	}
	return cap, nil
}

// RevokeCapability signs and persists a revocation of cap. The caller
// is responsible for ensuring revokerSecretKey belongs to cap.Granter.
func (m *Manager) RevokeCapability(cap Capability, revokerSecretKey ed25519.PrivateKey, reason string) (Revocation, error) {
	rev, err := NewRevocation(cap, revokerSecretKey, reason)
	if err != nil {
		return Revocation{}, err
	}
	doc, err := toDoc(rev)
	if err != nil {
		return Revocation{}, err
	}
	if _, err := m.storage.Put(Namespace, revocationPrefix+cap.ID, doc); err != nil {
		return Revocation{}, err
	}
	return rev, nil
}

func (m *Manager) isRevoked(capabilityID string) bool {
	_, err := m.storage.Get(Namespace, revocationPrefix+capabilityID)
	return err == nil
}

func (m *Manager) allCapabilities() []Capability {
	var out []Capability
	for _, k := range m.storage.ListKeys(Namespace) {
		if !strings.HasPrefix(k, capabilityPrefix) {
			continue
		}
		vv, err := m.storage.Get(Namespace, k)
		if err != nil {
			continue
		}
		if cap, err := fromDoc[Capability](vv.Value); err == nil {
			out = append(out, cap)
		}
	}
	return out
}

// ActiveCapabilities returns every capability granted to identityKey
// that has not been revoked. Expired-but-unrevoked capabilities are
// still included; Authorize applies the expiry check.
func (m *Manager) ActiveCapabilities(identityKey string) ([]Capability, error) {
	var out []Capability
	for _, cap := range m.allCapabilities() {
		if cap.Grantee != identityKey {
			continue
		}
		if m.isRevoked(cap.ID) {
			continue
		}
		out = append(out, cap)
	}
	return out, nil
}

// GrantedCapabilities returns every non-revoked capability issued by
// granterKey.
func (m *Manager) GrantedCapabilities(granterKey string) ([]Capability, error) {
	var out []Capability
	for _, cap := range m.allCapabilities() {
		if cap.Granter != granterKey {
			continue
		}
		if m.isRevoked(cap.ID) {
			continue
		}
		out = append(out, cap)
	}
	return out, nil
}

// Authorize implements P9: a capability reference is returned iff a
// non-expired, non-revoked capability grants identityKey at least
// requiredPermission on (namespace, key).
func (m *Manager) Authorize(identityKey, namespace, key string, required Permission) (CapabilityRef, error) {
	caps, err := m.ActiveCapabilities(identityKey)
	if err != nil {
		return CapabilityRef{}, err
	}
	for _, cap := range caps {
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

func (m *Manager) CheckPermission(identityKey, namespace, key string, required Permission) bool {
	_, err := m.Authorize(identityKey, namespace, key, required)
	return err == nil
}

// Stats summarizes the manager's live auth state for observability.
type Stats struct {
	ActiveChallenges int
	ActiveSessions   int
	IdentityCount    int
	CapabilityCount  int
}

func (m *Manager) Stats() Stats {
	identities := 0
	capabilities := 0
	for _, k := range m.storage.ListKeys(Namespace) {
		switch {
		case strings.HasPrefix(k, identityPrefix):
			identities++
		case strings.HasPrefix(k, capabilityPrefix):
			capabilities++
		}
	}
	return Stats{
		ActiveChallenges: m.challenges.Len(),
		ActiveSessions:   m.sessions.Len(),
		IdentityCount:    identities,
		CapabilityCount:  capabilities,
	}
}
