package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/hkdf"

	"github.com/kittclouds/korudelta/internal/storeerr"
)

// Default and bounding TTLs for challenges and sessions.
const (
	DefaultChallengeTTL = 5 * time.Minute
	DefaultSessionTTL   = 24 * time.Hour
	MaxSessionTTL       = 30 * 24 * time.Hour
	challengeNonceSize  = 32
)

// SessionKeys are the pair of 32-byte keys derived from a successful
// challenge response via HKDF-SHA256.
type SessionKeys struct {
	EncryptionKey [32]byte
	AuthKey       [32]byte
}

// DeriveSessionKeys derives a session's encryption and authentication
// keys from the identity's public key and the challenge it solved. IKM
// is "{identityKey}:{challenge}", salt is SHA-256(IKM), and the 64-byte
// HKDF output is split into encryption_key||auth_key under the fixed
// info string "koru-session-v1". Deterministic: the same (identityKey,
// challenge) pair always yields the same keys, which is what lets a
// session_id (bs58 of auth_key) double as a lookup handle.
func DeriveSessionKeys(identityKey, challenge string) SessionKeys {
	ikm := []byte(identityKey + ":" + challenge)
	salt := sha256.Sum256(ikm)
	kdf := hkdf.New(sha256.New, ikm, salt[:], []byte("koru-session-v1"))

	okm := make([]byte, 64)
	_, _ = io.ReadFull(kdf, okm) // HKDF-expand cannot fail for this fixed size

	var keys SessionKeys
	copy(keys.EncryptionKey[:], okm[0:32])
	copy(keys.AuthKey[:], okm[32:64])
	return keys
}

// ChallengeStore issues and single-use-consumes authentication
// challenges, keyed by identity so two identities can never collide on
// the same random challenge string.
type ChallengeStore struct {
	challenges cmap.ConcurrentMap[string, Challenge]
	ttl        time.Duration
}

func NewChallengeStore(ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{challenges: cmap.New[Challenge](), ttl: ttl}
}

func challengeMapKey(identityKey, challenge string) string {
	return identityKey + ":" + challenge
}

// Create mints a fresh 32-byte random challenge for identityKey.
func (s *ChallengeStore) Create(identityKey string) (Challenge, error) {
	raw := make([]byte, challengeNonceSize)
	if _, err := rand.Read(raw); err != nil {
		return Challenge{}, storeerr.Wrap(storeerr.KindStorageError, "generate challenge", err)
	}
	now := time.Now()
	c := Challenge{
		IdentityKey: identityKey,
		Challenge:   base58.Encode(raw),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	s.challenges.Set(challengeMapKey(identityKey, c.Challenge), c)
	return c, nil
}

// Consume atomically removes and returns the challenge, failing if it
// was never issued, already consumed, or has expired. A challenge can
// only ever be consumed once.
func (s *ChallengeStore) Consume(identityKey, challenge string) (Challenge, error) {
	c, ok := s.challenges.Pop(challengeMapKey(identityKey, challenge))
	if !ok {
		return Challenge{}, storeerr.ChallengeExpired
	}
	if c.IsExpired() {
		return Challenge{}, storeerr.ChallengeExpired
	}
	return c, nil
}

// CleanupExpired removes every expired, unconsumed challenge and
// returns the count removed.
func (s *ChallengeStore) CleanupExpired() int {
	removed := 0
	now := time.Now()
	for item := range s.challenges.IterBuffered() {
		if item.Val.ExpiresAt.Before(now) {
			s.challenges.Remove(item.Key)
			removed++
		}
	}
	return removed
}

func (s *ChallengeStore) Len() int { return s.challenges.Count() }

type sessionEntry struct {
	session Session
	keys    SessionKeys
}

// SessionManager holds live sessions and the HKDF-derived keys behind
// them, in memory only — per spec, sessions are not part of the
// persisted causal history (only identities, capabilities, and
// revocations are).
type SessionManager struct {
	sessions cmap.ConcurrentMap[string, sessionEntry]
	ttl      time.Duration
}

func NewSessionManager(ttl time.Duration) *SessionManager {
	if ttl > MaxSessionTTL {
		ttl = MaxSessionTTL
	}
	return &SessionManager{sessions: cmap.New[sessionEntry](), ttl: ttl}
}

// Create derives session keys from (identityKey, challenge) and
// registers a new session carrying caps.
func (m *SessionManager) Create(identityKey, challenge string, caps []CapabilityRef) (Session, SessionKeys) {
	now := time.Now()
	keys := DeriveSessionKeys(identityKey, challenge)
	sessionID := base58.Encode(keys.AuthKey[:])
	session := Session{
		SessionID:    sessionID,
		IdentityKey:  identityKey,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
		Capabilities: caps,
	}
	m.sessions.Set(sessionID, sessionEntry{session: session, keys: keys})
	return session, keys
}

func (m *SessionManager) get(sessionID string) (sessionEntry, error) {
	entry, ok := m.sessions.Get(sessionID)
	if !ok {
		return sessionEntry{}, storeerr.SessionExpired
	}
	if entry.session.IsExpired() {
		m.sessions.Remove(sessionID)
		return sessionEntry{}, storeerr.SessionExpired
	}
	return entry, nil
}

func (m *SessionManager) Validate(sessionID string) (Session, error) {
	entry, err := m.get(sessionID)
	if err != nil {
		return Session{}, err
	}
	return entry.session, nil
}

func (m *SessionManager) Keys(sessionID string) (SessionKeys, error) {
	entry, err := m.get(sessionID)
	if err != nil {
		return SessionKeys{}, err
	}
	return entry.keys, nil
}

func (m *SessionManager) Revoke(sessionID string) error {
	if _, ok := m.sessions.Pop(sessionID); !ok {
		return storeerr.SessionExpired
	}
	return nil
}

func (m *SessionManager) RevokeAllForIdentity(identityKey string) int {
	removed := 0
	for item := range m.sessions.IterBuffered() {
		if item.Val.session.IdentityKey == identityKey {
			m.sessions.Remove(item.Key)
			removed++
		}
	}
	return removed
}

func (m *SessionManager) CleanupExpired() int {
	removed := 0
	now := time.Now()
	for item := range m.sessions.IterBuffered() {
		if item.Val.session.ExpiresAt.Before(now) {
			m.sessions.Remove(item.Key)
			removed++
		}
	}
	return removed
}

func (m *SessionManager) IdentitySessions(identityKey string) []Session {
	var out []Session
	for item := range m.sessions.IterBuffered() {
		if item.Val.session.IdentityKey == identityKey {
			out = append(out, item.Val.session)
		}
	}
	return out
}

func (m *SessionManager) Len() int { return m.sessions.Count() }

// CreateSessionToken produces a stateless, HMAC-signed bearer token of
// the form "{bs58(auth_key)}.{unix_ts}.{bs58(signature)}" so a client
// can re-authenticate a request without the server holding session
// state, as long as it still holds keys.AuthKey.
func CreateSessionToken(keys SessionKeys, timestamp time.Time) (string, error) {
	ts := timestamp.Unix()
	mac := hmac.New(sha256.New, keys.AuthKey[:])
	mac.Write([]byte(fmt.Sprintf("session:%d", ts)))
	sig := mac.Sum(nil)
	return fmt.Sprintf("%s.%d.%s", base58.Encode(keys.AuthKey[:]), ts, base58.Encode(sig)), nil
}

// ValidateSessionToken parses and verifies a token produced by
// CreateSessionToken, rejecting it if malformed, older than maxAge, or
// signed under a mismatched auth key. Returns the session ID (bs58 auth
// key) and the token's timestamp on success.
func ValidateSessionToken(token string, maxAge time.Duration) (string, time.Time, error) {
	parts := strings.SplitN(token, ".", 3)
	if len(parts) != 3 {
		return "", time.Time{}, storeerr.New(storeerr.KindInvalidSignature, "malformed session token")
	}
	sessionID, tsField, sigField := parts[0], parts[1], parts[2]

	tsSecs, err := strconv.ParseInt(tsField, 10, 64)
	if err != nil {
		return "", time.Time{}, storeerr.New(storeerr.KindInvalidSignature, "malformed session token timestamp")
	}
	timestamp := time.Unix(tsSecs, 0).UTC()
	if time.Since(timestamp) > maxAge {
		return "", time.Time{}, storeerr.SessionExpired
	}

	authKey, err := base58.Decode(sessionID)
	if err != nil {
		return "", time.Time{}, storeerr.New(storeerr.KindInvalidKeyFormat, "malformed session id")
	}
	sig, err := base58.Decode(sigField)
	if err != nil {
		return "", time.Time{}, storeerr.New(storeerr.KindInvalidSignature, "malformed session token signature")
	}

	mac := hmac.New(sha256.New, authKey)
	mac.Write([]byte(fmt.Sprintf("session:%d", tsSecs)))
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, sig) {
		return "", time.Time{}, storeerr.New(storeerr.KindInvalidSignature, "session token signature mismatch")
	}

	return sessionID, timestamp, nil
}
