package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/mr-tron/base58"

	"github.com/kittclouds/korudelta/internal/content"
	"github.com/kittclouds/korudelta/internal/storeerr"
)

// powCheckInterval bounds how many nonces MineIdentity tries between
// context-cancellation checks, so a cancelled mine returns promptly
// without paying a ctx.Err() call on every iteration.
const powCheckInterval = 4096

// Difficulty bounds for identity mining. DefaultDifficulty is tuned so
// mining costs roughly one second on commodity hardware.
const (
	MinDifficulty     = 1
	DefaultDifficulty = 4
	MaxDifficulty     = 8
)

// MineIdentity generates a fresh Ed25519 keypair and varies a nonce
// until SHA-256 of the canonicalized identity (with ProofHash treated
// as blank) has at least difficulty leading hex zeros. Returns the
// mined identity and its secret key; the secret key is never persisted
// by anything in this package. Mining is CPU-bound and can run for a
// noticeable fraction of a second at the default difficulty, so it
// checks ctx periodically and aborts with ctx.Err() if cancelled.
func MineIdentity(ctx context.Context, userData UserData, difficulty uint8) (Identity, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, nil, storeerr.Wrap(storeerr.KindInvalidData, "generate ed25519 keypair", err)
	}

	id := Identity{
		PublicKey:  base58.Encode(pub),
		UserData:   userData,
		Difficulty: difficulty,
		CreatedAt:  time.Now(),
	}

	for nonce := uint64(0); ; nonce++ {
		if nonce%powCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Identity{}, nil, err
			}
		}
		id.Nonce = nonce
		id.ProofHash = ""
		hash, err := identityProofHash(id)
		if err != nil {
			return Identity{}, nil, err
		}
		if leadingHexZeros(hash) >= int(difficulty) {
			id.ProofHash = hex.EncodeToString(hash)
			return id, priv, nil
		}
	}
}

// VerifyPOW recomputes the proof-of-work hash for id and reports
// whether it matches id.ProofHash and meets id.Difficulty.
func VerifyPOW(id Identity) bool {
	candidate := id
	candidate.ProofHash = ""
	hash, err := identityProofHash(candidate)
	if err != nil {
		return false
	}
	if hex.EncodeToString(hash) != id.ProofHash {
		return false
	}
	return leadingHexZeros(hash) >= int(id.Difficulty)
}

func identityProofHash(id Identity) ([]byte, error) {
	doc, err := toDoc(id)
	if err != nil {
		return nil, err
	}
	b, err := content.CanonicalBytes(doc)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(b)
	return sum[:], nil
}

func leadingHexZeros(hash []byte) int {
	hexStr := hex.EncodeToString(hash)
	count := 0
	for _, c := range hexStr {
		if c != '0' {
			break
		}
		count++
	}
	return count
}

// EstimateHashRate returns a rough hashes-per-second figure for
// difficulty estimation UIs, based on a short calibration mine at a
// low, fixed difficulty.
func EstimateHashRate() (float64, error) {
	const calibrationDifficulty = 1
	start := time.Now()
	if _, _, err := MineIdentity(context.Background(), UserData{}, calibrationDifficulty); err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	if elapsed <= 0 {
		return 0, nil
	}
	// Expected hashes to clear calibrationDifficulty hex zeros: 16^difficulty.
	expected := 1.0
	for i := 0; i < calibrationDifficulty; i++ {
		expected *= 16
	}
	return expected / elapsed.Seconds(), nil
}

// EstimateMiningTimeMS estimates mining duration for difficulty given a
// previously measured hashRate (hashes/sec).
func EstimateMiningTimeMS(difficulty uint8, hashRate float64) float64 {
	if hashRate <= 0 {
		return 0
	}
	expected := 1.0
	for i := 0; i < int(difficulty); i++ {
		expected *= 16
	}
	return (expected / hashRate) * 1000
}

// SignMessage signs message with an Ed25519 secret key.
func SignMessage(secretKey ed25519.PrivateKey, message []byte) ([]byte, error) {
	if len(secretKey) != ed25519.PrivateKeySize {
		return nil, storeerr.New(storeerr.KindInvalidKeyFormat, "secret key must be 64 bytes")
	}
	return ed25519.Sign(secretKey, message), nil
}

// SignMessageBase58 signs message and base58-encodes the signature.
func SignMessageBase58(secretKey ed25519.PrivateKey, message []byte) (string, error) {
	sig, err := SignMessage(secretKey, message)
	if err != nil {
		return "", err
	}
	return base58.Encode(sig), nil
}

// VerifySignature verifies a signature against a base58-encoded Ed25519
// public key.
func VerifySignature(publicKeyB58 string, message, signature []byte) (bool, error) {
	pub, err := base58.Decode(publicKeyB58)
	if err != nil {
		return false, storeerr.Wrap(storeerr.KindInvalidKeyFormat, "decode public key", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, storeerr.New(storeerr.KindInvalidKeyFormat, "public key must be 32 bytes")
	}
	return ed25519.Verify(pub, message, signature), nil
}

// toDoc round-trips v through JSON into a map[string]any so it can be
// stored through the causal storage engine (which content-addresses
// documents, not Go structs) and canonicalized deterministically.
func toDoc(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, storeerr.Wrap(storeerr.KindSerializationError, "marshal", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, storeerr.Wrap(storeerr.KindSerializationError, "unmarshal", err)
	}
	return doc, nil
}

// fromDoc is the inverse of toDoc, decoding a stored document back into
// a typed value.
func fromDoc[T any](doc any) (T, error) {
	var out T
	b, err := json.Marshal(doc)
	if err != nil {
		return out, storeerr.Wrap(storeerr.KindSerializationError, "marshal", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, storeerr.Wrap(storeerr.KindSerializationError, "unmarshal", err)
	}
	return out, nil
}
