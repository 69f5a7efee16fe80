// Package content implements the deterministic content-addressing scheme
// ("distinction IDs") that every write in KoruDelta is keyed by.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"

	"github.com/kittclouds/korudelta/internal/storeerr"
)

// VoidID is the well-known distinction ID for the empty byte sequence.
const VoidID = "0"

// RootID is the other reserved single-character ID, used as the implicit
// causal-graph root ancestor.
const RootID = "1"

// ToDistinction canonicalizes value to deterministic bytes (sorted object
// keys, canonical number form, no extraneous whitespace) and returns its
// distinction ID: the empty byte sequence maps to VoidID; any nonempty
// sequence is SHA-256 hashed and hex-encoded.
func ToDistinction(value any) (string, error) {
	b, err := CanonicalBytes(value)
	if err != nil {
		return "", storeerr.Wrap(storeerr.KindSerializationError, "canonicalize value", err)
	}
	return BytesToDistinction(b), nil
}

// BytesToDistinction hashes raw bytes to a distinction ID, mapping the
// empty sequence to VoidID exactly (not a hash of zero bytes).
func BytesToDistinction(b []byte) string {
	if len(b) == 0 {
		return VoidID
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CanonicalBytes renders value as deterministic JSON bytes: object keys
// sorted, no insignificant whitespace, numbers in their canonical Go JSON
// form. A nil value canonicalizes to the empty byte sequence.
func CanonicalBytes(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	canon, err := canonicalize(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(canon)
}

// canonicalize walks an arbitrary JSON-ish value (as produced by
// encoding/json unmarshal into any, or hand-built maps/slices) and
// returns a value whose map keys will marshal in sorted order.
func canonicalize(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			cv, err := canonicalize(v[k])
			if err != nil {
				return nil, err
			}
			out = append(out, kv{k, cv})
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			cv, err := canonicalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, storeerr.New(storeerr.KindInvalidData, "non-finite number cannot be canonicalized")
		}
		return v, nil
	default:
		return v, nil
	}
}

// kv is a single sorted key/value pair; orderedMap marshals as a JSON
// object preserving the insertion (i.e. sorted) order of its pairs,
// which a plain map[string]any cannot guarantee is stable across calls
// without re-sorting (encoding/json does sort map keys itself, but we
// canonicalize explicitly so nested canonicalization composes cleanly).
type kv struct {
	Key   string
	Value any
}

type orderedMap []kv

func (o orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, pair := range o {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(pair.Key)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(pair.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// ValidateDistinctionID reports whether id is a well-formed distinction
// ID: 64 lowercase hex characters, or one of the two special IDs "0"/"1".
func ValidateDistinctionID(id string) bool {
	if id == VoidID || id == RootID {
		return true
	}
	if len(id) != 64 {
		return false
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
