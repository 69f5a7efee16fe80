// Package vector implements the vector core (C4): the immutable Vector
// value type, its similarity/distance operations, and the deterministic
// synthesize-from-content fallback embedding.
package vector

import (
	"crypto/sha256"
	"math"
	"sort"

	"github.com/kittclouds/korudelta/internal/content"
)

// Vector is an immutable embedding: a float32 payload tagged with the
// name of the model that produced it. Two vectors are only comparable
// when their Model values match.
type Vector struct {
	Data  []float32
	Model string
}

// New constructs a Vector, copying data so callers cannot mutate it
// afterward through their own reference.
func New(data []float32, model string) Vector {
	cp := make([]float32, len(data))
	copy(cp, data)
	return Vector{Data: cp, Model: model}
}

func (v Vector) magnitude() float64 {
	var sum float64
	for _, x := range v.Data {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns the cosine similarity of v and other, or
// false if their dimensions differ. A zero vector yields similarity 0
// rather than NaN.
func (v Vector) CosineSimilarity(other Vector) (float32, bool) {
	if len(v.Data) != len(other.Data) {
		return 0, false
	}
	magA, magB := v.magnitude(), other.magnitude()
	if magA == 0 || magB == 0 {
		return 0, true
	}

	var dot float64
	for i := range v.Data {
		dot += float64(v.Data[i]) * float64(other.Data[i])
	}
	return float32(dot / (magA * magB)), true
}

// EuclideanDistance returns the Euclidean distance between v and other,
// or false if their dimensions differ.
func (v Vector) EuclideanDistance(other Vector) (float32, bool) {
	if len(v.Data) != len(other.Data) {
		return 0, false
	}
	var sum float64
	for i := range v.Data {
		d := float64(v.Data[i]) - float64(other.Data[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum)), true
}

// DotProduct returns the dot product of v and other, or false if their
// dimensions differ.
func (v Vector) DotProduct(other Vector) (float32, bool) {
	if len(v.Data) != len(other.Data) {
		return 0, false
	}
	var sum float64
	for i := range v.Data {
		sum += float64(v.Data[i]) * float64(other.Data[i])
	}
	return float32(sum), true
}

// SynthesizeDim is the fixed dimensionality of synthesized embeddings.
const SynthesizeDim = 128

// SynthesizeModel names the pseudo-model used for vectors produced by
// SynthesizeFromContent, so callers can tell a real embedding from a
// fallback one via the model filter.
const SynthesizeModel = "synthesize-v1"

// SynthesizeFromContent deterministically derives a 128-dim unit vector
// from value, for test seeding and as a fallback embedding when no real
// model is available. It partitions dimensions into four bands:
//   - [0,32): fractional bytes of the content hash
//   - [32,48): structural statistics (type counts, depth, size)
//   - [48,80): hashed field-name fingerprints
//   - [80,128): byte-derived tail
//
// The result is L2-normalized. It is not a learned model.
func SynthesizeFromContent(value any) (Vector, error) {
	hashBytes, err := hashOf(value)
	if err != nil {
		return Vector{}, err
	}

	data := make([]float32, SynthesizeDim)

	// Band 1: [0,32) content-hash byte fractions.
	for i := 0; i < 32; i++ {
		data[i] = float32(hashBytes[i%len(hashBytes)]) / 255.0
	}

	// Band 2: [32,48) structural statistics.
	stats := structuralStats(value)
	for i := 0; i < 16; i++ {
		data[32+i] = stats[i%len(stats)]
	}

	// Band 3: [48,80) hashed field-name fingerprints.
	fields := fieldNames(value)
	sort.Strings(fields)
	fieldHash := sha256.Sum256([]byte(joinStrings(fields)))
	for i := 0; i < 32; i++ {
		data[48+i] = float32(fieldHash[i%len(fieldHash)]) / 255.0
	}

	// Band 4: [80,128) byte-derived tail.
	for i := 0; i < 48; i++ {
		data[80+i] = float32(hashBytes[(i+len(hashBytes)/2)%len(hashBytes)]) / 255.0
	}

	return normalize(New(data, SynthesizeModel)), nil
}

func hashOf(value any) ([]byte, error) {
	b, err := content.CanonicalBytes(value)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(b)
	return sum[:], nil
}

func structuralStats(value any) []float32 {
	var objCount, arrCount, strCount, numCount, maxDepth, totalSize int
	var walk func(v any, depth int)
	walk = func(v any, depth int) {
		if depth > maxDepth {
			maxDepth = depth
		}
		totalSize++
		switch vv := v.(type) {
		case map[string]any:
			objCount++
			for _, child := range vv {
				walk(child, depth+1)
			}
		case []any:
			arrCount++
			for _, child := range vv {
				walk(child, depth+1)
			}
		case string:
			strCount++
		case float64:
			numCount++
		}
	}
	walk(value, 0)

	norm := func(n int) float32 { return float32(n) / float32(1+n) }
	return []float32{
		norm(objCount), norm(arrCount), norm(strCount), norm(numCount),
		norm(maxDepth), norm(totalSize),
	}
}

func fieldNames(value any) []string {
	var names []string
	var walk func(v any)
	walk = func(v any) {
		switch vv := v.(type) {
		case map[string]any:
			for k, child := range vv {
				names = append(names, k)
				walk(child)
			}
		case []any:
			for _, child := range vv {
				walk(child)
			}
		}
	}
	walk(value)
	return names
}

func joinStrings(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func normalize(v Vector) Vector {
	mag := v.magnitude()
	if mag == 0 {
		return v
	}
	out := make([]float32, len(v.Data))
	for i, x := range v.Data {
		out[i] = float32(float64(x) / mag)
	}
	return Vector{Data: out, Model: v.Model}
}
