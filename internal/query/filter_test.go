package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(fields map[string]any) map[string]any { return fields }

func TestEqMatchesNumberAndString(t *testing.T) {
	d := doc(map[string]any{"age": float64(30), "name": "Alice"})

	assert.True(t, Eq{Field: "age", Value: float64(30)}.Evaluate(d))
	assert.True(t, Eq{Field: "name", Value: "Alice"}.Evaluate(d))
	assert.False(t, Eq{Field: "age", Value: float64(31)}.Evaluate(d))
}

func TestEqNullOnlyMatchesNull(t *testing.T) {
	d := doc(map[string]any{"x": nil, "y": float64(1)})

	assert.True(t, Eq{Field: "x", Value: nil}.Evaluate(d))
	assert.False(t, Eq{Field: "y", Value: nil}.Evaluate(d))
	assert.False(t, Eq{Field: "missing", Value: float64(0)}.Evaluate(d))
}

func TestBooleanEqualityOnly(t *testing.T) {
	d := doc(map[string]any{"active": true})
	assert.True(t, Eq{Field: "active", Value: true}.Evaluate(d))
	assert.False(t, Eq{Field: "active", Value: false}.Evaluate(d))
}

func TestOrdinalComparisons(t *testing.T) {
	d := doc(map[string]any{"score": float64(10), "name": "banana"})

	assert.True(t, Gt{Field: "score", Value: float64(5)}.Evaluate(d))
	assert.True(t, Gte{Field: "score", Value: float64(10)}.Evaluate(d))
	assert.True(t, Lt{Field: "score", Value: float64(20)}.Evaluate(d))
	assert.True(t, Lte{Field: "score", Value: float64(10)}.Evaluate(d))
	assert.True(t, Gt{Field: "name", Value: "apple"}.Evaluate(d))
}

func TestAndOrNotCombinators(t *testing.T) {
	d := doc(map[string]any{"age": float64(30), "active": true})

	and := And{Eq{Field: "age", Value: float64(30)}, Eq{Field: "active", Value: true}}
	assert.True(t, and.Evaluate(d))

	or := Or{Eq{Field: "age", Value: float64(1)}, Eq{Field: "active", Value: true}}
	assert.True(t, or.Evaluate(d))

	not := Not{Filter: Eq{Field: "active", Value: false}}
	assert.True(t, not.Evaluate(d))
}

func TestContainsAnyMatchesOnePattern(t *testing.T) {
	f, err := NewContainsAny("body", []string{"dragon", "castle"})
	require.NoError(t, err)

	assert.True(t, f.Evaluate(doc(map[string]any{"body": "a castle on the hill"})))
	assert.False(t, f.Evaluate(doc(map[string]any{"body": "a quiet village"})))
}

func TestTextSearchIgnoresStopwords(t *testing.T) {
	f := NewTextSearch("body", "the lost city")
	assert.True(t, f.Evaluate(doc(map[string]any{"body": "they found the ancient lost city ruins"})))
	assert.False(t, f.Evaluate(doc(map[string]any{"body": "a lost dog"})))
}
