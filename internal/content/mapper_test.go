package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDistinction_EmptyMapsToVoid(t *testing.T) {
	id, err := ToDistinction(nil)
	require.NoError(t, err)
	assert.Equal(t, VoidID, id)
}

func TestToDistinction_Deterministic(t *testing.T) {
	a := map[string]any{"name": "Alice", "age": float64(30)}
	b := map[string]any{"age": float64(30), "name": "Alice"}

	idA, err := ToDistinction(a)
	require.NoError(t, err)
	idB, err := ToDistinction(b)
	require.NoError(t, err)

	assert.Equal(t, idA, idB, "key order must not affect the distinction ID")
}

func TestToDistinction_DistinctContent(t *testing.T) {
	idA, err := ToDistinction(map[string]any{"x": float64(1)})
	require.NoError(t, err)
	idB, err := ToDistinction(map[string]any{"x": float64(2)})
	require.NoError(t, err)

	assert.NotEqual(t, idA, idB)
}

func TestToDistinction_NestedObjectsSortRecursively(t *testing.T) {
	a := map[string]any{"outer": map[string]any{"b": 1.0, "a": 2.0}}
	b := map[string]any{"outer": map[string]any{"a": 2.0, "b": 1.0}}

	idA, err := ToDistinction(a)
	require.NoError(t, err)
	idB, err := ToDistinction(b)
	require.NoError(t, err)
	assert.Equal(t, idA, idB)
}

func TestValidateDistinctionID(t *testing.T) {
	cases := []struct {
		name string
		id   string
		want bool
	}{
		{"void", "0", true},
		{"root", "1", true},
		{"valid hex", "abcd0123456789abcd0123456789abcd0123456789abcd0123456789abcdabcd", true},
		{"too short", "abcd", false},
		{"uppercase rejected", "ABCD0123456789ABCD0123456789ABCD0123456789ABCD0123456789ABCDABCD", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ValidateDistinctionID(tc.id))
		})
	}
}

func TestBytesToDistinction_EmptyIsVoid(t *testing.T) {
	assert.Equal(t, VoidID, BytesToDistinction(nil))
	assert.Equal(t, VoidID, BytesToDistinction([]byte{}))
}
