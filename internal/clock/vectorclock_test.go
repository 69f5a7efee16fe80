package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncrement(t *testing.T) {
	c := New()
	c = c.Increment("n1")
	c = c.Increment("n1")
	assert.Equal(t, uint64(2), c["n1"])
}

func TestMergeIsElementwiseMax(t *testing.T) {
	a := Clock{"n1": 2, "n2": 1}
	b := Clock{"n1": 1, "n2": 3, "n3": 5}

	merged := a.Merge(b)
	assert.Equal(t, Clock{"n1": 2, "n2": 3, "n3": 5}, merged)
}

// P7: compare(merge(a,b), a) is Greater or Equal for any a, b.
func TestCompareMergeIsGreaterOrEqual(t *testing.T) {
	a := Clock{"n1": 1}
	b := Clock{"n2": 1}

	merged := a.Merge(b)
	ord := Compare(merged, a)
	assert.Contains(t, []Ordering{Greater, Equal}, ord)
}

func TestCompareConcurrent(t *testing.T) {
	a := Clock{"n1": 1, "n2": 0}
	b := Clock{"n1": 0, "n2": 1}
	assert.Equal(t, Concurrent, Compare(a, b))
}

func TestCompareEqual(t *testing.T) {
	a := Clock{"n1": 1}
	b := Clock{"n1": 1}
	assert.Equal(t, Equal, Compare(a, b))
}

func TestHappensBefore(t *testing.T) {
	a := Clock{"n1": 1}
	b := Clock{"n1": 1, "n2": 1}
	assert.True(t, HappensBefore(a, b))
	assert.False(t, HappensBefore(b, a))
	assert.False(t, HappensBefore(a, a))
}

func TestDominates(t *testing.T) {
	a := Clock{"n1": 2}
	b := Clock{"n1": 1}
	assert.True(t, Dominates(a, b))
	assert.False(t, Dominates(b, a))
}
