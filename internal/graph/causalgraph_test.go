package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddNodeIdempotent(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("a")
	assert.Equal(t, 1, g.NodeCount())
}

func TestAddEdgeRequiresBothEndpoints(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddEdge("a", "b") // b missing: no-op

	assert.Empty(t, g.Descendants("a"))
}

func TestAddEdgeRejectsSelfLoop(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddEdge("a", "a")
	assert.Empty(t, g.Descendants("a"))
	assert.Empty(t, g.Ancestors("a"))
}

func TestAddEdgeIgnoresDuplicates(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("b")
	g.AddEdge("a", "b")
	g.AddEdge("a", "b")

	desc := g.Descendants("a")
	assert.Len(t, desc, 1)
}

func TestAncestorsAndDescendantsTransitive(t *testing.T) {
	g := New()
	for _, n := range []string{"a", "b", "c", "d"} {
		g.AddNode(n)
	}
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "d")

	anc := g.Ancestors("d")
	assert.Contains(t, anc, "a")
	assert.Contains(t, anc, "b")
	assert.Contains(t, anc, "c")

	desc := g.Descendants("a")
	assert.Contains(t, desc, "b")
	assert.Contains(t, desc, "c")
	assert.Contains(t, desc, "d")
}

func TestUnknownIDReturnsEmptySets(t *testing.T) {
	g := New()
	assert.Empty(t, g.Ancestors("nonexistent"))
	assert.Empty(t, g.Descendants("nonexistent"))
	assert.False(t, g.Contains("nonexistent"))
}
