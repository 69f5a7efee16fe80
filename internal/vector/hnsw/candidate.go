package hnsw

import "github.com/kittclouds/korudelta/internal/storeerr"

var errModelMismatch = storeerr.New(storeerr.KindInvalidData, "vector model does not match index model filter")

// Candidate is a single node under consideration during beam search,
// tagged with its distance to the query vector.
type Candidate struct {
	ID       string
	Distance float32
}

// minCandidateHeap pops the smallest-distance candidate first; used as
// the beam search's frontier.
type minCandidateHeap []Candidate

func (h minCandidateHeap) Len() int            { return len(h) }
func (h minCandidateHeap) Less(i, j int) bool   { return h[i].Distance < h[j].Distance }
func (h minCandidateHeap) Swap(i, j int)        { h[i], h[j] = h[j], h[i] }
func (h *minCandidateHeap) Push(x any)          { *h = append(*h, x.(Candidate)) }
func (h *minCandidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// maxCandidateHeap pops the largest-distance candidate first; used to
// track the current worst-of-the-best-ef result set so it can be
// evicted when a closer candidate is found.
type maxCandidateHeap []Candidate

func (h maxCandidateHeap) Len() int            { return len(h) }
func (h maxCandidateHeap) Less(i, j int) bool   { return h[i].Distance > h[j].Distance }
func (h maxCandidateHeap) Swap(i, j int)        { h[i], h[j] = h[j], h[i] }
func (h *maxCandidateHeap) Push(x any)          { *h = append(*h, x.(Candidate)) }
func (h *maxCandidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
