package hnsw_test

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"testing"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/korudelta/internal/vector"
	"github.com/kittclouds/korudelta/internal/vector/hnsw"
)

// bruteForceOracle wraps sqlite-vec's vec0 virtual table as an exact
// brute-force KNN oracle, used only here to measure HNSW's approximate
// recall@10 — never part of the runtime search path.
type bruteForceOracle struct {
	db  *sql.DB
	dim int
}

func newBruteForceOracle(t *testing.T, dim int) *bruteForceOracle {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(fmt.Sprintf(
		"CREATE VIRTUAL TABLE vec_items USING vec0(embedding float[%d])", dim))
	require.NoError(t, err)

	return &bruteForceOracle{db: db, dim: dim}
}

func (o *bruteForceOracle) insert(t *testing.T, rowid int64, vec []float32) {
	t.Helper()
	payload, err := json.Marshal(vec)
	require.NoError(t, err)
	_, err = o.db.Exec(
		"INSERT INTO vec_items(rowid, embedding) VALUES (?, ?)", rowid, string(payload))
	require.NoError(t, err)
}

func (o *bruteForceOracle) knn(t *testing.T, query []float32, k int) []int64 {
	t.Helper()
	payload, err := json.Marshal(query)
	require.NoError(t, err)

	rows, err := o.db.Query(
		"SELECT rowid FROM vec_items WHERE embedding MATCH ? AND k = ? ORDER BY distance",
		string(payload), k)
	require.NoError(t, err)
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		out = append(out, id)
	}
	require.NoError(t, rows.Err())
	return out
}

func (o *bruteForceOracle) close() { o.db.Close() }

// P10: for randomly generated unit vectors in dimension d with N inserts
// and ef_search >= 50, recall@10 >= 0.90 against an exact oracle.
func TestHNSWRecallFloor(t *testing.T) {
	const (
		dim = 32
		n   = 1000
		k   = 10
	)

	rng := rand.New(rand.NewSource(7))
	vectors := make([][]float32, n)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		v := randomUnitVector(rng, dim)
		vectors[i] = v
		ids[i] = fmt.Sprintf("vec-%d", i)
	}

	oracle := newBruteForceOracle(t, dim)
	defer oracle.close()

	cfg := hnsw.DefaultConfig()
	cfg.EfSearch = 100
	idx := hnsw.New(cfg, 42)

	for i, v := range vectors {
		require.NoError(t, idx.Add(ids[i], vector.New(v, "test")))
		oracle.insert(t, int64(i), v)
	}

	const queries = 20
	var totalRecall float64
	for q := 0; q < queries; q++ {
		query := randomUnitVector(rng, dim)
		queryVec := vector.New(query, "test")

		approx := idx.Search(queryVec, k)
		approxSet := make(map[string]struct{}, len(approx))
		for _, r := range approx {
			approxSet[r.ID] = struct{}{}
		}

		exactRowIDs := oracle.knn(t, query, k)
		hits := 0
		for _, rid := range exactRowIDs {
			if _, ok := approxSet[ids[rid]]; ok {
				hits++
			}
		}
		if len(exactRowIDs) > 0 {
			totalRecall += float64(hits) / float64(len(exactRowIDs))
		}
	}

	avgRecall := totalRecall / queries
	require.GreaterOrEqualf(t, avgRecall, 0.90, "recall@%d = %f below floor", k, avgRecall)
}

func randomUnitVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var sumSq float64
	for i := range v {
		v[i] = float32(rng.NormFloat64())
		sumSq += float64(v[i]) * float64(v[i])
	}
	mag := float32(1.0)
	if sumSq > 0 {
		mag = float32(1.0 / math.Sqrt(sumSq))
	}
	for i := range v {
		v[i] *= mag
	}
	return v
}
