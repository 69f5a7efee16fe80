// Package config loads KoruDelta's runtime configuration from YAML,
// falling back to the numeric defaults named throughout the design.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// HNSW holds the tunables for the approximate nearest-neighbor index.
type HNSW struct {
	M             int `yaml:"m"`
	EfConstruction int `yaml:"ef_construction"`
	EfSearch      int `yaml:"ef_search"`
}

// VectorIndex holds the causal vector index snapshot policy.
type VectorIndex struct {
	SnapshotThreshold int `yaml:"snapshot_threshold"`
	MaxSnapshots      int `yaml:"max_snapshots"`
}

// Auth holds identity and session policy.
type Auth struct {
	PowDifficulty        int           `yaml:"pow_difficulty"`
	ChallengeTTL         time.Duration `yaml:"challenge_ttl"`
	SessionTTL           time.Duration `yaml:"session_ttl"`
	MaxSessionTTL        time.Duration `yaml:"max_session_ttl"`
}

// Replication holds anti-entropy and peer-liveness policy.
type Replication struct {
	AntiEntropyInterval time.Duration `yaml:"anti_entropy_interval"`
	PeerTimeout         time.Duration `yaml:"peer_timeout"`
}

// Query holds materialized-view refresh policy.
type Query struct {
	ViewRefreshDebounce time.Duration `yaml:"view_refresh_debounce"`
}

// Config is the top-level configuration for a KoruDelta store instance.
type Config struct {
	DataDir     string      `yaml:"data_dir"`
	NodeID      string      `yaml:"node_id"`
	HNSW        HNSW        `yaml:"hnsw"`
	VectorIndex VectorIndex `yaml:"vector_index"`
	Auth        Auth        `yaml:"auth"`
	Replication Replication `yaml:"replication"`
	Query       Query       `yaml:"query"`
}

// Default returns the configuration with every numeric default named in
// the design (PoW difficulty 4, challenge TTL 300s, session TTL 86400s,
// HNSW M=16/ef_construction=200/ef_search=50, snapshot_threshold 100,
// max_snapshots 10, anti-entropy interval 30s, peer timeout 5s).
func Default() Config {
	return Config{
		DataDir: "./data",
		NodeID:  "node-1",
		HNSW: HNSW{
			M:              16,
			EfConstruction: 200,
			EfSearch:       50,
		},
		VectorIndex: VectorIndex{
			SnapshotThreshold: 100,
			MaxSnapshots:      10,
		},
		Auth: Auth{
			PowDifficulty: 4,
			ChallengeTTL:  5 * time.Minute,
			SessionTTL:    24 * time.Hour,
			MaxSessionTTL: 30 * 24 * time.Hour,
		},
		Replication: Replication{
			AntiEntropyInterval: 30 * time.Second,
			PeerTimeout:         5 * time.Second,
		},
		Query: Query{
			ViewRefreshDebounce: 100 * time.Millisecond,
		},
	}
}

// Load reads a YAML configuration file, overlaying it onto Default() so
// an incomplete file still produces sane values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
