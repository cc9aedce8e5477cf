package index

import (
	"context"
	"time"

	"resume-rag/internal/models"
)

// State is the outcome of probing an index location
type State int

const (
	StateAbsent State = iota
	StateCorrupt
	StateReady
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateCorrupt:
		return "corrupt"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Manifest describes how an index was built
type Manifest struct {
	Backend        string    `yaml:"backend"`
	Collection     string    `yaml:"collection"`
	EmbeddingModel string    `yaml:"embedding_model"`
	Dimension      int       `yaml:"dimension"`
	CreatedAt      time.Time `yaml:"created_at"`
}

// Entry is one (id, vector, chunk) record; opaque once written
type Entry struct {
	ID     string
	Vector []float32
	Chunk  models.Chunk
}

// Hit is a nearest-neighbour result. Distance is cosine distance, so smaller
// is more similar.
type Hit struct {
	ID       string
	Chunk    models.Chunk
	Distance float64
}

// Probe is the tagged outcome of inspecting an index location. Detail explains
// a corrupt state.
type Probe struct {
	State    State
	Manifest *Manifest
	Detail   error
}

// Store is a storage backend for one index location
type Store interface {
	// Probe inspects the location without creating anything
	Probe(ctx context.Context) (Probe, error)
	// Create initialises an empty index at the location
	Create(ctx context.Context, m Manifest) error
	// Open loads an index that probed as ready
	Open(ctx context.Context) error
	Add(ctx context.Context, entries []Entry) error
	// Query returns up to k entries ordered by ascending distance
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)
	Count(ctx context.Context) (int, error)
	// Delete removes entries by ID; unknown IDs are ignored
	Delete(ctx context.Context, ids []string) error
	// Drop deletes everything stored at the location
	Drop(ctx context.Context) error
	Close() error
}

// Backend opens a Store for an index location (a directory or corpus key)
type Backend func(location string) (Store, error)

// Locker is implemented by stores that can exclude writers in other
// processes. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context) (unlock func() error, err error)
}
