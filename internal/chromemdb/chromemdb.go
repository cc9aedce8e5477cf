package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"resume-rag/internal/embedding"
	"resume-rag/internal/index"
)

const (
	BackendName  = "chromem"
	dbDir        = "chromem"
	manifestFile = "index.yaml"
	lockSuffix   = ".lock"

	lockRetryDelay = 50 * time.Millisecond
)

// VectorDBManager encapsulates the chromem-go database operations for one
// index directory. The directory holds the manifest and the chromem files.
type VectorDBManager struct {
	location       string
	dbPath         string
	manifestPath   string
	collectionName string
	compress       bool
	encryptionKey  string
	embed          chromem.EmbeddingFunc

	db         *chromem.DB
	collection *chromem.Collection
}

var (
	_ index.Store  = (*VectorDBManager)(nil)
	_ index.Locker = (*VectorDBManager)(nil)
)

// NewVectorDBManager prepares a manager for the index at location; nothing is
// read or written until Probe, Create or Open.
func NewVectorDBManager(location, collectionName string, compress bool, encryptionKey string, embed chromem.EmbeddingFunc) *VectorDBManager {
	return &VectorDBManager{
		location:       location,
		dbPath:         filepath.Join(location, dbDir),
		manifestPath:   filepath.Join(location, manifestFile),
		collectionName: collectionName,
		compress:       compress,
		encryptionKey:  encryptionKey,
		embed:          embed,
	}
}

// Backend returns an index.Backend producing chromem stores
func Backend(collectionName string, compress bool, encryptionKey string, embedder embedding.Embedder) index.Backend {
	embed := EmbeddingFunc(embedder)
	return func(location string) (index.Store, error) {
		return NewVectorDBManager(location, collectionName, compress, encryptionKey, embed), nil
	}
}

// EmbeddingFunc adapts an Embedder to chromem. Documents always carry their
// own vectors, so chromem only falls back to this for text queries.
func EmbeddingFunc(embedder embedding.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
}

// Lock takes an exclusive file lock on <location>.lock. The lock file sits
// beside the index directory so it outlives Drop.
func (m *VectorDBManager) Lock(ctx context.Context) (func() error, error) {
	path := filepath.Clean(m.location) + lockSuffix
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(path)
	ok, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		fl.Close()
		return nil, fmt.Errorf("failed to lock index %s: %w", m.location, err)
	}
	if !ok {
		fl.Close()
		return nil, fmt.Errorf("failed to lock index %s", m.location)
	}
	return fl.Unlock, nil
}

func (m *VectorDBManager) Probe(ctx context.Context) (index.Probe, error) {
	info, err := os.Stat(m.location)
	if errors.Is(err, os.ErrNotExist) {
		return index.Probe{State: index.StateAbsent}, nil
	}
	if err != nil {
		return index.Probe{}, err
	}
	if !info.IsDir() {
		return corrupt("%s is not a directory", m.location), nil
	}

	manifest, err := readManifest(m.manifestPath)
	dbExists := exists(m.dbPath)
	switch {
	case errors.Is(err, os.ErrNotExist) && !dbExists:
		// an empty or unrelated directory: nothing has been indexed yet
		return index.Probe{State: index.StateAbsent}, nil
	case errors.Is(err, os.ErrNotExist):
		return corrupt("chromem data without %s", manifestFile), nil
	case err != nil:
		return corrupt("unreadable manifest: %v", err), nil
	case !dbExists:
		return corrupt("manifest without chromem data"), nil
	}

	db, err := chromem.NewPersistentDB(m.dbPath, m.compress)
	if err != nil {
		return corrupt("failed to read database: %v", err), nil
	}
	c := db.GetCollection(m.collectionName, m.embed)
	if c == nil {
		return corrupt("collection %q missing", m.collectionName), nil
	}

	m.db = db
	m.collection = c
	return index.Probe{State: index.StateReady, Manifest: manifest}, nil
}

func corrupt(format string, args ...any) index.Probe {
	return index.Probe{State: index.StateCorrupt, Detail: fmt.Errorf(format, args...)}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (m *VectorDBManager) Create(ctx context.Context, manifest index.Manifest) (err error) {
	created := !exists(m.location)
	defer func() {
		if err != nil && created {
			_ = os.RemoveAll(m.location)
		}
	}()

	if err := os.MkdirAll(m.location, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	db, err := chromem.NewPersistentDB(m.dbPath, m.compress)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	c, err := db.CreateCollection(m.collectionName, map[string]string{"embedding_model": manifest.EmbeddingModel}, m.embed)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if err := writeManifest(m.manifestPath, manifest); err != nil {
		return err
	}

	m.db = db
	m.collection = c
	return nil
}

func (m *VectorDBManager) Open(ctx context.Context) error {
	if m.collection != nil {
		return nil
	}
	p, err := m.Probe(ctx)
	if err != nil {
		return err
	}
	if p.State != index.StateReady {
		return fmt.Errorf("index is %s: %v", p.State, p.Detail)
	}
	return nil
}

// Add persists entries; each document file is written before it becomes
// visible to queries.
func (m *VectorDBManager) Add(ctx context.Context, entries []index.Entry) error {
	if m.collection == nil {
		return fmt.Errorf("collection is not open")
	}
	if len(entries) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Chunk.Content,
			Metadata:  CreateMetadata(e.Chunk),
			Embedding: e.Vector,
		}
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (m *VectorDBManager) Query(ctx context.Context, vector []float32, k int) ([]index.Hit, error) {
	if m.collection == nil {
		return nil, fmt.Errorf("collection is not open")
	}
	results, err := m.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]index.Hit, len(results))
	for i, r := range results {
		hits[i] = index.Hit{
			ID:       r.ID,
			Chunk:    ChunkFromMetadata(r.Content, r.Metadata),
			Distance: 1 - float64(r.Similarity),
		}
	}
	return hits, nil
}

func (m *VectorDBManager) Count(ctx context.Context) (int, error) {
	if m.collection == nil {
		return 0, fmt.Errorf("collection is not open")
	}
	return m.collection.Count(), nil
}

func (m *VectorDBManager) Delete(ctx context.Context, ids []string) error {
	if m.collection == nil {
		return fmt.Errorf("collection is not open")
	}
	if len(ids) == 0 {
		return nil
	}
	if err := m.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

func (m *VectorDBManager) Drop(ctx context.Context) error {
	m.db = nil
	m.collection = nil
	if err := os.RemoveAll(m.location); err != nil {
		return fmt.Errorf("failed to remove index: %w", err)
	}
	return nil
}

func (m *VectorDBManager) Close() error {
	m.db = nil
	m.collection = nil
	return nil
}

// Export writes the collection to an encrypted backup file
func (m *VectorDBManager) Export(ctx context.Context, filePath string) error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}

	log.Debug().Str("collection", m.collection.Name).Str("file", filePath).Bool("compress", m.compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import adds the documents of a backup made by Export to the open
// collection. Documents keep their IDs, so importing twice is harmless, and
// no embedding call is made.
func (m *VectorDBManager) Import(ctx context.Context, filePath string) error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if m.collection == nil {
		return fmt.Errorf("collection is not open")
	}

	// a persistent DB writes every imported document into the collection
	// directory, then swaps its in-memory collection for the backup's
	before := m.collection
	if err := m.db.ImportFromFile(filePath, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	if m.db.GetCollection(m.collectionName, m.embed) == before {
		return fmt.Errorf("collection %q not found in %s", m.collectionName, filePath)
	}

	// reload so documents stored before the import are visible again
	m.db, m.collection = nil, nil
	if err := m.Open(ctx); err != nil {
		return fmt.Errorf("failed to reopen index after import: %w", err)
	}
	log.Info().Str("collection", m.collectionName).Int("documents", m.collection.Count()).Msg("Imported collection")
	return nil
}
