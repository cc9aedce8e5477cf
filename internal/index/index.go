package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"resume-rag/internal/embedding"
	"resume-rag/internal/helper"
	"resume-rag/internal/models"
)

// Manager opens, creates and caches indexes. Writes to one location are
// serialised; searches run without the write lock.
type Manager struct {
	embedder    embedding.Embedder
	backend     Backend
	backendName string
	collection  string

	locks *pathLocks
	mu    sync.Mutex
	open  map[string]*Index
}

// Index is an open vector index at one location
type Index struct {
	manager  *Manager
	key      string
	location string
	store    Store
	manifest Manifest
}

func NewManager(embedder embedding.Embedder, backend Backend, backendName, collection string) *Manager {
	return &Manager{
		embedder:    embedder,
		backend:     backend,
		backendName: backendName,
		collection:  collection,
		locks:       newPathLocks(),
		open:        make(map[string]*Index),
	}
}

// Probe reports whether the index at location is absent, corrupt or ready
func (m *Manager) Probe(ctx context.Context, location string) (Probe, error) {
	if ix := m.cached(locationKey(location)); ix != nil {
		mf := ix.manifest
		return Probe{State: StateReady, Manifest: &mf}, nil
	}
	store, err := m.backend(location)
	if err != nil {
		return Probe{}, err
	}
	defer store.Close()
	return store.Probe(ctx)
}

// CreateIndex embeds chunks and writes a new index at location. It refuses to
// overwrite anything already there.
func (m *Manager) CreateIndex(ctx context.Context, chunks []models.Chunk, location string) (*Index, error) {
	key := locationKey(location)
	release, err := m.writeLock(ctx, key, location)
	if err != nil {
		return nil, err
	}
	defer release()
	if err := m.revalidate(ctx, key, location); err != nil {
		return nil, err
	}
	ix, _, err := m.createLocked(ctx, key, location, chunks)
	return ix, err
}

// LoadIndex reopens an existing index
func (m *Manager) LoadIndex(ctx context.Context, location string) (*Index, error) {
	key := locationKey(location)
	defer m.locks.lock(key)()
	return m.loadLocked(ctx, key, location)
}

// LoadOrCreate applies the ingestion policy: create when absent, append when
// ready, fail when corrupt. It returns the number of chunks written.
func (m *Manager) LoadOrCreate(ctx context.Context, location string, chunks []models.Chunk) (*Index, int, error) {
	ix, ids, err := m.Append(ctx, location, chunks)
	return ix, len(ids), err
}

// Append is LoadOrCreate returning the IDs of the entries it wrote, so a
// caller can take them back out with Index.Delete.
func (m *Manager) Append(ctx context.Context, location string, chunks []models.Chunk) (*Index, []string, error) {
	key := locationKey(location)
	release, err := m.writeLock(ctx, key, location)
	if err != nil {
		return nil, nil, err
	}
	defer release()
	if err := m.revalidate(ctx, key, location); err != nil {
		return nil, nil, err
	}

	if ix := m.cached(key); ix != nil {
		ids, err := ix.addLocked(ctx, chunks)
		return ix, ids, err
	}

	store, err := m.backend(location)
	if err != nil {
		return nil, nil, err
	}
	probe, err := store.Probe(ctx)
	store.Close()
	if err != nil {
		return nil, nil, err
	}

	switch probe.State {
	case StateAbsent:
		log.Info().Str("index", location).Msg("Index absent, creating")
		return m.createLocked(ctx, key, location, chunks)
	case StateReady:
		ix, err := m.loadLocked(ctx, key, location)
		if err != nil {
			return nil, nil, err
		}
		ids, err := ix.addLocked(ctx, chunks)
		return ix, ids, err
	default:
		return nil, nil, fmt.Errorf("%w: %s: %v", models.ErrIndexCorrupt, location, probe.Detail)
	}
}

// Drop closes and deletes the index at location; used for full rebuilds
func (m *Manager) Drop(ctx context.Context, location string) error {
	key := locationKey(location)
	release, err := m.writeLock(ctx, key, location)
	if err != nil {
		return err
	}
	defer release()
	return m.dropLocked(ctx, key, location)
}

// Rebuild replaces whatever is at location with a new index holding chunks,
// under one write lock. With no chunks the location is left empty and the
// returned index is nil.
func (m *Manager) Rebuild(ctx context.Context, location string, chunks []models.Chunk) (*Index, int, error) {
	key := locationKey(location)
	release, err := m.writeLock(ctx, key, location)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	if err := m.dropLocked(ctx, key, location); err != nil {
		return nil, 0, err
	}
	if len(chunks) == 0 {
		return nil, 0, nil
	}
	ix, ids, err := m.createLocked(ctx, key, location, chunks)
	return ix, len(ids), err
}

func (m *Manager) dropLocked(ctx context.Context, key, location string) error {
	if ix := m.cached(key); ix != nil {
		if err := ix.Close(); err != nil {
			log.Warn().Err(err).Str("index", location).Msg("Error closing index before drop")
		}
	}
	store, err := m.backend(location)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Drop(ctx)
}

// Close closes every open index
func (m *Manager) Close() error {
	m.mu.Lock()
	open := make([]*Index, 0, len(m.open))
	for _, ix := range m.open {
		open = append(open, ix)
	}
	m.mu.Unlock()

	var firstErr error
	for _, ix := range open {
		if err := ix.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) cached(key string) *Index {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open[key]
}

func (m *Manager) remember(ix *Index) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[ix.key] = ix
}

func (m *Manager) forget(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, key)
}

func (m *Manager) createLocked(ctx context.Context, key, location string, chunks []models.Chunk) (*Index, []string, error) {
	if m.cached(key) != nil {
		return nil, nil, fmt.Errorf("%w: %s is already open", models.ErrIndexCreate, location)
	}

	store, err := m.backend(location)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrIndexCreate, err)
	}
	probe, err := store.Probe(ctx)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("%w: %v", models.ErrIndexCreate, err)
	}
	if probe.State != StateAbsent {
		store.Close()
		return nil, nil, fmt.Errorf("%w: %s is %s", models.ErrIndexCreate, location, probe.State)
	}

	entries, err := m.entries(ctx, chunks)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	// CreatedAt doubles as the index generation; microseconds survive every backend
	manifest := Manifest{
		Backend:        m.backendName,
		Collection:     m.collection,
		EmbeddingModel: m.embedder.Model(),
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
	if len(entries) > 0 {
		manifest.Dimension = len(entries[0].Vector)
	}

	if err := store.Create(ctx, manifest); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("%w: %v", models.ErrIndexCreate, err)
	}
	if err := store.Add(ctx, entries); err != nil {
		if dropErr := store.Drop(ctx); dropErr != nil {
			log.Warn().Err(dropErr).Str("index", location).Msg("Failed to remove partly created index")
		}
		store.Close()
		return nil, nil, fmt.Errorf("%w: %v", models.ErrIndexCreate, err)
	}

	log.Info().Str("index", location).Int("entries", len(entries)).Str("model", manifest.EmbeddingModel).Msg("Created index")

	ix := &Index{manager: m, key: key, location: location, store: store, manifest: manifest}
	m.remember(ix)
	return ix, entryIDs(entries), nil
}

func entryIDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func (m *Manager) loadLocked(ctx context.Context, key, location string) (*Index, error) {
	if ix := m.cached(key); ix != nil {
		return ix, nil
	}

	store, err := m.backend(location)
	if err != nil {
		return nil, err
	}
	probe, err := store.Probe(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}

	switch probe.State {
	case StateAbsent:
		store.Close()
		return nil, fmt.Errorf("%w: %s", models.ErrIndexNotFound, location)
	case StateCorrupt:
		store.Close()
		return nil, fmt.Errorf("%w: %s: %v", models.ErrIndexCorrupt, location, probe.Detail)
	}

	if probe.Manifest.EmbeddingModel != m.embedder.Model() {
		store.Close()
		return nil, fmt.Errorf("%w: index %s was built with %q, current model is %q",
			models.ErrEmbeddingMismatch, location, probe.Manifest.EmbeddingModel, m.embedder.Model())
	}

	if err := store.Open(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("%w: %s: %v", models.ErrIndexCorrupt, location, err)
	}

	ix := &Index{manager: m, key: key, location: location, store: store, manifest: *probe.Manifest}
	m.remember(ix)
	return ix, nil
}

// entries validates chunks, embeds the valid ones and assigns fresh IDs.
// Invalid chunks are logged and never reach the store.
func (m *Manager) entries(ctx context.Context, chunks []models.Chunk) ([]Entry, error) {
	valid := make([]models.Chunk, 0, len(chunks))
	for i, c := range chunks {
		if err := c.Validate(); err != nil {
			log.Error().Err(err).Int("position", i).Str("filename", c.Metadata.Filename).Msg("Rejecting chunk before indexing")
			continue
		}
		valid = append(valid, c)
	}
	if len(valid) == 0 {
		return nil, nil
	}

	texts := make([]string, len(valid))
	for i, c := range valid {
		texts[i] = c.Content
	}
	vectors, err := m.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(valid) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(valid))
	}

	entries := make([]Entry, len(valid))
	for i, c := range valid {
		id, err := helper.GenerateUUID()
		if err != nil {
			return nil, err
		}
		entries[i] = Entry{ID: id, Vector: vectors[i], Chunk: c}
	}
	return entries, nil
}

// Location returns where the index lives
func (ix *Index) Location() string {
	return ix.location
}

func (ix *Index) Manifest() Manifest {
	return ix.manifest
}

// AddDocuments embeds and appends chunks. Nothing is deduplicated: adding the
// same chunks twice stores them twice.
func (ix *Index) AddDocuments(ctx context.Context, chunks []models.Chunk) (int, error) {
	m := ix.manager
	release, err := m.writeLock(ctx, ix.key, ix.location)
	if err != nil {
		return 0, err
	}
	defer release()
	if err := m.revalidate(ctx, ix.key, ix.location); err != nil {
		return 0, err
	}
	if m.cached(ix.key) != ix {
		return 0, fmt.Errorf("%w: %s was dropped or replaced, load it again", models.ErrIndexNotFound, ix.location)
	}
	ids, err := ix.addLocked(ctx, chunks)
	return len(ids), err
}

// Delete removes entries by ID. Unknown IDs are ignored.
func (ix *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	m := ix.manager
	release, err := m.writeLock(ctx, ix.key, ix.location)
	if err != nil {
		return err
	}
	defer release()
	if err := ix.store.Delete(ctx, ids); err != nil {
		return err
	}
	log.Debug().Str("index", ix.location).Int("entries", len(ids)).Msg("Deleted from index")
	return nil
}

func (ix *Index) addLocked(ctx context.Context, chunks []models.Chunk) ([]string, error) {
	entries, err := ix.manager.entries(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	if dim := ix.manifest.Dimension; dim > 0 && len(entries[0].Vector) != dim {
		return nil, fmt.Errorf("%w: vector dimension %d, index expects %d", models.ErrEmbeddingMismatch, len(entries[0].Vector), dim)
	}
	if err := ix.store.Add(ctx, entries); err != nil {
		return nil, err
	}
	log.Debug().Str("index", ix.location).Int("entries", len(entries)).Msg("Appended to index")
	return entryIDs(entries), nil
}

// Search returns the k nearest chunks to query, ascending by distance. An
// empty index yields an empty result.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	count, err := ix.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	k = min(k, count)

	vector, err := ix.manager.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return ix.store.Query(ctx, vector, k)
}

func (ix *Index) Count(ctx context.Context) (int, error) {
	return ix.store.Count(ctx)
}

// Close releases the index; a later LoadIndex reads it back from storage
func (ix *Index) Close() error {
	ix.manager.forget(ix.key)
	return ix.store.Close()
}
