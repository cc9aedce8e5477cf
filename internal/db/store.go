package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pgvector "github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"

	"resume-rag/internal/index"
	"resume-rag/internal/models"
)

const BackendName = "pgvector"

// IndexRecord is the manifest row of one corpus
type IndexRecord struct {
	bun.BaseModel  `bun:"table:resume_indexes,alias:ri"`
	Corpus         string    `bun:"corpus,pk"`
	Backend        string    `bun:"backend,notnull"`
	Collection     string    `bun:"collection,notnull"`
	EmbeddingModel string    `bun:"embedding_model,notnull"`
	Dimension      int       `bun:"dimension,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

// ChunkRecord is one indexed chunk
type ChunkRecord struct {
	bun.BaseModel    `bun:"table:resume_chunks,alias:rc"`
	ID               string          `bun:"id,pk"`
	Corpus           string          `bun:"corpus,notnull"`
	Content          string          `bun:"content,notnull"`
	Filename         string          `bun:"filename,notnull"`
	Page             int             `bun:"page,notnull"`
	Source           string          `bun:"source,notnull"`
	ExtractionMethod string          `bun:"extraction_method,notnull"`
	ChunkIndex       *int            `bun:"chunk_index"`
	Embedding        pgvector.Vector `bun:"embedding,type:vector,notnull"`
	Distance         float64         `bun:"distance,scanonly"`
}

// VectorStore keeps one corpus in Postgres. The index location is used as
// the corpus key, so several indexes can share the tables.
type VectorStore struct {
	db     *bun.DB
	corpus string
	open   bool
}

var (
	_ index.Store  = (*VectorStore)(nil)
	_ index.Locker = (*VectorStore)(nil)
)

func NewVectorStore(db *bun.DB, corpus string) *VectorStore {
	return &VectorStore{db: db, corpus: corpus}
}

// Backend returns an index.Backend over a shared connection
func Backend(db *bun.DB) index.Backend {
	return func(location string) (index.Store, error) {
		return NewVectorStore(db, location), nil
	}
}

// Lock takes a session advisory lock on the corpus. The connection holding it
// is reserved until unlock, so writers in other processes queue behind it.
func (s *VectorStore) Lock(ctx context.Context) (func() error, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock(hashtext(?))", s.corpus); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to lock corpus %s: %w", s.corpus, err)
	}
	return func() error {
		_, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock(hashtext(?))", s.corpus)
		return errors.Join(err, conn.Close())
	}, nil
}

func (s *VectorStore) Probe(ctx context.Context) (index.Probe, error) {
	var rec IndexRecord
	err := s.db.NewSelect().Model(&rec).Where("corpus = ?", s.corpus).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		n, err := s.chunkCount(ctx)
		if err != nil {
			return index.Probe{}, err
		}
		if n > 0 {
			return index.Probe{State: index.StateCorrupt, Detail: fmt.Errorf("%d chunks without a manifest row", n)}, nil
		}
		return index.Probe{State: index.StateAbsent}, nil
	}
	if err != nil {
		return index.Probe{}, err
	}
	if rec.EmbeddingModel == "" {
		return index.Probe{State: index.StateCorrupt, Detail: errors.New("manifest row has no embedding model")}, nil
	}

	return index.Probe{State: index.StateReady, Manifest: &index.Manifest{
		Backend:        rec.Backend,
		Collection:     rec.Collection,
		EmbeddingModel: rec.EmbeddingModel,
		Dimension:      rec.Dimension,
		CreatedAt:      rec.CreatedAt,
	}}, nil
}

func (s *VectorStore) Create(ctx context.Context, m index.Manifest) error {
	rec := &IndexRecord{
		Corpus:         s.corpus,
		Backend:        m.Backend,
		Collection:     m.Collection,
		EmbeddingModel: m.EmbeddingModel,
		Dimension:      m.Dimension,
		CreatedAt:      m.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert manifest row: %w", err)
	}
	s.open = true
	return nil
}

func (s *VectorStore) Open(ctx context.Context) error {
	p, err := s.Probe(ctx)
	if err != nil {
		return err
	}
	if p.State != index.StateReady {
		return fmt.Errorf("corpus %s is %s", s.corpus, p.State)
	}
	s.open = true
	return nil
}

// Add inserts all entries in one transaction
func (s *VectorStore) Add(ctx context.Context, entries []index.Entry) error {
	if !s.open {
		return fmt.Errorf("corpus %s is not open", s.corpus)
	}
	if len(entries) == 0 {
		return nil
	}
	records := make([]ChunkRecord, len(entries))
	for i, e := range entries {
		records[i] = ChunkRecord{
			ID:               e.ID,
			Corpus:           s.corpus,
			Content:          e.Chunk.Content,
			Filename:         e.Chunk.Metadata.Filename,
			Page:             e.Chunk.Metadata.Page,
			Source:           e.Chunk.Metadata.Source,
			ExtractionMethod: string(e.Chunk.Metadata.ExtractionMethod),
			ChunkIndex:       e.Chunk.Metadata.ChunkIndex,
			Embedding:        pgvector.NewVector(e.Vector),
		}
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&records).Exec(ctx)
		return err
	})
}

// Query orders by pgvector's cosine distance operator
func (s *VectorStore) Query(ctx context.Context, vector []float32, k int) ([]index.Hit, error) {
	if !s.open {
		return nil, fmt.Errorf("corpus %s is not open", s.corpus)
	}
	q := pgvector.NewVector(vector)

	var rows []ChunkRecord
	err := s.db.NewSelect().
		Model(&rows).
		Column("id", "content", "filename", "page", "source", "extraction_method", "chunk_index").
		ColumnExpr("embedding <=> ? AS distance", q).
		Where("corpus = ?", s.corpus).
		OrderExpr("embedding <=> ?", q).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	hits := make([]index.Hit, len(rows))
	for i, r := range rows {
		hits[i] = index.Hit{
			ID: r.ID,
			Chunk: models.Chunk{
				Content: r.Content,
				Metadata: models.ChunkMetadata{
					Filename:         r.Filename,
					Page:             r.Page,
					Source:           r.Source,
					ExtractionMethod: models.ExtractionMethod(r.ExtractionMethod),
					ChunkIndex:       r.ChunkIndex,
				},
			},
			Distance: r.Distance,
		}
	}
	return hits, nil
}

func (s *VectorStore) Count(ctx context.Context) (int, error) {
	if !s.open {
		return 0, fmt.Errorf("corpus %s is not open", s.corpus)
	}
	return s.chunkCount(ctx)
}

func (s *VectorStore) chunkCount(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*ChunkRecord)(nil)).Where("corpus = ?", s.corpus).Count(ctx)
}

func (s *VectorStore) Delete(ctx context.Context, ids []string) error {
	if !s.open {
		return fmt.Errorf("corpus %s is not open", s.corpus)
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.NewDelete().Model((*ChunkRecord)(nil)).
		Where("corpus = ?", s.corpus).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Drop deletes the corpus rows and its manifest
func (s *VectorStore) Drop(ctx context.Context) error {
	s.open = false
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*ChunkRecord)(nil)).Where("corpus = ?", s.corpus).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*IndexRecord)(nil)).Where("corpus = ?", s.corpus).Exec(ctx)
		return err
	})
}

// Close leaves the shared connection open
func (s *VectorStore) Close() error {
	s.open = false
	return nil
}
