package chromemdb

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-rag/internal/embedding"
	"resume-rag/internal/index"
	"resume-rag/internal/models"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newStore(t *testing.T, location string) (*VectorDBManager, *embedding.HashingEmbedder) {
	t.Helper()
	emb := embedding.NewHashingEmbedder(64)
	return NewVectorDBManager(location, "resumes", false, testKey, EmbeddingFunc(emb)), emb
}

func entry(t *testing.T, emb *embedding.HashingEmbedder, id, content string, chunkIndex *int) index.Entry {
	t.Helper()
	vec, err := emb.EmbedQuery(context.Background(), content)
	require.NoError(t, err)
	method := models.ExtractionRegular
	if chunkIndex != nil {
		method = models.ExtractionOCR
	}
	return index.Entry{
		ID:     id,
		Vector: vec,
		Chunk: models.Chunk{
			Content: content,
			Metadata: models.ChunkMetadata{
				Filename:         id + ".pdf",
				Page:             2,
				Source:           models.SourcePDF,
				ExtractionMethod: method,
				ChunkIndex:       chunkIndex,
			},
		},
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	idx := 3
	c := models.Chunk{
		Content: "text",
		Metadata: models.ChunkMetadata{
			Filename: "a.pdf", Page: 4, Source: models.SourcePDF,
			ExtractionMethod: models.ExtractionOCR, ChunkIndex: &idx,
		},
	}
	md := CreateMetadata(c)
	assert.Equal(t, "4", md["page"])
	assert.Equal(t, "3", md["chunk_index"])
	assert.Equal(t, c, ChunkFromMetadata("text", md))

	c.Metadata.ChunkIndex = nil
	md = CreateMetadata(c)
	assert.NotContains(t, md, "chunk_index")
	assert.Nil(t, ChunkFromMetadata("text", md).Metadata.ChunkIndex)
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "idx")
	s, emb := newStore(t, dir)

	p, err := s.Probe(ctx)
	require.NoError(t, err)
	assert.Equal(t, index.StateAbsent, p.State)

	manifest := index.Manifest{
		Backend: BackendName, Collection: "resumes", EmbeddingModel: emb.Model(),
		Dimension: emb.Dimension(), CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.Create(ctx, manifest))
	assert.FileExists(t, filepath.Join(dir, manifestFile))
	assert.DirExists(t, filepath.Join(dir, dbDir))

	zero := 0
	require.NoError(t, s.Add(ctx, []index.Entry{
		entry(t, emb, "golang", "go developer grpc kubernetes", nil),
		entry(t, emb, "chef", "pastry chef bakery sourdough", &zero),
	}))
	require.NoError(t, s.Add(ctx, nil))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	q, err := emb.EmbedQuery(ctx, "go grpc")
	require.NoError(t, err)
	hits, err := s.Query(ctx, q, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "golang", hits[0].ID)
	assert.Equal(t, "golang.pdf", hits[0].Chunk.Metadata.Filename)
	assert.Equal(t, 2, hits[0].Chunk.Metadata.Page)
	assert.Less(t, hits[0].Distance, hits[1].Distance)
	require.NotNil(t, hits[1].Chunk.Metadata.ChunkIndex)
	assert.Equal(t, models.ExtractionOCR, hits[1].Chunk.Metadata.ExtractionMethod)
	require.NoError(t, s.Close())

	reopened, _ := newStore(t, dir)
	p, err = reopened.Probe(ctx)
	require.NoError(t, err)
	require.Equal(t, index.StateReady, p.State)
	assert.Equal(t, manifest.EmbeddingModel, p.Manifest.EmbeddingModel)
	assert.Equal(t, manifest.Dimension, p.Manifest.Dimension)
	assert.True(t, manifest.CreatedAt.Equal(p.Manifest.CreatedAt))
	require.NoError(t, reopened.Open(ctx))
	n, err = reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, reopened.Drop(ctx))
	assert.NoDirExists(t, dir)
}

func TestClosedStore(t *testing.T) {
	s, _ := newStore(t, t.TempDir())
	_, err := s.Count(context.Background())
	assert.Error(t, err)
	_, err = s.Query(context.Background(), []float32{1}, 1)
	assert.Error(t, err)
	assert.Error(t, s.Open(context.Background()))
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src, emb := newStore(t, filepath.Join(t.TempDir(), "src"))
	require.NoError(t, src.Create(ctx, index.Manifest{EmbeddingModel: emb.Model()}))
	require.NoError(t, src.Add(ctx, []index.Entry{entry(t, emb, "golang", "go developer", nil)}))

	backup := filepath.Join(t.TempDir(), "backup.gob.enc")
	require.NoError(t, src.Export(ctx, backup))
	assert.FileExists(t, backup)

	dstDir := filepath.Join(t.TempDir(), "dst")
	dst, _ := newStore(t, dstDir)
	require.NoError(t, dst.Create(ctx, index.Manifest{EmbeddingModel: emb.Model()}))
	require.NoError(t, dst.Import(ctx, backup))
	require.NoError(t, dst.Import(ctx, backup))
	n, err := dst.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, dst.Close())

	// imported documents are persisted with the index
	reopened, _ := newStore(t, dstDir)
	require.NoError(t, reopened.Open(ctx))
	n, err = reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestImportKeepsStoredDocumentsWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	src, emb := newStore(t, filepath.Join(t.TempDir(), "src"))
	require.NoError(t, src.Create(ctx, index.Manifest{EmbeddingModel: emb.Model()}))
	require.NoError(t, src.Add(ctx, []index.Entry{entry(t, emb, "golang", "go developer", nil)}))
	backup := filepath.Join(t.TempDir(), "backup.gob.enc")
	require.NoError(t, src.Export(ctx, backup))

	embedCalls := 0
	offline := func(ctx context.Context, text string) ([]float32, error) {
		embedCalls++
		return nil, errors.New("embedding service unreachable")
	}
	dstDir := filepath.Join(t.TempDir(), "dst")
	dst := NewVectorDBManager(dstDir, "resumes", false, testKey, offline)
	require.NoError(t, dst.Create(ctx, index.Manifest{EmbeddingModel: emb.Model()}))
	require.NoError(t, dst.Add(ctx, []index.Entry{entry(t, emb, "nurse", "registered nurse", nil)}))

	require.NoError(t, dst.Import(ctx, backup))
	assert.Zero(t, embedCalls)
	n, err := dst.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	vec, err := emb.EmbedQuery(ctx, "go developer")
	require.NoError(t, err)
	hits, err := dst.Query(ctx, vec, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "golang", hits[0].ID)
	assert.Equal(t, "golang.pdf", hits[0].Chunk.Metadata.Filename)
	require.NoError(t, dst.Close())

	reopened := NewVectorDBManager(dstDir, "resumes", false, testKey, offline)
	require.NoError(t, reopened.Open(ctx))
	n, err = reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestImportMissingCollection(t *testing.T) {
	ctx := context.Background()
	emb := embedding.NewHashingEmbedder(64)
	src := NewVectorDBManager(filepath.Join(t.TempDir(), "src"), "other", false, testKey, EmbeddingFunc(emb))
	require.NoError(t, src.Create(ctx, index.Manifest{EmbeddingModel: emb.Model()}))
	backup := filepath.Join(t.TempDir(), "backup.gob.enc")
	require.NoError(t, src.Export(ctx, backup))

	dst, _ := newStore(t, filepath.Join(t.TempDir(), "dst"))
	require.NoError(t, dst.Create(ctx, index.Manifest{EmbeddingModel: emb.Model()}))
	err := dst.Import(ctx, backup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLockExcludesOtherWriters(t *testing.T) {
	location := filepath.Join(t.TempDir(), "idx")
	first, _ := newStore(t, location)
	second, _ := newStore(t, location)

	unlock, err := first.Lock(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, location+".lock")

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = second.Lock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock())
	unlock, err = second.Lock(context.Background())
	require.NoError(t, err)
	require.NoError(t, unlock())
}

func TestExportNeedsKey(t *testing.T) {
	emb := embedding.NewHashingEmbedder(8)
	s := NewVectorDBManager(t.TempDir(), "resumes", false, "", EmbeddingFunc(emb))
	err := s.Export(context.Background(), filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "encryption key"))
}
