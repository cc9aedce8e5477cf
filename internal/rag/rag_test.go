package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-rag/internal/chromemdb"
	"resume-rag/internal/config"
	"resume-rag/internal/embedding"
	"resume-rag/internal/index"
	"resume-rag/internal/models"
	"resume-rag/internal/parser"
	"resume-rag/internal/prompt"
	"resume-rag/internal/testutil"
	"resume-rag/internal/uploads"
)

type stubSearcher struct {
	hits []index.Hit
	err  error
}

func (s stubSearcher) Search(ctx context.Context, query string, k int) ([]index.Hit, error) {
	return s.hits, s.err
}

func hit(id, filename, content string, distance float64) index.Hit {
	return index.Hit{
		ID:       id,
		Distance: distance,
		Chunk: models.Chunk{Content: content, Metadata: models.ChunkMetadata{
			Filename: filename, Page: 1, Source: models.SourcePDF, ExtractionMethod: models.ExtractionRegular,
		}},
	}
}

func TestRankerThreshold(t *testing.T) {
	r := NewRanker(stubSearcher{hits: []index.Hit{
		hit("1", "close.pdf", "a", 0.2),
		hit("2", "edge.pdf", "b", 0.79999),
		hit("3", "limit.pdf", "c", 0.8),
		hit("4", "far.pdf", "d", 0.95),
	}}, config.RetrievalConfig{MaxDistance: 0.8})

	matches, err := r.Retrieve(context.Background(), "jd", 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "close.pdf", matches[0].Filename)
	assert.Equal(t, "edge.pdf", matches[1].Filename)
	assert.Equal(t, 0.79999, matches[1].RelevanceScore)
}

func TestRankerPreviewAndProvenance(t *testing.T) {
	long := strings.Repeat("é", 1500)
	r := NewRanker(stubSearcher{hits: []index.Hit{
		hit("1", "a.pdf", long, 0.1),
		hit("2", "", "orphan", 0.1),
		hit("3", "a.pdf", "second chunk of a", 0.3),
	}}, config.RetrievalConfig{})

	matches, err := r.Retrieve(context.Background(), "jd", 5)
	require.NoError(t, err)
	require.Len(t, matches, 2, "no dedup by filename, orphan dropped")

	assert.Equal(t, strings.Repeat("é", 1000)+"...", matches[0].ContentPreview)
	assert.Equal(t, "second chunk of a", matches[1].ContentPreview)
	assert.Equal(t, "a.pdf", matches[1].Filename)
	assert.Equal(t, models.SourcePDF, matches[1].Source)
	assert.Equal(t, 1, matches[1].Page)
}

func TestRankerSearchError(t *testing.T) {
	_, err := NewRanker(stubSearcher{err: errors.New("boom")}, config.RetrievalConfig{}).Retrieve(context.Background(), "jd", 5)
	assert.Error(t, err)
}

type stubRenderer struct{}

func (stubRenderer) RenderPages(ctx context.Context, pdfPath string) ([]string, error) {
	return []string{"data:image/png;base64," + filepath.Base(pdfPath)}, nil
}

type stubLLM struct {
	answer string
	err    error
	reqs   []models.InferenceRequest
}

func (s *stubLLM) Infer(ctx context.Context, req models.InferenceRequest) (string, error) {
	s.reqs = append(s.reqs, req)
	return s.answer, s.err
}

type fixture struct {
	rag     *RAG
	llm     *stubLLM
	cfg     *config.Config
	store   *uploads.Store
	indexes *index.Manager
	inbox   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Index.Path = filepath.Join(root, "chroma_db")
	cfg.UploadsDir = filepath.Join(root, "uploads")

	emb := embedding.NewHashingEmbedder(512)
	indexes := index.NewManager(emb, chromemdb.Backend(cfg.Index.Collection, false, "", emb), chromemdb.BackendName, cfg.Index.Collection)
	t.Cleanup(func() { _ = indexes.Close() })

	store, err := uploads.New(cfg.UploadsDir)
	require.NoError(t, err)
	llm := &stubLLM{}
	r := NewRAG(cfg, indexes, parser.New(cfg, nil), store, prompt.NewAssembler(store, stubRenderer{}), llm)

	inbox := filepath.Join(root, "inbox")
	require.NoError(t, os.MkdirAll(inbox, 0o755))
	return &fixture{rag: r, llm: llm, cfg: cfg, store: store, indexes: indexes, inbox: inbox}
}

func (f *fixture) ingest(t *testing.T, name string, pages ...string) IngestResult {
	t.Helper()
	res, err := f.rag.Ingest(context.Background(), testutil.WritePDF(t, f.inbox, name, pages...))
	require.NoError(t, err)
	return res
}

const pythonResume = "John Smith\nSenior Python Developer\nExperienced in Django, Flask and REST APIs\nSkills: Python, PostgreSQL, Docker, AWS"

func TestRetrieveEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.ingest(t, "resume_python_dev.pdf", pythonResume)
	assert.Equal(t, "resume_python_dev.pdf", res.Filename)
	assert.Equal(t, models.ExtractionRegular, res.Method)
	assert.Equal(t, 1, res.Chunks)
	assert.FileExists(t, filepath.Join(f.cfg.UploadsDir, "resume_python_dev.pdf"))

	f.ingest(t, "nurse.pdf", "Mary Major\nRegistered Nurse\nIntensive care unit, patient triage, medication administration")

	matches, err := f.rag.Retrieve(ctx, "Looking for a Python developer with Django experience", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	top := matches[0]
	assert.Equal(t, "resume_python_dev.pdf", top.Filename)
	assert.Less(t, top.RelevanceScore, 0.8)
	assert.Equal(t, models.SourcePDF, top.Source)
	assert.Equal(t, 1, top.Page)
	assert.Contains(t, top.ContentPreview, "Python Developer")
	for _, m := range matches {
		assert.Less(t, m.RelevanceScore, 0.8)
	}
}

func TestRetrieveBackendEngineer(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "backend.pdf", "5 years Python backend experience")
	f.ingest(t, "nurse.pdf", "Mary Major\nRegistered Nurse\nIntensive care unit")

	matches, err := f.rag.Retrieve(context.Background(), "Looking for a senior Python backend engineer", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	top := matches[0]
	assert.Equal(t, "backend.pdf", top.Filename)
	assert.Less(t, top.RelevanceScore, 0.8)
	assert.Equal(t, models.SourcePDF, top.Source)
	assert.Equal(t, 1, top.Page)
	assert.Contains(t, top.ContentPreview, "Python backend")
}

func TestRetrieveEmptyIndex(t *testing.T) {
	f := newFixture(t)
	matches, err := f.rag.Retrieve(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestRetrieveCorruptIndex(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "resume_python_dev.pdf", pythonResume)
	require.NoError(t, f.indexes.Close())
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.Index.Path, "index.yaml"), []byte("embedding_model: [\n"), 0o644))

	_, err := f.rag.Retrieve(context.Background(), "python", 5)
	assert.ErrorIs(t, err, models.ErrIndexCorrupt)
}

func TestIngestFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	docx := filepath.Join(f.inbox, "resume.docx")
	require.NoError(t, os.WriteFile(docx, []byte("x"), 0o644))
	_, err := f.rag.Ingest(ctx, docx)
	assert.ErrorIs(t, err, models.ErrInvalidFile)

	// image-only PDF and OCR disabled
	_, err = f.rag.Ingest(ctx, testutil.WritePDF(t, f.inbox, "scan.pdf", ""))
	assert.ErrorIs(t, err, models.ErrNoExtractableText)

	stored, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, stored)
	entries, err := os.ReadDir(f.cfg.UploadsDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging is cleaned up")

	p, err := f.indexes.Probe(ctx, f.cfg.Index.Path)
	require.NoError(t, err)
	assert.Equal(t, index.StateAbsent, p.State)
}

func TestIngestLeavesUploadsUntouchedWhenIndexFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.ingest(t, "first.pdf", pythonResume)
	before, err := os.ReadFile(first.Path)
	require.NoError(t, err)

	require.NoError(t, f.indexes.Close())
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.Index.Path, "index.yaml"), []byte("embedding_model: [\n"), 0o644))

	_, err = f.rag.Ingest(ctx, testutil.WritePDF(t, f.inbox, "second.pdf", "Registered Nurse"))
	assert.ErrorIs(t, err, models.ErrIndexCorrupt)

	// same name as a stored file: the stored copy must survive
	_, err = f.rag.Ingest(ctx, testutil.WritePDF(t, f.inbox, "first.pdf", "Pastry chef"))
	assert.ErrorIs(t, err, models.ErrIndexCorrupt)

	stored, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "first.pdf", filepath.Base(stored[0]))

	after, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(f.cfg.UploadsDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staging is cleaned up")
}

func TestIngestRemovesEntriesWhenStoreFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, "first.pdf", pythonResume)

	// a directory in the way makes the final rename fail
	require.NoError(t, os.MkdirAll(filepath.Join(f.cfg.UploadsDir, "blocked.pdf"), 0o755))
	_, err := f.rag.Ingest(ctx, testutil.WritePDF(t, f.inbox, "blocked.pdf", "Registered Nurse"))
	require.Error(t, err)

	st, err := f.rag.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Entries)

	matches, err := f.rag.Retrieve(ctx, "Registered Nurse", 5)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, "blocked.pdf", m.Filename)
	}
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "resume_python_dev.pdf", pythonResume)
	f.llm.answer = "<think>hmm</think>John fits well.\n\n```json\n" +
		`[{"filename": "resume_python_dev.pdf", "match_score": 82, "strengths": ["Django"], "gaps": [], "summary": "Good", "recommendation": "Interview"}]` +
		"\n```"

	resp, err := f.rag.Evaluate(context.Background(), "Python developer with Django", 5)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Matches)
	assert.True(t, strings.HasPrefix(resp.AIResponse, "John fits well."))
	require.Len(t, resp.Evaluations, 1)
	assert.Equal(t, 82, resp.Evaluations[0].MatchScore)

	require.Len(t, f.llm.reqs, 1)
	req := f.llm.reqs[0]
	assert.Equal(t, models.EvaluationRubric, req.Messages[0].Content[0].Text)
	assert.Equal(t, 1, req.ImageCount())
	assert.Contains(t, req.Messages[1].Content[1].Text, "Resume: resume_python_dev.pdf (relevance score: 0.")
}

func TestEvaluateNoMatches(t *testing.T) {
	f := newFixture(t)
	f.llm.answer = "Look for candidates with Rust experience."

	resp, err := f.rag.Evaluate(context.Background(), "Rust compiler engineer", 5)
	require.NoError(t, err)
	assert.Empty(t, resp.Matches)
	assert.Equal(t, "Look for candidates with Rust experience.", resp.AIResponse)
	assert.Nil(t, resp.Evaluations)

	require.Len(t, f.llm.reqs, 1)
	assert.Equal(t, models.SuggestionsPrompt, f.llm.reqs[0].Messages[0].Content[0].Text)
	assert.Zero(t, f.llm.reqs[0].ImageCount())
}

func TestEvaluateInferenceFailure(t *testing.T) {
	f := newFixture(t)
	f.llm.err = models.ErrInferenceFailure

	resp, err := f.rag.Evaluate(context.Background(), "anything", 5)
	assert.ErrorIs(t, err, models.ErrInferenceFailure)
	assert.Empty(t, resp.AIResponse)
}

func TestStatusAndRebuild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.rag.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "absent", st.State)

	f.ingest(t, "resume_python_dev.pdf", pythonResume)
	f.ingest(t, "resume_python_dev.pdf", pythonResume)
	f.ingest(t, "nurse.pdf", "Registered Nurse", "Patient triage")

	st, err = f.rag.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ready", st.State)
	assert.Equal(t, 4, st.Entries, "re-ingesting appends duplicates")

	n, err := f.rag.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	st, err = f.rag.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Entries)
}
