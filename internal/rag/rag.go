package rag

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"resume-rag/internal/config"
	"resume-rag/internal/helper"
	"resume-rag/internal/index"
	"resume-rag/internal/llmservice"
	"resume-rag/internal/models"
	"resume-rag/internal/prompt"
	"resume-rag/internal/uploads"
)

// Extractor turns a stored PDF into chunks
type Extractor interface {
	Extract(ctx context.Context, filePath string) (models.ChunkSet, error)
}

// Inferer sends a request to the reasoning service
type Inferer interface {
	Infer(ctx context.Context, req models.InferenceRequest) (string, error)
}

// RAG wires ingestion, retrieval and evaluation around one index location
type RAG struct {
	cfg       *config.Config
	indexes   *index.Manager
	location  string
	parser    Extractor
	uploads   *uploads.Store
	assembler *prompt.Assembler
	llm       Inferer
}

func NewRAG(cfg *config.Config, indexes *index.Manager, parser Extractor, store *uploads.Store, assembler *prompt.Assembler, llm Inferer) *RAG {
	return &RAG{
		cfg:       cfg,
		indexes:   indexes,
		location:  cfg.Index.Path,
		parser:    parser,
		uploads:   store,
		assembler: assembler,
		llm:       llm,
	}
}

// IngestResult describes one ingested PDF
type IngestResult struct {
	Filename string                  `json:"filename"`
	Path     string                  `json:"path"`
	Method   models.ExtractionMethod `json:"extraction_method"`
	Chunks   int                     `json:"chunks"`
}

// Ingest stores a PDF and indexes its chunks. The file stays staged until
// both extraction and indexing succeed, so a failure leaves the uploads dir
// and any previously stored version of the file untouched.
func (r *RAG) Ingest(ctx context.Context, pdfPath string) (IngestResult, error) {
	if !helper.IsPDF(pdfPath) {
		return IngestResult{}, fmt.Errorf("%w: only PDF files are supported: %s", models.ErrInvalidFile, filepath.Base(pdfPath))
	}

	staged, err := r.uploads.Stage(pdfPath)
	if err != nil {
		return IngestResult{}, err
	}
	defer staged.Cleanup()

	set, err := r.parser.Extract(ctx, staged.Path)
	if err != nil {
		return IngestResult{}, err
	}

	ix, ids, err := r.indexes.Append(ctx, r.location, set.Chunks)
	if err != nil {
		return IngestResult{}, err
	}

	stored, err := staged.Promote()
	if err != nil {
		if delErr := ix.Delete(ctx, ids); delErr != nil {
			log.Error().Err(delErr).Str("filename", set.Filename).Int("entries", len(ids)).Msg("Failed to remove entries of unstored file")
		}
		return IngestResult{}, err
	}

	log.Info().Str("filename", set.Filename).Str("method", string(set.Method)).Int("chunks", len(ids)).Msg("Ingested resume")
	return IngestResult{Filename: set.Filename, Path: stored, Method: set.Method, Chunks: len(ids)}, nil
}

// Retrieve returns the matches for a job description. A missing index is an
// empty result; a corrupt one is an error.
func (r *RAG) Retrieve(ctx context.Context, jobDescription string, k int) ([]models.MatchResult, error) {
	if k <= 0 {
		k = r.cfg.Retrieval.TopK
	}

	probe, err := r.indexes.Probe(ctx, r.location)
	if err != nil {
		return nil, err
	}
	switch probe.State {
	case index.StateAbsent:
		log.Info().Str("index", r.location).Msg("No index yet, nothing to retrieve")
		return []models.MatchResult{}, nil
	case index.StateCorrupt:
		return nil, fmt.Errorf("%w: %s: %v", models.ErrIndexCorrupt, r.location, probe.Detail)
	}

	ix, err := r.indexes.LoadIndex(ctx, r.location)
	if err != nil {
		return nil, err
	}
	return NewRanker(ix, r.cfg.Retrieval).Retrieve(ctx, jobDescription, k)
}

// Evaluate retrieves matches and asks the reasoning service to compare the
// candidates. With no matches it asks for search suggestions instead.
func (r *RAG) Evaluate(ctx context.Context, jobDescription string, k int) (models.RetrievalResponse, error) {
	matches, err := r.Retrieve(ctx, jobDescription, k)
	if err != nil {
		return models.RetrievalResponse{}, err
	}
	resp := models.RetrievalResponse{Matches: matches}

	var req models.InferenceRequest
	if len(matches) == 0 {
		req = r.assembler.AssembleSuggestions(jobDescription)
	} else {
		var included []prompt.Candidate
		req, included, err = r.assembler.Assemble(ctx, jobDescription, matches)
		if err != nil {
			return resp, err
		}
		log.Debug().Int("candidates", len(included)).Int("images", req.ImageCount()).Msg("Assembled evaluation request")
	}

	answer, err := r.llm.Infer(ctx, req)
	if err != nil {
		return resp, err
	}
	resp.AIResponse = llmservice.CleanResponse(answer)

	if len(matches) > 0 {
		evals, err := llmservice.ParseEvaluations(answer)
		if err != nil {
			log.Debug().Err(err).Msg("Answer has no structured evaluations")
		} else {
			resp.Evaluations = evals
		}
	}
	return resp, nil
}

// Status reports the state and size of the index
type Status struct {
	Location string          `json:"location"`
	State    string          `json:"state"`
	Manifest *index.Manifest `json:"manifest,omitempty"`
	Entries  int             `json:"entries"`
	Detail   string          `json:"detail,omitempty"`
}

func (r *RAG) Status(ctx context.Context) (Status, error) {
	probe, err := r.indexes.Probe(ctx, r.location)
	if err != nil {
		return Status{}, err
	}
	st := Status{Location: r.location, State: probe.State.String(), Manifest: probe.Manifest}
	if probe.Detail != nil {
		st.Detail = probe.Detail.Error()
	}
	if probe.State != index.StateReady {
		return st, nil
	}

	ix, err := r.indexes.LoadIndex(ctx, r.location)
	if err != nil {
		st.Detail = err.Error()
		return st, nil
	}
	if st.Entries, err = ix.Count(ctx); err != nil {
		return st, err
	}
	return st, nil
}

// Rebuild re-indexes every stored PDF into a fresh index. Files that cannot
// be extracted are skipped. Extraction runs first; the old index is only
// replaced once, under one write lock. It returns the number of files indexed.
func (r *RAG) Rebuild(ctx context.Context) (int, error) {
	files, err := r.uploads.List()
	if err != nil {
		return 0, err
	}

	var chunks []models.Chunk
	indexed := 0
	for _, f := range files {
		set, err := r.parser.Extract(ctx, f)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			log.Warn().Err(err).Str("filename", filepath.Base(f)).Msg("Skipping file during rebuild")
			continue
		}
		chunks = append(chunks, set.Chunks...)
		indexed++
	}

	if _, _, err := r.indexes.Rebuild(ctx, r.location, chunks); err != nil {
		return 0, err
	}

	log.Info().Str("index", r.location).Int("files", indexed).Int("stored", len(files)).Msg("Rebuilt index")
	return indexed, nil
}
