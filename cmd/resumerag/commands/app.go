package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"resume-rag/internal/chromemdb"
	"resume-rag/internal/config"
	"resume-rag/internal/db"
	"resume-rag/internal/embedding"
	"resume-rag/internal/index"
	"resume-rag/internal/llmservice"
	"resume-rag/internal/logging"
	"resume-rag/internal/ocr"
	"resume-rag/internal/parser"
	"resume-rag/internal/prompt"
	"resume-rag/internal/rag"
	"resume-rag/internal/render"
	"resume-rag/internal/uploads"
)

// app holds everything a command needs, built from the config file
type app struct {
	cfg      *config.Config
	embedder embedding.Embedder
	indexes  *index.Manager
	rag      *rag.RAG
	closers  []func() error
}

// newApp wires the pipeline. The inference client is only built when asked
// for, so ingest and search work without an API key.
func newApp(ctx context.Context, configPath string, withLLM bool) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logging.Setup(cfg.Log)
	log.Debug().Str("config", configPath).Str("backend", cfg.Index.Backend).Str("index", cfg.Index.Path).Msg("Loaded config")

	a := &app{cfg: cfg}

	a.embedder, err = embedding.New(&cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("initializing embedder: %w", err)
	}

	var backend index.Backend
	switch cfg.Index.Backend {
	case db.BackendName:
		bunDB, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, bunDB.Close)
		backend = db.Backend(bunDB)
	default:
		backend = chromemdb.Backend(cfg.Index.Collection, cfg.Index.Compress, cfg.RAG.EncryptionKey, a.embedder)
	}
	a.indexes = index.NewManager(a.embedder, backend, cfg.Index.Backend, cfg.Index.Collection)
	a.closers = append(a.closers, a.indexes.Close)

	store, err := uploads.New(cfg.UploadsDir)
	if err != nil {
		a.Close()
		return nil, err
	}

	fallback := ocr.NewFallback(cfg.OCR, render.NewPdftoppm(cfg.Render.Command), ocr.NewTesseract(cfg.OCR.Command, cfg.OCR.Language))
	renderer := render.NewPageRenderer(cfg.Render, render.NewPdftoppm(cfg.Render.Command))
	assembler := prompt.NewAssembler(store, renderer)

	var llm rag.Inferer
	if withLLM {
		client, err := llmservice.NewClient(&cfg.InferenceLLM)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initializing inference client: %w", err)
		}
		llm = client
	}

	a.rag = rag.NewRAG(cfg, a.indexes, parser.New(cfg, fallback), store, assembler, llm)
	return a, nil
}

// chromemStore opens the configured chromem index directly, for backup commands
func (a *app) chromemStore() (*chromemdb.VectorDBManager, error) {
	if a.cfg.Index.Backend != chromemdb.BackendName {
		return nil, fmt.Errorf("backups are only supported for the %s backend", chromemdb.BackendName)
	}
	return chromemdb.NewVectorDBManager(a.cfg.Index.Path, a.cfg.Index.Collection, a.cfg.Index.Compress,
		a.cfg.RAG.EncryptionKey, chromemdb.EmbeddingFunc(a.embedder)), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Error during shutdown")
		}
	}
}
