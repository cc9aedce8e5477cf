package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"resume-rag/internal/config"
	"resume-rag/internal/helper"
	"resume-rag/internal/models"
)

// OCR recovers page text from documents without a text layer
type OCR interface {
	ExtractPages(ctx context.Context, pdfPath string) ([]models.PageText, error)
}

// Parser turns a PDF into chunks. The extraction strategy is chosen once per
// document: the text layer when it yields anything, OCR otherwise.
type Parser struct {
	chunkSize    int
	chunkOverlap int
	ocr          OCR
}

// New builds a parser; ocr may be nil, in which case image-only PDFs fail
// with ErrNoExtractableText.
func New(cfg *config.Config, ocr OCR) *Parser {
	// if config is nil, use default values
	size, overlap := models.DefaultChunkSize, models.DefaultChunkOverlap
	if cfg != nil && cfg.RAG.ChunkSize > 0 {
		size = cfg.RAG.ChunkSize
		overlap = cfg.RAG.ChunkOverlap
	}
	return &Parser{chunkSize: size, chunkOverlap: overlap, ocr: ocr}
}

// Extract runs the regular extractor and, when it produced no chunks at all,
// the OCR fallback. Chunks are attributed to the base name of filePath.
func (p *Parser) Extract(ctx context.Context, filePath string) (models.ChunkSet, error) {
	if !helper.IsPDF(filePath) {
		return models.ChunkSet{}, fmt.Errorf("%w: unsupported file format: %s", models.ErrInvalidFile, filepath.Ext(filePath))
	}
	filename := filepath.Base(filePath)

	chunks, err := p.ExtractText(filePath)
	if err != nil {
		return models.ChunkSet{}, err
	}
	if len(chunks) > 0 {
		log.Info().Str("filename", filename).Int("chunks", len(chunks)).Msg("Extracted text layer")
		return models.ChunkSet{Filename: filename, Method: models.ExtractionRegular, Chunks: chunks}, nil
	}

	if p.ocr == nil {
		return models.ChunkSet{}, fmt.Errorf("%w: %s has no text layer and OCR is disabled", models.ErrNoExtractableText, filename)
	}
	log.Info().Str("filename", filename).Msg("No text layer, falling back to OCR")

	pages, err := p.ocr.ExtractPages(ctx, filePath)
	if err != nil {
		return models.ChunkSet{}, fmt.Errorf("%w: %s: %w", models.ErrNoExtractableText, filename, err)
	}
	chunks = ocrChunks(filename, pages, p.chunkSize, p.chunkOverlap)
	if len(chunks) == 0 {
		return models.ChunkSet{}, fmt.Errorf("%w: %s", models.ErrNoExtractableText, filename)
	}

	log.Info().Str("filename", filename).Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Extracted text with OCR")
	return models.ChunkSet{Filename: filename, Method: models.ExtractionOCR, Chunks: chunks}, nil
}

// ExtractText reads the text layer, one chunk per non-blank page. A PDF
// without a text layer yields no chunks and no error.
func (p *Parser) ExtractText(filePath string) (chunks []models.Chunk, err error) {
	filename := filepath.Base(filePath)

	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = fmt.Errorf("%w: %w: %s: %v", models.ErrInvalidFile, models.ErrExtractionUnavailable, filename, r)
		}
	}()

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", models.ErrInvalidFile, models.ErrExtractionUnavailable, err)
	}
	defer f.Close()

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", models.ErrInvalidFile, models.ErrExtractionUnavailable, err)
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %s: %v", models.ErrInvalidFile, models.ErrExtractionUnavailable, filename, err)
	}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn().Err(err).Str("filename", filename).Int("page", i).Msg("Could not decode page text")
			continue
		}
		text := strings.TrimSpace(pageText)
		if text == "" {
			log.Debug().Str("filename", filename).Int("page", i).Msg("Blank page")
			continue
		}

		c, err := models.NewChunk(text, models.ChunkMetadata{
			Filename:         filename,
			Page:             i,
			Source:           models.SourcePDF,
			ExtractionMethod: models.ExtractionRegular,
		})
		if err != nil {
			log.Error().Err(err).Str("filename", filename).Int("page", i).Msg("Dropping page chunk")
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}
