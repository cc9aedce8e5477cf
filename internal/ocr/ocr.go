package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"resume-rag/internal/config"
	"resume-rag/internal/models"
	"resume-rag/internal/render"
)

// Engine recognises the text in one page image
type Engine interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Tesseract runs the tesseract CLI and reads the text from stdout
type Tesseract struct {
	Command  string
	Language string
}

func NewTesseract(command, language string) *Tesseract {
	if command == "" {
		command = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &Tesseract{Command: command, Language: language}
}

func (t *Tesseract) Recognize(ctx context.Context, imagePath string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Command, imagePath, "stdout", "-l", t.Language)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: %w", t.Command, ctx.Err())
		}
		return "", fmt.Errorf("%s: %w: %s", t.Command, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Fallback rasterises a PDF and runs OCR on every page
type Fallback struct {
	rasterizer render.Rasterizer
	engine     Engine
	dpi        int
	timeout    time.Duration
}

func NewFallback(cfg config.OCRConfig, rasterizer render.Rasterizer, engine Engine) *Fallback {
	return &Fallback{rasterizer: rasterizer, engine: engine, dpi: cfg.DPI, timeout: cfg.Timeout}
}

// ExtractPages returns the recognised text of every page that has any. The
// whole document shares one deadline; the page images are always removed.
func (f *Fallback) ExtractPages(ctx context.Context, pdfPath string) ([]models.PageText, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	filename := filepath.Base(pdfPath)

	dir, err := os.MkdirTemp("", "resumerag-ocr-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	images, err := f.rasterizer.Rasterize(ctx, pdfPath, dir, f.dpi, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to rasterise %s: %w", filename, err)
	}

	var pages []models.PageText
	for i, img := range images {
		page := i + 1
		text, err := f.engine.Recognize(ctx, img)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("ocr of %s stopped at page %d: %w", filename, page, ctx.Err())
			}
			log.Warn().Err(err).Str("filename", filename).Int("page", page).Msg("OCR failed for page")
			continue
		}
		if strings.TrimSpace(text) == "" {
			log.Debug().Str("filename", filename).Int("page", page).Msg("OCR found no text")
			continue
		}
		pages = append(pages, models.PageText{Page: page, Content: text})
	}

	log.Debug().Str("filename", filename).Int("pages", len(images)).Int("with_text", len(pages)).Msg("OCR finished")
	return pages, nil
}
