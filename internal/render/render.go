package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"resume-rag/internal/config"
	"resume-rag/internal/models"
)

// Rasterizer writes one PNG per page of a PDF into outDir and returns their
// paths in page order. maxPages <= 0 means every page.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath, outDir string, dpi, maxPages int) ([]string, error)
}

// Pdftoppm rasterises with the poppler pdftoppm command
type Pdftoppm struct {
	Command string
}

func NewPdftoppm(command string) *Pdftoppm {
	if command == "" {
		command = "pdftoppm"
	}
	return &Pdftoppm{Command: command}
}

func (p *Pdftoppm) Rasterize(ctx context.Context, pdfPath, outDir string, dpi, maxPages int) ([]string, error) {
	args := []string{"-png", "-r", strconv.Itoa(dpi)}
	if maxPages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(maxPages))
	}
	args = append(args, pdfPath, filepath.Join(outDir, "page"))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Command, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", p.Command, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w: %s", p.Command, err, strings.TrimSpace(stderr.String()))
	}
	return PageFiles(outDir)
}

var pageFilePattern = regexp.MustCompile(`-(\d+)\.png$`)

// PageFiles lists the page-N.png files in dir ordered by page number.
// pdftoppm zero-pads N to the width of the page count, so lexical order is
// not enough.
func PageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type page struct {
		n    int
		path string
	}
	var pages []page
	for _, e := range entries {
		m := pageFilePattern.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		pages = append(pages, page{n: n, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	paths := make([]string, len(pages))
	for i, p := range pages {
		paths[i] = p.path
	}
	return paths, nil
}

// PageRenderer turns a PDF into PNG data URIs for multimodal prompts
type PageRenderer struct {
	rasterizer Rasterizer
	dpi        int
	timeout    time.Duration
	maxPages   int
}

func NewPageRenderer(cfg config.RenderConfig, rasterizer Rasterizer) *PageRenderer {
	return &PageRenderer{
		rasterizer: rasterizer,
		dpi:        cfg.DPI,
		timeout:    cfg.Timeout,
		maxPages:   cfg.MaxPages,
	}
}

// RenderPages renders every page (up to the configured cap) in order. Any
// failure is reported as ErrRenderFailure for this one file.
func (r *PageRenderer) RenderPages(ctx context.Context, pdfPath string) ([]string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	filename := filepath.Base(pdfPath)

	dir, err := os.MkdirTemp("", "resumerag-render-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrRenderFailure, filename, err)
	}
	defer os.RemoveAll(dir)

	start := time.Now()
	files, err := r.rasterizer.Rasterize(ctx, pdfPath, dir, r.dpi, r.maxPages)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrRenderFailure, filename, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s: no pages rendered", models.ErrRenderFailure, filename)
	}

	uris := make([]string, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", models.ErrRenderFailure, filename, err)
		}
		uris = append(uris, DataURI(data))
	}

	log.Debug().Str("filename", filename).Int("pages", len(uris)).Dur("took", time.Since(start)).Msg("Rendered pages")
	return uris, nil
}

// DataURI encodes PNG bytes as a data URI
func DataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
