package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-rag/internal/config"
	"resume-rag/internal/models"
)

func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.Gray{Y: shade})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeRasterizer writes one PNG per page the way pdftoppm names them
type fakeRasterizer struct {
	t     *testing.T
	pages int
	err   error
	block bool
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, pdfPath, outDir string, dpi, maxPages int) ([]string, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	n := f.pages
	if maxPages > 0 {
		n = min(n, maxPages)
	}
	for i := 1; i <= n; i++ {
		name := filepath.Join(outDir, fmt.Sprintf("page-%02d.png", i))
		require.NoError(f.t, os.WriteFile(name, pngBytes(f.t, uint8(i)), 0o644))
	}
	return PageFiles(outDir)
}

func TestPageFilesNumericOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"page-10.png", "page-2.png", "page-1.png", "notes.txt", "page-3.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	files, err := PageFiles(dir)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.Equal(t, []string{"page-1.png", "page-2.png", "page-3.png", "page-10.png"}, names)
}

func TestRenderPages(t *testing.T) {
	r := NewPageRenderer(config.RenderConfig{DPI: 100, Timeout: time.Second}, &fakeRasterizer{t: t, pages: 3})
	uris, err := r.RenderPages(context.Background(), "resume.pdf")
	require.NoError(t, err)
	require.Len(t, uris, 3)

	for i, uri := range uris {
		require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
		require.NoError(t, err)
		img, err := png.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		gray := color.GrayModel.Convert(img.At(0, 0)).(color.Gray)
		assert.Equal(t, uint8(i+1), gray.Y)
	}
}

func TestRenderPagesMaxPages(t *testing.T) {
	r := NewPageRenderer(config.RenderConfig{DPI: 100, MaxPages: 2}, &fakeRasterizer{t: t, pages: 5})
	uris, err := r.RenderPages(context.Background(), "resume.pdf")
	require.NoError(t, err)
	assert.Len(t, uris, 2)
}

func TestRenderPagesFailures(t *testing.T) {
	tests := []struct {
		name string
		r    *fakeRasterizer
	}{
		{name: "rasterizer error", r: &fakeRasterizer{t: t, err: errors.New("exit status 1")}},
		{name: "no pages", r: &fakeRasterizer{t: t}},
		{name: "timeout", r: &fakeRasterizer{t: t, block: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewPageRenderer(config.RenderConfig{Timeout: 50 * time.Millisecond}, tt.r)
			_, err := r.RenderPages(context.Background(), "resume.pdf")
			assert.ErrorIs(t, err, models.ErrRenderFailure)
		})
	}
}

func TestPdftoppmMissingBinary(t *testing.T) {
	p := NewPdftoppm("resumerag-no-such-binary")
	_, err := p.Rasterize(context.Background(), "resume.pdf", t.TempDir(), 72, 0)
	assert.Error(t, err)
}
