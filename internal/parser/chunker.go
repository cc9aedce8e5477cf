package parser

import (
	"strings"

	"github.com/rs/zerolog/log"

	"resume-rag/internal/models"
)

// SplitWindows cuts text into windows of at most size runes where each window
// starts size-overlap runes after the previous one. Whitespace-only windows
// are dropped; the rest are returned untrimmed so overlaps stay exact.
func SplitWindows(text string, size, overlap int) []string {
	// Handle edge cases
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	step := size - overlap

	var windows []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		w := string(runes[start:end])
		if strings.TrimSpace(w) != "" {
			windows = append(windows, w)
		}
		if end == len(runes) {
			break
		}
	}
	return windows
}

// ocrChunks splits every OCR page into windows; chunk_index counts windows
// within a page
func ocrChunks(filename string, pages []models.PageText, size, overlap int) []models.Chunk {
	var chunks []models.Chunk
	for _, page := range pages {
		for i, w := range SplitWindows(page.Content, size, overlap) {
			idx := i
			c, err := models.NewChunk(w, models.ChunkMetadata{
				Filename:         filename,
				Page:             page.Page,
				Source:           models.SourcePDF,
				ExtractionMethod: models.ExtractionOCR,
				ChunkIndex:       &idx,
			})
			if err != nil {
				log.Error().Err(err).Str("filename", filename).Int("page", page.Page).Msg("Dropping OCR chunk")
				continue
			}
			chunks = append(chunks, c)
		}
	}
	return chunks
}
