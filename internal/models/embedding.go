package models

import (
	"fmt"
	"strings"
)

// ExtractionMethod records which extraction path produced a chunk
type ExtractionMethod string

const (
	ExtractionRegular ExtractionMethod = "regular"
	ExtractionOCR     ExtractionMethod = "ocr"
)

// SourcePDF is the only supported source type
const SourcePDF = "pdf"

func (m ExtractionMethod) Valid() bool {
	return m == ExtractionRegular || m == ExtractionOCR
}

// ChunkMetadata is the provenance attached to every chunk
type ChunkMetadata struct {
	Filename         string           `json:"filename"`
	Page             int              `json:"page"`
	Source           string           `json:"source"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	ChunkIndex       *int             `json:"chunk_index,omitempty"`
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// NewChunk builds a chunk and rejects it if any provenance invariant is broken.
func NewChunk(content string, meta ChunkMetadata) (Chunk, error) {
	c := Chunk{Content: content, Metadata: meta}
	if err := c.Validate(); err != nil {
		return Chunk{}, err
	}
	return c, nil
}

// Validate checks the invariants a chunk must hold before it can be indexed.
func (c Chunk) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidChunk)
	}
	if c.Metadata.Filename == "" {
		return fmt.Errorf("%w: missing filename", ErrInvalidChunk)
	}
	if c.Metadata.Page < 1 {
		return fmt.Errorf("%w: invalid page %d", ErrInvalidChunk, c.Metadata.Page)
	}
	if c.Metadata.Source != SourcePDF {
		return fmt.Errorf("%w: unsupported source %q", ErrInvalidChunk, c.Metadata.Source)
	}
	if !c.Metadata.ExtractionMethod.Valid() {
		return fmt.Errorf("%w: unknown extraction method %q", ErrInvalidChunk, c.Metadata.ExtractionMethod)
	}
	if c.Metadata.ChunkIndex != nil && *c.Metadata.ChunkIndex < 0 {
		return fmt.Errorf("%w: negative chunk index", ErrInvalidChunk)
	}
	return nil
}

// ChunkSet is the result of ingesting one PDF
type ChunkSet struct {
	Filename string           `json:"filename"`
	Method   ExtractionMethod `json:"extraction_method"`
	Chunks   []Chunk          `json:"chunks"`
}

// PageText is raw text recovered for a single page
type PageText struct {
	Page    int
	Content string
}
