package chromemdb

import (
	"strconv"

	"resume-rag/internal/models"
)

// meta data will have source filename, page number, extraction method and
// chunk index for OCR windows

const (
	metaFilename         = "filename"
	metaPage             = "page"
	metaSource           = "source"
	metaExtractionMethod = "extraction_method"
	metaChunkIndex       = "chunk_index"
)

func CreateMetadata(c models.Chunk) map[string]string {
	md := map[string]string{
		metaFilename:         c.Metadata.Filename,
		metaPage:             strconv.Itoa(c.Metadata.Page),
		metaSource:           c.Metadata.Source,
		metaExtractionMethod: string(c.Metadata.ExtractionMethod),
	}
	if c.Metadata.ChunkIndex != nil {
		md[metaChunkIndex] = strconv.Itoa(*c.Metadata.ChunkIndex)
	}
	return md
}

// ChunkFromMetadata rebuilds a chunk as stored. It does not validate: callers
// decide what to do with incomplete records.
func ChunkFromMetadata(content string, md map[string]string) models.Chunk {
	c := models.Chunk{
		Content: content,
		Metadata: models.ChunkMetadata{
			Filename:         md[metaFilename],
			Source:           md[metaSource],
			ExtractionMethod: models.ExtractionMethod(md[metaExtractionMethod]),
		},
	}
	if page, err := strconv.Atoi(md[metaPage]); err == nil {
		c.Metadata.Page = page
	}
	if v, ok := md[metaChunkIndex]; ok {
		if idx, err := strconv.Atoi(v); err == nil {
			c.Metadata.ChunkIndex = &idx
		}
	}
	return c
}
