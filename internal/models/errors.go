package models

import "errors"

var (
	// ErrInvalidFile is returned for non-PDF input or an unreadable container
	ErrInvalidFile = errors.New("invalid file")

	// ErrExtractionUnavailable means the PDF library could not open the file
	ErrExtractionUnavailable = errors.New("text extraction unavailable")

	// ErrNoExtractableText means neither the text layer nor OCR produced text
	ErrNoExtractableText = errors.New("no extractable text")

	// ErrInvalidChunk is returned when a chunk breaks a provenance invariant
	ErrInvalidChunk = errors.New("invalid chunk")

	ErrIndexNotFound     = errors.New("index not found")
	ErrIndexCorrupt      = errors.New("index corrupt")
	ErrIndexCreate       = errors.New("index create failed")
	ErrEmbeddingMismatch = errors.New("embedding model mismatch")

	// ErrRenderFailure is a per-file page rendering failure
	ErrRenderFailure = errors.New("render failure")

	// ErrInferenceFailure means the reasoning service failed after all retries
	ErrInferenceFailure = errors.New("inference failure")
)
