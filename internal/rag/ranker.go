package rag

import (
	"context"

	"github.com/rs/zerolog/log"

	"resume-rag/internal/config"
	"resume-rag/internal/index"
	"resume-rag/internal/models"
)

// Searcher is a k-nearest-neighbour search over indexed chunks
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]index.Hit, error)
}

// Ranker turns raw hits into match results: it keeps hits strictly closer
// than the distance threshold, drops hits without provenance and truncates
// previews. Several chunks of one file all survive; callers group them.
type Ranker struct {
	searcher     Searcher
	maxDistance  float64
	previewChars int
}

func NewRanker(searcher Searcher, cfg config.RetrievalConfig) *Ranker {
	r := &Ranker{searcher: searcher, maxDistance: cfg.MaxDistance, previewChars: cfg.PreviewChars}
	if r.maxDistance <= 0 {
		r.maxDistance = models.DefaultMaxDistance
	}
	if r.previewChars <= 0 {
		r.previewChars = models.DefaultPreviewChars
	}
	return r
}

func (r *Ranker) Retrieve(ctx context.Context, jobDescription string, k int) ([]models.MatchResult, error) {
	hits, err := r.searcher.Search(ctx, jobDescription, k)
	if err != nil {
		return nil, err
	}

	matches := make([]models.MatchResult, 0, len(hits))
	for _, h := range hits {
		if h.Distance >= r.maxDistance {
			continue
		}
		if h.Chunk.Metadata.Filename == "" {
			log.Warn().Str("id", h.ID).Float64("distance", h.Distance).Msg("Dropping match without filename")
			continue
		}
		matches = append(matches, models.MatchResult{
			Filename:       h.Chunk.Metadata.Filename,
			RelevanceScore: h.Distance,
			ContentPreview: models.TruncatePreview(h.Chunk.Content, r.previewChars),
			Source:         h.Chunk.Metadata.Source,
			Page:           h.Chunk.Metadata.Page,
		})
	}

	log.Debug().Int("hits", len(hits)).Int("matches", len(matches)).Float64("max_distance", r.maxDistance).Msg("Ranked search results")
	return matches, nil
}
