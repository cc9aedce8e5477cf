package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"resume-rag/internal/models"
)

// Resolver finds the stored PDF for a filename
type Resolver interface {
	Resolve(filename string) (string, error)
}

// Renderer turns a PDF into page image data URIs
type Renderer interface {
	RenderPages(ctx context.Context, pdfPath string) ([]string, error)
}

// Candidate is one distinct resume included in a request
type Candidate struct {
	Filename       string
	RelevanceScore float64
	Pages          int
}

// Assembler builds multimodal inference requests from retrieval matches
type Assembler struct {
	resolver Resolver
	renderer Renderer
	rubric   string
}

func NewAssembler(resolver Resolver, renderer Renderer) *Assembler {
	return &Assembler{resolver: resolver, renderer: renderer, rubric: models.EvaluationRubric}
}

// Label introduces a resume's page images in the user message
func Label(filename string, score float64) string {
	return fmt.Sprintf("Resume: %s (relevance score: %.4f)", filename, score)
}

// Assemble builds a system message with the rubric and a user message with the
// job description followed by every distinct candidate, in order of first
// appearance, as a label plus its page images. A candidate whose file cannot
// be found or rendered is skipped.
func (a *Assembler) Assemble(ctx context.Context, jobDescription string, matches []models.MatchResult) (models.InferenceRequest, []Candidate, error) {
	content := []models.ContentBlock{models.TextBlock(jobDescriptionText(jobDescription))}

	var included []Candidate
	for _, c := range distinctCandidates(matches) {
		if err := ctx.Err(); err != nil {
			return models.InferenceRequest{}, nil, err
		}

		path, err := a.resolver.Resolve(c.Filename)
		if err != nil {
			log.Warn().Err(err).Str("filename", c.Filename).Msg("Skipping candidate, resume not found")
			continue
		}
		pages, err := a.renderer.RenderPages(ctx, path)
		if err != nil {
			log.Warn().Err(err).Str("filename", c.Filename).Msg("Skipping candidate, render failed")
			continue
		}

		content = append(content, models.TextBlock(Label(c.Filename, c.RelevanceScore)))
		for _, uri := range pages {
			content = append(content, models.ImageBlock(uri))
		}
		c.Pages = len(pages)
		included = append(included, c)
	}

	if len(included) == 0 && len(matches) > 0 {
		return models.InferenceRequest{}, nil, fmt.Errorf("%w: none of %d matched resumes could be rendered", models.ErrRenderFailure, len(matches))
	}

	req := models.InferenceRequest{Messages: []models.Message{
		{Role: models.RoleSystem, Content: []models.ContentBlock{models.TextBlock(a.rubric)}},
		{Role: models.RoleUser, Content: content},
	}}
	return req, included, nil
}

// AssembleSuggestions builds the text-only request used when nothing matched
func (a *Assembler) AssembleSuggestions(jobDescription string) models.InferenceRequest {
	return models.InferenceRequest{Messages: []models.Message{
		{Role: models.RoleSystem, Content: []models.ContentBlock{models.TextBlock(models.SuggestionsPrompt)}},
		{Role: models.RoleUser, Content: []models.ContentBlock{models.TextBlock(jobDescriptionText(jobDescription))}},
	}}
}

func jobDescriptionText(jd string) string {
	return "Job description:\n" + strings.TrimSpace(jd)
}

// distinctCandidates keeps the first appearance of every filename with the
// lowest distance seen for it
func distinctCandidates(matches []models.MatchResult) []Candidate {
	var out []Candidate
	seen := make(map[string]int)
	for _, m := range matches {
		if i, ok := seen[m.Filename]; ok {
			out[i].RelevanceScore = min(out[i].RelevanceScore, m.RelevanceScore)
			continue
		}
		seen[m.Filename] = len(out)
		out = append(out, Candidate{Filename: m.Filename, RelevanceScore: m.RelevanceScore})
	}
	return out
}
