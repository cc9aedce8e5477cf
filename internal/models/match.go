package models

// MatchResult is a filtered retrieval hit tied back to its source file.
// RelevanceScore is a cosine distance: lower means more similar.
type MatchResult struct {
	Filename       string  `json:"filename"`
	RelevanceScore float64 `json:"relevance_score"`
	ContentPreview string  `json:"content_preview"`
	Source         string  `json:"source"`
	Page           int     `json:"page"`
}

// CandidateEvaluation is one entry of the structured answer returned by the
// reasoning service.
type CandidateEvaluation struct {
	Filename       string   `json:"filename"`
	MatchScore     int      `json:"match_score"`
	Strengths      []string `json:"strengths,omitempty"`
	Gaps           []string `json:"gaps,omitempty"`
	Summary        string   `json:"summary,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// RetrievalResponse is handed back to the calling layer
type RetrievalResponse struct {
	Matches     []MatchResult         `json:"matches"`
	AIResponse  string                `json:"aiResponse,omitempty"`
	Evaluations []CandidateEvaluation `json:"evaluations,omitempty"`
}

// TruncatePreview cuts content to maxChars runes and appends an ellipsis
// when anything was removed.
func TruncatePreview(content string, maxChars int) string {
	if maxChars <= 0 {
		return content
	}
	runes := []rune(content)
	if len(runes) <= maxChars {
		return content
	}
	return string(runes[:maxChars]) + "..."
}
