package llmservice

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"resume-rag/internal/models"
)

var thinkTagRe = regexp.MustCompile(models.ThinkTag)

// ErrNoEvaluations means the answer carried no parsable evaluation array
var ErrNoEvaluations = errors.New("no structured evaluations in answer")

// CleanResponse removes reasoning traces some models emit before the answer
func CleanResponse(answer string) string {
	return strings.TrimSpace(thinkTagRe.ReplaceAllString(answer, ""))
}

type rawEvaluation struct {
	Filename       string   `json:"filename"`
	MatchScore     float64  `json:"match_score"`
	Strengths      []string `json:"strengths"`
	Gaps           []string `json:"gaps"`
	Summary        string   `json:"summary"`
	Recommendation string   `json:"recommendation"`
}

// ParseEvaluations looks for a fenced json code block in the markdown answer
// and decodes the candidate evaluations from it. An answer that is a bare JSON
// array is accepted too.
func ParseEvaluations(answer string) ([]models.CandidateEvaluation, error) {
	src := []byte(CleanResponse(answer))
	for _, block := range codeBlocks(src) {
		if evals, err := decodeEvaluations(block); err == nil {
			return evals, nil
		}
	}
	if evals, err := decodeEvaluations(src); err == nil {
		return evals, nil
	}
	return nil, ErrNoEvaluations
}

// codeBlocks returns the bodies of fenced blocks tagged json or untagged
func codeBlocks(src []byte) [][]byte {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var blocks [][]byte
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fence, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lang := strings.ToLower(string(fence.Language(src)))
		if lang != "" && lang != "json" {
			return ast.WalkSkipChildren, nil
		}
		var buf bytes.Buffer
		lines := fence.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		blocks = append(blocks, buf.Bytes())
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

func decodeEvaluations(data []byte) ([]models.CandidateEvaluation, error) {
	var raw []rawEvaluation
	if err := json.Unmarshal(bytes.TrimSpace(data), &raw); err != nil {
		return nil, err
	}
	evals := make([]models.CandidateEvaluation, 0, len(raw))
	for _, r := range raw {
		if r.Filename == "" {
			continue
		}
		evals = append(evals, models.CandidateEvaluation{
			Filename:       r.Filename,
			MatchScore:     int(math.Round(min(max(r.MatchScore, 0), 100))),
			Strengths:      r.Strengths,
			Gaps:           r.Gaps,
			Summary:        r.Summary,
			Recommendation: r.Recommendation,
		})
	}
	if len(evals) == 0 {
		return nil, ErrNoEvaluations
	}
	return evals, nil
}
