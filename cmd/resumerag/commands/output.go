package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"resume-rag/internal/models"
)

var (
	green  = color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMatches(w io.Writer, matches []models.MatchResult) {
	if len(matches) == 0 {
		fmt.Fprintln(w, yellow("No matching resumes found."))
		return
	}
	for i, m := range matches {
		fmt.Fprintf(w, "%d. %s  %s  %s\n", i+1, green(m.Filename),
			cyan(fmt.Sprintf("score %.4f", m.RelevanceScore)),
			faint(fmt.Sprintf("page %d, %s", m.Page, m.Source)))
		fmt.Fprintf(w, "   %s\n", m.ContentPreview)
	}
}

func printEvaluations(w io.Writer, evals []models.CandidateEvaluation) {
	for _, e := range evals {
		fmt.Fprintf(w, "%s  %s\n", green(e.Filename), cyan(fmt.Sprintf("%d/100", e.MatchScore)))
		if e.Summary != "" {
			fmt.Fprintf(w, "   %s\n", e.Summary)
		}
		for _, s := range e.Strengths {
			fmt.Fprintf(w, "   + %s\n", s)
		}
		for _, g := range e.Gaps {
			fmt.Fprintf(w, "   - %s\n", g)
		}
		if e.Recommendation != "" {
			fmt.Fprintf(w, "   %s %s\n", faint("recommendation:"), e.Recommendation)
		}
	}
}
