package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"resume-rag/internal/llmservice"
	"resume-rag/internal/models"
)

// evaluationError hides inference failure detail behind the public message.
// Every other error is returned as is.
func evaluationError(err error, production bool) error {
	if errors.Is(err, models.ErrInferenceFailure) {
		return errors.New(llmservice.PublicMessage(err, production))
	}
	return err
}

// NewEvaluateCmd creates the evaluate command
func NewEvaluateCmd(configPath *string) *cobra.Command {
	var (
		k      int
		asJSON bool
		jdFile string
	)

	cmd := &cobra.Command{
		Use:   "evaluate [job description]",
		Short: "Have the model compare the best matching resumes",
		Long: `Retrieve matching resumes, render their pages and ask the inference model
to assess each candidate against the job description.

When nothing matches, the model is asked for advice on the search instead.

Examples:
  resumerag evaluate --jd-file job.txt
  resumerag evaluate --k 3 --json "Data engineer, Spark and Airflow"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jd, err := jobDescription(jdFile, args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.rag.Evaluate(ctx, jd, k)
			if err != nil {
				log.Error().Err(err).Msg("Evaluation failed")
				return evaluationError(err, a.cfg.IsProduction())
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, resp)
			}
			printMatches(out, resp.Matches)
			fmt.Fprintln(out)
			if len(resp.Evaluations) > 0 {
				printEvaluations(out, resp.Evaluations)
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, resp.AIResponse)
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of chunks to retrieve (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the response as JSON")
	cmd.Flags().StringVar(&jdFile, "jd-file", "", "Read the job description from a file")
	return cmd
}
