package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// jobDescription takes the text from --jd-file or the positional args
func jobDescription(jdFile string, args []string) (string, error) {
	if jdFile != "" {
		data, err := os.ReadFile(jdFile)
		if err != nil {
			return "", fmt.Errorf("reading job description: %w", err)
		}
		args = []string{string(data)}
	}
	jd := strings.TrimSpace(strings.Join(args, " "))
	if jd == "" {
		return "", fmt.Errorf("job description is empty")
	}
	return jd, nil
}

// NewSearchCmd creates the search command
func NewSearchCmd(configPath *string) *cobra.Command {
	var (
		k      int
		asJSON bool
		jdFile string
	)

	cmd := &cobra.Command{
		Use:   "search [job description]",
		Short: "Find resumes that match a job description",
		Long: `Search the index for resume chunks close to a job description.

The relevance score is a cosine distance, lower is better. Chunks at or above
retrieval.max_distance are left out. A file can appear more than once.

Examples:
  resumerag search "Python developer with Django experience"
  resumerag search --k 10 --jd-file job.txt --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jd, err := jobDescription(jdFile, args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			matches, err := a.rag.Retrieve(ctx, jd, k)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), matches)
			}
			printMatches(cmd.OutOrStdout(), matches)
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of chunks to retrieve (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	cmd.Flags().StringVar(&jdFile, "jd-file", "", "Read the job description from a file")
	return cmd
}
