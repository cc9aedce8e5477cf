package commands

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "./configs/config.yaml"

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "resumerag",
		Short: "Match resumes to job descriptions",
		Long: `resumerag indexes PDF resumes and finds the candidates closest to a job description.

Resumes are stored in the uploads directory and indexed in a vector store.
The evaluate command sends the best matching resumes, rendered as page images,
to a multimodal model for a side by side assessment.

Examples:
  resumerag ingest cv/jane_doe.pdf cv/john_smith.pdf
  resumerag search --k 10 "Senior Go engineer with Kubernetes"
  resumerag evaluate --jd-file job.txt
  resumerag index status`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the config file")

	cmd.AddCommand(
		NewIngestCmd(&configPath),
		NewSearchCmd(&configPath),
		NewEvaluateCmd(&configPath),
		NewIndexCmd(&configPath),
	)
	return cmd
}

func Execute() error {
	return NewRootCmd().Execute()
}
