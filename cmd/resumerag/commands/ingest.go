package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewIngestCmd creates the ingest command
func NewIngestCmd(configPath *string) *cobra.Command {
	var keepGoing bool

	cmd := &cobra.Command{
		Use:   "ingest <pdf>...",
		Short: "Store and index PDF resumes",
		Long: `Copy PDF resumes into the uploads directory and add their text to the index.

Text is read from the PDF directly. Scanned resumes with no text layer are
rasterized and run through OCR. The index is created on first use.

Examples:
  resumerag ingest jane_doe.pdf
  resumerag ingest --keep-going cv/*.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				res, err := a.rag.Ingest(ctx, path)
				if err != nil {
					if !keepGoing {
						return fmt.Errorf("ingesting %s: %w", path, err)
					}
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %v\n", red("failed"), path, err)
					continue
				}
				fmt.Fprintf(out, "%s %s (%d chunks, %s)\n", green("indexed"), res.Filename, res.Chunks, res.Method)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "Continue with the remaining files when one fails")
	return cmd
}
