package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"resume-rag/internal/index"
	"resume-rag/internal/models"
)

// NewIndexCmd creates the index command group
func NewIndexCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect and maintain the resume index",
	}
	cmd.AddCommand(
		newIndexStatusCmd(configPath),
		newIndexRebuildCmd(configPath),
		newIndexExportCmd(configPath),
		newIndexImportCmd(configPath),
	)
	return cmd
}

func newIndexStatusCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.rag.Status(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, st)
			}

			state := st.State
			switch st.State {
			case index.StateReady.String():
				state = green(state)
			case index.StateCorrupt.String():
				state = red(state)
			default:
				state = yellow(state)
			}
			fmt.Fprintf(out, "Index:   %s\nState:   %s\n", st.Location, state)
			if st.Manifest != nil {
				fmt.Fprintf(out, "Backend: %s\nModel:   %s\nCreated: %s\n",
					st.Manifest.Backend, st.Manifest.EmbeddingModel, st.Manifest.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			if st.State == index.StateReady.String() {
				fmt.Fprintf(out, "Entries: %d\n", st.Entries)
			}
			if st.Detail != "" {
				fmt.Fprintf(out, "Detail:  %s\n", faint(st.Detail))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

func newIndexRebuildCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Drop the index and re-index every stored resume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.rag.Rebuild(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d resumes\n", green("rebuilt"), n)
			return nil
		},
	}
}

func newIndexExportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write an encrypted backup of the index",
		Long: `Export the chromem collection to an encrypted file.

Requires rag.encryption_key (32 bytes) and the chromem backend.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			probe, err := a.indexes.Probe(ctx, a.cfg.Index.Path)
			if err != nil {
				return err
			}
			if probe.State != index.StateReady {
				return fmt.Errorf("%w: %s is %s", models.ErrIndexNotFound, a.cfg.Index.Path, probe.State)
			}

			store, err := a.chromemStore()
			if err != nil {
				return err
			}
			if err := store.Open(ctx); err != nil {
				return err
			}
			defer store.Close()

			if err := store.Export(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("exported"), args[0])
			return nil
		},
	}
}

func newIndexImportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load an encrypted backup into the index",
		Long: `Add the entries of a backup made by "index export" to the index,
creating the index first when it does not exist. Entries keep their IDs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.chromemStore()
			if err != nil {
				return err
			}
			if _, _, err := a.indexes.LoadOrCreate(ctx, a.cfg.Index.Path, nil); err != nil {
				return err
			}
			if err := a.indexes.Close(); err != nil {
				return err
			}

			unlock, err := store.Lock(ctx)
			if err != nil {
				return err
			}
			defer unlock()
			if err := store.Open(ctx); err != nil {
				return err
			}
			defer store.Close()
			if err := store.Import(ctx, args[0]); err != nil {
				return err
			}

			n, err := store.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d entries)\n", green("imported"), args[0], n)
			return nil
		},
	}
}
