package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docseek/docseek/internal/cliutil"
)

// newResetDBCmd wipes the entire store directory (catalog, vectors,
// frontier checkpoint) so the next bfs-index starts from a clean
// slate.
func newResetDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-db",
		Short: "Delete the entire store directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cliutil.New(cmd.OutOrStdout())
			if err := os.RemoveAll(storeDir); err != nil {
				return fmt.Errorf("reset-db: %w", err)
			}
			out.Success(fmt.Sprintf("removed store directory %s", storeDir))
			return nil
		},
	}
}

// newResetFrontierCmd clears just the frontier checkpoint, useful
// when re-crawling the whole tree (rather than wiping the catalog
// and vectors too) is enough to pick up a change.
func newResetFrontierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-frontier",
		Short: "Clear the BFS frontier checkpoint, keeping the catalog and vectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cliutil.New(cmd.OutOrStdout())

			s, err := openStack(storeDir, configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			s.front.Reset()
			if err := s.front.Save(); err != nil {
				return fmt.Errorf("reset-frontier: %w", err)
			}
			out.Success("frontier checkpoint cleared")
			return nil
		},
	}
}
