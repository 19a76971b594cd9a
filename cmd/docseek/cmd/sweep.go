package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docseek/docseek/internal/cliutil"
)

// newSweepCmd is a companion to bfs-index: the BFS crawl itself never
// notices deleted files, so sweep compares catalog rows against the
// filesystem and purges stale ones via Indexer.Sweep.
func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove catalog rows for files that no longer exist or match allow_exts/excludes",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cliutil.New(cmd.OutOrStdout())

			s, err := openStack(storeDir, configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			removed, err := s.ix.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			out.Success(fmt.Sprintf("removed %d stale file record(s)", removed))
			return nil
		},
	}
}
