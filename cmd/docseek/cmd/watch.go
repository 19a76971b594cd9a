package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/docseek/docseek/internal/cliutil"
	"github.com/docseek/docseek/internal/watch"
)

type watchOptions struct {
	maxItems int
	debounce time.Duration
}

// newWatchCmd re-runs an incremental BFS slice whenever a watched
// root changes, instead of requiring a manual bfs-index invocation
// per edit. Wired to internal/watch.
func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch <paths...>",
		Short: "Watch directory trees and reindex incrementally on change",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args, opts)
		},
	}

	cmd.Flags().IntVar(&opts.maxItems, "max-items", 1000, "maximum frontier entries to process per triggered slice")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", 500*time.Millisecond, "quiet period after the last change before reindexing")

	return cmd
}

func runWatch(cmd *cobra.Command, roots []string, opts watchOptions) error {
	out := cliutil.New(cmd.OutOrStdout())

	lock := flock.New(storeDir + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire store lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("store %s is locked by another run", storeDir)
	}
	defer lock.Unlock()

	s, err := openStack(storeDir, configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	reindex := func(ctx context.Context, roots []string) error {
		stats, err := s.ix.RunCompleteIndex(ctx, roots, opts.maxItems)
		if err != nil {
			return err
		}
		if err := s.Save(); err != nil {
			return err
		}
		slog.Info("watch: reindex complete",
			"files_processed", stats.FilesProcessed,
			"chunks_created", stats.ChunksCreated)
		out.Statusf("", "reindexed: %d file(s), %d chunk(s)", stats.FilesProcessed, stats.ChunksCreated)
		return nil
	}

	out.Header(fmt.Sprintf("watching %d root(s); press Ctrl+C to stop", len(roots)))
	if err := reindex(cmd.Context(), roots); err != nil {
		return fmt.Errorf("watch: initial index: %w", err)
	}

	w, err := watch.New(roots, reindex, watch.Config{Debounce: opts.debounce}, slog.Default())
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()

	if err := w.Run(cmd.Context()); err != nil && err != context.Canceled {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
