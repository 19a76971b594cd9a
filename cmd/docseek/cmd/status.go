package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docseek/docseek/internal/cliutil"
)

// statusInfo is the JSON-shaped status report.
type statusInfo struct {
	StorePath      string `json:"store_path"`
	FilesIndexed   int    `json:"files_indexed"`
	VectorsStored  int    `json:"vectors_stored"`
	FrontierQueued int    `json:"frontier_queued"`
	FilesProcessed int    `json:"files_processed"`
	DirsProcessed  int    `json:"dirs_processed"`
	FrontierErrors int    `json:"frontier_errors"`
	FTSBackend     string `json:"fts_backend"`
	EmbedderModel  string `json:"embedder_model"`
}

// newStatusCmd reports index health and counts.
func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	s, err := openStack(storeDir, configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	files, err := s.cat.ListFiles(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	fstats := s.front.Stats()
	vstats := s.vec.Stats()

	info := statusInfo{
		StorePath:      s.cfg.StorePath,
		FilesIndexed:   len(files),
		VectorsStored:  vstats.ValidIDs,
		FrontierQueued: fstats.QueueLen,
		FilesProcessed: fstats.ProcessedFiles,
		DirsProcessed:  fstats.ProcessedDirs,
		FrontierErrors: fstats.ErrorCount,
		FTSBackend:     s.cfg.Search.FTSBackend,
		EmbedderModel:  s.emb.ModelName(),
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	out := cliutil.New(cmd.OutOrStdout())
	out.Header(fmt.Sprintf("docseek store: %s", info.StorePath))
	out.Statusf("", "files indexed:     %d", info.FilesIndexed)
	out.Statusf("", "vectors stored:    %d", info.VectorsStored)
	out.Statusf("", "frontier queued:   %d", info.FrontierQueued)
	out.Statusf("", "files processed:   %d", info.FilesProcessed)
	out.Statusf("", "dirs processed:    %d", info.DirsProcessed)
	out.Statusf("", "frontier errors:   %d", info.FrontierErrors)
	out.Statusf("", "fts backend:       %s", info.FTSBackend)
	out.Statusf("", "embedder model:    %s", info.EmbedderModel)
	return nil
}
