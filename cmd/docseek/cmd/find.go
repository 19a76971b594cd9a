package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/docseek/docseek/internal/bench"
	"github.com/docseek/docseek/internal/cliutil"
	"github.com/docseek/docseek/internal/searchapi"
)

type findOptions struct {
	maxResults    int
	page          int
	perPage       int
	showContext   bool
	caseSensitive bool
	exact         bool
	format        string
	runBench      bool
}

// newFindCmd searches the indexed store through the hybrid retrieval
// pipeline (internal/retriever via internal/searchapi).
func newFindCmd() *cobra.Command {
	var opts findOptions

	cmd := &cobra.Command{
		Use:   "find <query>",
		Short: "Search the indexed store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVar(&opts.maxResults, "max-results", 10, "maximum results per page")
	cmd.Flags().IntVar(&opts.page, "page", 1, "page number, 1-indexed")
	cmd.Flags().IntVar(&opts.perPage, "per-page", 0, "results per page (defaults to --max-results)")
	cmd.Flags().BoolVar(&opts.showContext, "show-context", false, "include a text snippet around each match")
	cmd.Flags().BoolVar(&opts.caseSensitive, "case-sensitive", false, "accepted for compatibility; matching is always case-insensitive")
	cmd.Flags().BoolVar(&opts.exact, "exact", false, "disable query-word highlighting in snippets")
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format: text or json")
	cmd.Flags().BoolVar(&opts.runBench, "bench", false, "append this query's timing to runs/search_bench.csv")

	return cmd
}

func runFind(cmd *cobra.Command, query string, opts findOptions) error {
	out := cliutil.New(cmd.OutOrStdout())

	s, err := openStack(storeDir, configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	perPage := opts.perPage
	if perPage <= 0 {
		perPage = opts.maxResults
	}

	searchOpts := searchapi.Options{
		ExactMatch:      opts.exact,
		CaseSensitive:   opts.caseSensitive,
		IncludeSnippets: opts.showContext,
	}

	ctx := cmd.Context()
	resp := s.api.Run(ctx, query, opts.page, perPage, searchOpts)
	if resp.Error != "" {
		return fmt.Errorf("find: %s", resp.Error)
	}

	if opts.runBench {
		w, err := bench.Open(bench.DefaultPath(s.cfg.StorePath))
		if err != nil {
			return fmt.Errorf("find --bench: %w", err)
		}
		if err := w.Append(bench.Record{
			Timestamp:    time.Now(),
			Query:        query,
			Page:         resp.Page,
			PerPage:      resp.PerPage,
			TotalHits:    resp.TotalHits,
			ItemsHit:     len(resp.Items),
			SearchTimeMS: resp.SearchTime.Milliseconds(),
			CacheHit:     resp.CacheHit,
		}); err != nil {
			return fmt.Errorf("find --bench: %w", err)
		}
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	return printFindResults(out, resp)
}

func printFindResults(out *cliutil.Writer, resp searchapi.Response) error {
	out.Header(fmt.Sprintf("%q — %d hit(s), page %d/%d", resp.Query, resp.TotalHits, resp.Page, maxInt(resp.TotalPages, 1)))
	if resp.CacheHit {
		out.Statusf("", "(served from cache)")
	}
	for i, item := range resp.Items {
		out.Statusf("", "%2d. %s  (score %.4f)", (resp.Page-1)*resp.PerPage+i+1, item.Path, item.Score)
		if item.Snippet != "" {
			out.Statusf("", "    %s", item.Snippet)
		}
	}
	if len(resp.Items) == 0 {
		out.Warning("no results")
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
