package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/lockerindex/internal/engine"
	"github.com/Aman-CERP/lockerindex/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	docType string
	limit   int
	offset  int
	json    bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Query the index",
		Long: `Run a boolean full-text query against the index.

Arguments are joined with spaces. Use --type to restrict results to a
single record type.`,
		Example: `  lockerindex search ada
  lockerindex search "cafe AND harbour" --type placeplaces
  lockerindex search smith --limit 5 --offset 5 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.docType, "type", "t", "", "Restrict results to one record type")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", engine.DefaultQueryLimit, "Maximum number of results")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Number of results to skip")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.offset < 0 {
		return fmt.Errorf("--offset must be non-negative")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	coord, err := openCoordinator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = coord.Close() }()

	slog.Info("search_started", slog.String("query", query), slog.String("type", opts.docType))

	params := engine.QueryParams{Limit: opts.limit, Offset: opts.offset}
	var hits []engine.Hit
	if opts.docType != "" {
		hits, err = coord.QueryType(ctx, opts.docType, query, params)
	} else {
		hits, err = coord.QueryAll(ctx, query, params)
	}
	if err != nil {
		return err
	}

	slog.Info("search_complete", slog.Int("results", len(hits)))

	if opts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	out := output.New(cmd.OutOrStdout())
	if len(hits) == 0 {
		out.Warningf("No results for %q", query)
		return nil
	}
	for _, h := range hits {
		out.Statusf("", "%6.2f  %s  (%s)", h.Score, h.ID, h.Type)
	}
	return nil
}
