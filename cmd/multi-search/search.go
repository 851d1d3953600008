package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/multi-search/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search [query words...]",
	Short: "Run one query against every enabled source",
	Long: `Search sends the query to every enabled source concurrently and prints one
merged list. Duplicate URLs are collapsed in favour of the higher-priority
source (repository > preprint > citation > web); scores are normalized per
source before ranking.

The command fails only when every enabled source failed.`,
	Example: `  multi-search search graph database
  multi-search search --query "vector index" --max-results 20 --format json
  multi-search search --sources repository,preprint rust async runtime`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("query", "", "free-text query (alternatively pass words as arguments)")
	searchCmd.Flags().Int("max-results", search.DefaultMaxResults, "maximum number of results (1-100)")
	searchCmd.Flags().String("format", search.FormatNameTable, "output format: table, json, yaml")
	searchCmd.Flags().Duration("timeout", search.DefaultRequestTimeout, "deadline for the whole search")
	searchCmd.Flags().Duration("source-timeout", 0, "optional deadline per source (0 = request deadline only)")
	searchCmd.Flags().String("sources", "", "comma-separated subset of sources: repository, preprint, citation, web")
	searchCmd.Flags().String("web-mode", "parallel", "web source mode: parallel or fallback")
	searchCmd.Flags().Bool("readme", false, "attach README excerpts to repository results")

	mustBind("search.max_results", searchCmd.Flags().Lookup("max-results"))
	mustBind("search.request_timeout", searchCmd.Flags().Lookup("timeout"))
	mustBind("search.source_timeout", searchCmd.Flags().Lookup("source-timeout"))
	mustBind("search.web_mode", searchCmd.Flags().Lookup("web-mode"))
	mustBind("search.github.fetch_readme", searchCmd.Flags().Lookup("readme"))

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	text, _ := cmd.Flags().GetString("query")
	if text == "" {
		text = strings.Join(args, " ")
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("provide a query with --query or as arguments")
	}

	format, _ := cmd.Flags().GetString("format")
	list, _ := cmd.Flags().GetString("sources")
	keep, err := parseSources(list)
	if err != nil {
		return err
	}

	cfg := appConfig.Search
	restrictSources(&cfg, keep)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	agg := search.NewFromConfig(cfg, nil, appLogger, nil)
	resp, err := agg.Aggregate(ctx, search.Request{Text: text, MaxResults: viper.GetInt("search.max_results")})
	if err != nil {
		return err
	}
	return search.Format(resp, format, os.Stdout)
}
