package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/multi-search/pkg/types"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List sources and whether they are enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig.Search
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tPRIORITY\tSTATUS\tNOTE")
		for _, k := range types.SourceKinds {
			status, note := "enabled", ""
			if !cfg.Enabled(k) {
				status, note = "disabled", disabledReason(cfg, k)
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", k, k.Priority()+1, status, note)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func sourceNames(ks []types.SourceKind) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = string(k)
	}
	return out
}
