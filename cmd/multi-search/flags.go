package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/multi-search/pkg/types"
)

// mustBind binds a flag to a config key; a nil flag is a programming error.
func mustBind(key string, f *pflag.Flag) {
	if err := viper.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("binding flag for %s: %v", key, err))
	}
}

// parseSources turns "repository,web" into source kinds.
func parseSources(list string) ([]types.SourceKind, error) {
	var out []types.SourceKind
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, err := types.ParseSourceKind(part)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// restrictSources disables every source not in keep. An empty keep leaves
// cfg untouched.
func restrictSources(cfg *types.SearchConfig, keep []types.SourceKind) {
	if len(keep) == 0 {
		return
	}
	want := make(map[types.SourceKind]bool, len(keep))
	for _, k := range keep {
		want[k] = true
	}
	cfg.GitHub.Enabled = cfg.GitHub.Enabled && want[types.SourceRepository]
	cfg.Arxiv.Enabled = cfg.Arxiv.Enabled && want[types.SourcePreprint]
	cfg.SemanticScholar.Enabled = cfg.SemanticScholar.Enabled && want[types.SourceCitation]
	cfg.Web.Enabled = cfg.Web.Enabled && want[types.SourceWeb]
}

// disabledReason explains why a source is not part of the enabled set.
func disabledReason(cfg types.SearchConfig, k types.SourceKind) string {
	if k == types.SourceCitation && cfg.SemanticScholar.Enabled {
		return "no API key (set semantic-scholar-api-key or search.semantic_scholar.allow_anonymous)"
	}
	return "disabled in config"
}
