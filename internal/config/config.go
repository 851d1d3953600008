// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config assembles types.Config from defaults, the config file,
// environment variables, bound flags, and the secrets directory.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/multi-search/internal/secrets"
	"github.com/pdiddy/multi-search/pkg/types"
)

// EnvPrefix prefixes every environment override, e.g.
// MULTI_SEARCH_SEARCH_MAX_RESULTS.
const EnvPrefix = "MULTI_SEARCH"

// Config keys that are also read from conventional, unprefixed variables.
var envAliases = map[string]string{
	"search.github.token":             "GITHUB_TOKEN",
	"search.semantic_scholar.api_key": "SEMANTIC_SCHOLAR_KEY",
	"search.web.serpapi_key":          "SERPAPI_KEY",
}

// SetDefaults registers every key with its default. Registering the
// credential keys with empty defaults lets AutomaticEnv reach them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("search.timeout", 10*time.Second)
	v.SetDefault("search.user_agent", "multi-search/0.1")
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.request_timeout", 10*time.Second)
	v.SetDefault("search.source_timeout", time.Duration(0))
	v.SetDefault("search.web_mode", string(types.WebParallel))

	v.SetDefault("search.github.enabled", true)
	v.SetDefault("search.github.token", "")
	v.SetDefault("search.github.fetch_readme", false)
	v.SetDefault("search.github.readme_max_chars", 500)
	v.SetDefault("search.github.rate_limit.requests_per_second", 0)
	v.SetDefault("search.github.rate_limit.burst", 1)

	// arXiv asks clients for at most one request every three seconds.
	v.SetDefault("search.arxiv.enabled", true)
	v.SetDefault("search.arxiv.rate_limit.requests_per_second", 0.34)
	v.SetDefault("search.arxiv.rate_limit.burst", 1)

	v.SetDefault("search.semantic_scholar.enabled", true)
	v.SetDefault("search.semantic_scholar.api_key", "")
	v.SetDefault("search.semantic_scholar.allow_anonymous", false)
	v.SetDefault("search.semantic_scholar.rate_limit.requests_per_second", 1)
	v.SetDefault("search.semantic_scholar.rate_limit.burst", 1)

	v.SetDefault("search.web.enabled", true)
	v.SetDefault("search.web.serpapi_key", "")
	v.SetDefault("search.web.keyword_filter", []string{})
	v.SetDefault("search.web.rate_limit.requests_per_second", 0)
	v.SetDefault("search.web.rate_limit.burst", 1)

	v.SetDefault("log.env", "dev")
	v.SetDefault("log.level", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
}

// BindEnv enables environment overrides on v: MULTI_SEARCH_ plus the key
// with dots replaced by underscores, and the unprefixed credential aliases.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, alias := range envAliases {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, alias); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

// Load unmarshals v into a Config, fills credentials that config and
// environment left empty from sec, and validates the result.
func Load(v *viper.Viper, sec map[string]string) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}

	secrets.Apply(&cfg.Search, sec)

	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
