// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/pdiddy/multi-search/pkg/types"
)

// NewAdapters builds one adapter per enabled source in cfg and lists the
// sources left out. Credentials stay inside the adapters; callers only see
// the resulting enabled set.
func NewAdapters(cfg types.SearchConfig, client *http.Client, log *zap.Logger) (adapters []Adapter, disabled []types.SourceKind) {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}

	for _, k := range types.SourceKinds {
		if !cfg.Enabled(k) {
			disabled = append(disabled, k)
			continue
		}
		adapters = append(adapters, newAdapter(k, cfg, client, log))
	}
	return adapters, disabled
}

func newAdapter(k types.SourceKind, cfg types.SearchConfig, client *http.Client, log *zap.Logger) Adapter {
	switch k {
	case types.SourceRepository:
		return &GitHubAdapter{
			Client:         client,
			Token:          cfg.GitHub.Token,
			UserAgent:      cfg.UserAgent,
			Limiter:        NewLimiter(cfg.GitHub.RateLimit),
			FetchReadme:    cfg.GitHub.FetchReadme,
			ReadmeMaxChars: cfg.GitHub.ReadmeMaxChars,
		}
	case types.SourcePreprint:
		return &ArxivAdapter{
			Client:    client,
			UserAgent: cfg.UserAgent,
			Limiter:   NewLimiter(cfg.Arxiv.RateLimit),
		}
	case types.SourceCitation:
		return &SemanticScholarAdapter{
			Client:    client,
			APIKey:    cfg.SemanticScholar.APIKey,
			UserAgent: cfg.UserAgent,
			Limiter:   NewLimiter(cfg.SemanticScholar.RateLimit),
		}
	default:
		return &WebAdapter{
			Client:        client,
			SerpAPIKey:    cfg.Web.SerpAPIKey,
			UserAgent:     cfg.UserAgent,
			Limiter:       NewLimiter(cfg.Web.RateLimit),
			KeywordFilter: cfg.Web.KeywordFilter,
			Logger:        log.With(zap.String("source", string(types.SourceWeb))),
		}
	}
}

// NewFromConfig wires adapters and an Aggregator from cfg.
func NewFromConfig(cfg types.SearchConfig, client *http.Client, log *zap.Logger, metrics *Metrics) *Aggregator {
	adapters, disabled := NewAdapters(cfg, client, log)
	return NewAggregator(adapters, Options{
		RequestTimeout: cfg.RequestTimeout,
		SourceTimeout:  cfg.SourceTimeout,
		WebMode:        cfg.WebMode,
		Disabled:       disabled,
		Logger:         log,
		Metrics:        metrics,
	})
}
