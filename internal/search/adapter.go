// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/pdiddy/multi-search/pkg/types"
)

// Adapter translates one backend's native response into candidates. Each
// variant (GitHub, arXiv, Semantic Scholar, web) is independent; Fetch is
// bound by the deadline on ctx and fails with an error matching
// ErrUpstreamUnavailable or ErrUpstreamRateLimited.
type Adapter interface {
	Source() types.SourceKind
	Fetch(ctx context.Context, query string, limit int) ([]types.Candidate, error)
}

// NewLimiter returns a token-bucket limiter for cfg, or nil when limiting
// is disabled.
func NewLimiter(cfg types.RateLimitConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// waitLimiter blocks until l admits one request. A nil limiter admits
// immediately. If the wait would outlive ctx's deadline it fails at once.
func waitLimiter(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return nil
}

// positionScore maps a rank position onto (0.1, 1.0], first place highest.
// Backends that only give an ordering use it as their source-local score.
func positionScore(i, total int) float64 {
	if total > 1 {
		return 1.0 - float64(i)/float64(total-1)*0.9
	}
	return 1.0
}

// clampLimit keeps a limit hint inside [1, upper].
func clampLimit(limit, upper int) int {
	if limit < 1 {
		return 1
	}
	if limit > upper {
		return upper
	}
	return limit
}
