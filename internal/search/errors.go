// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/multi-search/internal/httputil"
	"github.com/pdiddy/multi-search/pkg/types"
)

var (
	// ErrInvalidRequest reports a blank query or an out-of-range result count.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUpstreamUnavailable reports an unreachable backend, a non-success
	// status, an unparseable body, or an exceeded deadline.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamRateLimited reports quota exhaustion at the backend.
	ErrUpstreamRateLimited = errors.New("upstream rate limited")

	// ErrAllSourcesUnavailable is returned by Aggregate when no invoked
	// source produced a result set.
	ErrAllSourcesUnavailable = errors.New("all sources unavailable")
)

// ValidationError describes why a candidate was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid result: %s: %s", e.Field, e.Reason)
}

// UpstreamError is the failure of one adapter invocation. Kind is either
// ErrUpstreamUnavailable or ErrUpstreamRateLimited; errors.Is matches both
// Kind and the underlying cause.
type UpstreamError struct {
	Source     types.SourceKind
	Kind       error
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Source, e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{e.Kind, e.Err} }

// upstreamError classifies err as an *UpstreamError for src. HTTP status
// errors carrying a rate-limit signal become ErrUpstreamRateLimited;
// everything else becomes ErrUpstreamUnavailable.
func upstreamError(src types.SourceKind, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	out := &UpstreamError{Source: src, Kind: ErrUpstreamUnavailable, Err: err}
	if errors.Is(err, ErrUpstreamRateLimited) {
		out.Kind = ErrUpstreamRateLimited
	}
	if se, ok := httputil.AsStatusError(err); ok {
		out.StatusCode = se.Code
		out.RetryAfter = se.RetryAfter
		if se.RateLimited {
			out.Kind = ErrUpstreamRateLimited
		}
	}
	return out
}

// AllSourcesError is the terminal failure of an aggregation. It carries the
// per-source reports for diagnostics and matches ErrAllSourcesUnavailable.
type AllSourcesError struct {
	Sources []SourceReport
}

func (e *AllSourcesError) Error() string {
	var parts []string
	for _, r := range e.Sources {
		if r.Status == StatusSkipped {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", r.Source, r.Error))
	}
	if len(parts) == 0 {
		return ErrAllSourcesUnavailable.Error() + ": no sources enabled"
	}
	return ErrAllSourcesUnavailable.Error() + ": " + strings.Join(parts, "; ")
}

func (e *AllSourcesError) Unwrap() error { return ErrAllSourcesUnavailable }
