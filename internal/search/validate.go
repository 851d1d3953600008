// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/pdiddy/multi-search/pkg/types"
)

// Validate turns a raw candidate into a Result, or returns a
// *ValidationError naming the first offending field. The returned result
// owns a copy of the candidate's metadata.
func Validate(c types.Candidate) (types.Result, error) {
	if c.Source == "" {
		return types.Result{}, &ValidationError{Field: "source", Reason: "missing"}
	}
	if !c.Source.Valid() {
		return types.Result{}, &ValidationError{Field: "source", Reason: fmt.Sprintf("unknown source %q", c.Source)}
	}

	title := strings.TrimSpace(c.Title)
	if title == "" {
		return types.Result{}, &ValidationError{Field: "title", Reason: "empty"}
	}

	rawURL := strings.TrimSpace(c.URL)
	if rawURL == "" {
		return types.Result{}, &ValidationError{Field: "url", Reason: "empty"}
	}
	if err := checkURL(rawURL); err != nil {
		return types.Result{}, err
	}

	if math.IsNaN(c.Score) || math.IsInf(c.Score, 0) {
		return types.Result{}, &ValidationError{Field: "score", Reason: "not a finite number"}
	}

	md, err := copyMetadata(c.Metadata)
	if err != nil {
		return types.Result{}, err
	}

	return types.NewResult(c.Source, rawURL, title, strings.TrimSpace(c.Snippet), c.Score, md), nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: "url", Reason: err.Error()}
	}
	if !u.IsAbs() || u.Host == "" {
		return &ValidationError{Field: "url", Reason: "not an absolute URL"}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return &ValidationError{Field: "url", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	return nil
}

func copyMetadata(md types.Metadata) (types.Metadata, error) {
	if len(md) == 0 {
		return nil, nil
	}
	out := make(types.Metadata, len(md))
	for k, v := range md {
		if k == "" {
			return nil, &ValidationError{Field: "metadata", Reason: "empty key"}
		}
		switch v.(type) {
		case string, int, int32, int64, uint, uint32, uint64, float32, float64:
			out[k] = v
		default:
			return nil, &ValidationError{Field: "metadata." + k, Reason: fmt.Sprintf("unsupported value type %T", v)}
		}
	}
	return out, nil
}

// dedupKey canonicalizes a validated URL for duplicate detection. Only the
// scheme and host are case-insensitive; path encoding, query and fragment
// are kept as given.
func dedupKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}
