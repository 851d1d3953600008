// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data structures of the multi-search
// aggregator: the normalized search result, the raw candidates adapters
// produce, and the configuration consumed by the CLI and server.
package types

import (
	"encoding/json"
	"fmt"
)

// SourceKind identifies which backend produced a result.
type SourceKind string

const (
	SourceRepository SourceKind = "repository"
	SourcePreprint   SourceKind = "preprint"
	SourceCitation   SourceKind = "citation"
	SourceWeb        SourceKind = "web"
)

// SourceKinds lists every source in priority order, highest first.
var SourceKinds = []SourceKind{SourceRepository, SourcePreprint, SourceCitation, SourceWeb}

// Priority returns the rank of the source in the fixed priority order
// repository > preprint > citation > web. Lower is stronger. Unknown kinds
// sort after every known one.
func (k SourceKind) Priority() int {
	for i, s := range SourceKinds {
		if s == k {
			return i
		}
	}
	return len(SourceKinds)
}

// Valid reports whether k is one of the known source kinds.
func (k SourceKind) Valid() bool {
	return k.Priority() < len(SourceKinds)
}

// ParseSourceKind converts a name such as "preprint" to a SourceKind.
func ParseSourceKind(s string) (SourceKind, error) {
	k := SourceKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown source %q", s)
	}
	return k, nil
}

// Metadata holds source-specific attributes of a result (star count,
// citation count, publication date). Values are strings or numbers.
type Metadata map[string]any

// Candidate is one raw search hit as translated by an adapter, before
// validation. Adapters fill every field they know; the aggregator decides
// whether the candidate becomes a Result.
type Candidate struct {
	Source   SourceKind
	Title    string
	URL      string
	Snippet  string
	Score    float64
	Metadata Metadata
}

// Result is one validated, normalized search hit. Source and URL are fixed
// at construction; use NewResult (normally via search.Validate) to build one.
type Result struct {
	source SourceKind
	url    string

	// Title is the human-readable name of the hit.
	Title string

	// Snippet is an optional summary or description.
	Snippet string

	// Score is the relevance value on the source's own scale.
	Score float64

	// NormalizedScore is Score rescaled onto [0,1] within the source batch.
	// It is set by the aggregator and is the only score compared across sources.
	NormalizedScore float64

	// Metadata carries source-specific attributes.
	Metadata Metadata
}

// NewResult builds a Result with its immutable identity fields.
func NewResult(source SourceKind, url, title, snippet string, score float64, md Metadata) Result {
	return Result{
		source:   source,
		url:      url,
		Title:    title,
		Snippet:  snippet,
		Score:    score,
		Metadata: md,
	}
}

// Source returns the backend that produced the result.
func (r Result) Source() SourceKind { return r.source }

// URL returns the absolute URL identifying the result.
func (r Result) URL() string { return r.url }

// resultView is the serialized shape of a Result.
type resultView struct {
	Source          SourceKind `json:"source" yaml:"source"`
	Title           string     `json:"title" yaml:"title"`
	URL             string     `json:"url" yaml:"url"`
	Snippet         string     `json:"snippet,omitempty" yaml:"snippet,omitempty"`
	Score           float64    `json:"score" yaml:"score"`
	NormalizedScore float64    `json:"normalized_score" yaml:"normalized_score"`
	Metadata        Metadata   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func (r Result) view() resultView {
	return resultView{
		Source:          r.source,
		Title:           r.Title,
		URL:             r.url,
		Snippet:         r.Snippet,
		Score:           r.Score,
		NormalizedScore: r.NormalizedScore,
		Metadata:        r.Metadata,
	}
}

// MarshalJSON encodes the result including its identity fields.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.view())
}

// MarshalYAML encodes the result including its identity fields.
func (r Result) MarshalYAML() (any, error) {
	return r.view(), nil
}
