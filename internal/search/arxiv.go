// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/multi-search/internal/httputil"
	"github.com/pdiddy/multi-search/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// ArxivAdapter queries the arXiv Atom API for preprints.
type ArxivAdapter struct {
	Client    *http.Client
	UserAgent string
	Limiter   *rate.Limiter
}

// Source returns types.SourcePreprint.
func (a *ArxivAdapter) Source() types.SourceKind { return types.SourcePreprint }

// Fetch queries arXiv by relevance. arXiv gives no score, so the rank
// position becomes the source-local score.
func (a *ArxivAdapter) Fetch(ctx context.Context, query string, limit int) ([]types.Candidate, error) {
	q := buildArxivQuery(query)
	if q == "" {
		return nil, upstreamError(a.Source(), fmt.Errorf("empty arXiv query"))
	}
	if err := waitLimiter(ctx, a.Limiter); err != nil {
		return nil, upstreamError(a.Source(), err)
	}

	params := url.Values{
		"search_query": {q},
		"start":        {"0"},
		"max_results":  {strconv.Itoa(clampLimit(limit, 100))},
		"sortBy":       {"relevance"},
		"sortOrder":    {"descending"},
	}
	req, err := httputil.NewGetRequest(ctx, arxivAPIBase+"?"+params.Encode(), a.UserAgent)
	if err != nil {
		return nil, upstreamError(a.Source(), err)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, upstreamError(a.Source(), fmt.Errorf("arXiv API request: %w", err))
	}
	if err := httputil.CheckResponse(resp); err != nil {
		return nil, upstreamError(a.Source(), fmt.Errorf("arXiv API: %w", err))
	}
	defer resp.Body.Close()

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, upstreamError(a.Source(), fmt.Errorf("parsing arXiv response: %w", err))
	}

	total := len(feed.Entries)
	cands := make([]types.Candidate, 0, total)
	for i, entry := range feed.Entries {
		c := types.Candidate{
			Source:  types.SourcePreprint,
			Title:   collapseSpace(entry.Title),
			URL:     strings.TrimSpace(entry.ID),
			Snippet: collapseSpace(entry.Summary),
			Score:   positionScore(i, total),
		}

		md := types.Metadata{}
		if id := extractArxivID(entry.ID); id != "" {
			md["arxiv_id"] = id
			c.URL = "https://arxiv.org/abs/" + id
		}
		if t, parseErr := time.Parse(time.RFC3339, entry.Published); parseErr == nil {
			md["published"] = t.Format("2006-01-02")
		}
		var authors []string
		for _, au := range entry.Authors {
			if name := strings.TrimSpace(au.Name); name != "" {
				authors = append(authors, name)
			}
		}
		if len(authors) > 0 {
			md["authors"] = strings.Join(authors, ", ")
		}
		if entry.PrimaryCategory.Term != "" {
			md["category"] = entry.PrimaryCategory.Term
		}
		c.Metadata = md

		cands = append(cands, c)
	}
	return cands, nil
}

// buildArxivQuery turns free text into an all-fields conjunction
// (e.g. "graph database" → "all:graph AND all:database").
func buildArxivQuery(text string) string {
	terms := strings.Fields(text)
	for i, t := range terms {
		terms[i] = "all:" + t
	}
	return strings.Join(terms, " AND ")
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID              string        `xml:"id"`
	Title           string        `xml:"title"`
	Summary         string        `xml:"summary"`
	Published       string        `xml:"published"`
	Authors         []arxivAuthor `xml:"author"`
	PrimaryCategory arxivCategory `xml:"primary_category"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivCategory struct {
	Term string `xml:"term,attr"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" → "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := strings.TrimSpace(idURL[idx+len(prefix):])

	// Strip version suffix (e.g. "v1", "v2").
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}

// collapseSpace trims s and folds internal runs of whitespace (arXiv wraps
// titles and abstracts over several lines).
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
