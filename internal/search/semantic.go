// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pdiddy/multi-search/internal/httputil"
	"github.com/pdiddy/multi-search/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "paperId,title,abstract,url,year,authors,externalIds,citationCount"

// SemanticScholarAdapter queries the Semantic Scholar graph API. It is the
// citation source and normally only enabled with an API key.
type SemanticScholarAdapter struct {
	Client    *http.Client
	APIKey    string
	UserAgent string
	Limiter   *rate.Limiter
}

// Source returns types.SourceCitation.
func (a *SemanticScholarAdapter) Source() types.SourceKind { return types.SourceCitation }

// Fetch searches papers by relevance. HTTP 429 surfaces as
// ErrUpstreamRateLimited.
func (a *SemanticScholarAdapter) Fetch(ctx context.Context, query string, limit int) ([]types.Candidate, error) {
	if err := waitLimiter(ctx, a.Limiter); err != nil {
		return nil, upstreamError(a.Source(), err)
	}

	params := url.Values{
		"query":  {query},
		"limit":  {strconv.Itoa(clampLimit(limit, 100))},
		"fields": {semanticFields},
	}
	req, err := httputil.NewGetRequest(ctx, semanticAPIBase+"?"+params.Encode(), a.UserAgent)
	if err != nil {
		return nil, upstreamError(a.Source(), err)
	}
	if a.APIKey != "" {
		req.Header.Set("x-api-key", a.APIKey)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, upstreamError(a.Source(), fmt.Errorf("Semantic Scholar API request: %w", err))
	}
	if err := httputil.CheckResponse(resp); err != nil {
		return nil, upstreamError(a.Source(), fmt.Errorf("Semantic Scholar API: %w", err))
	}
	defer resp.Body.Close()

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, upstreamError(a.Source(), fmt.Errorf("parsing Semantic Scholar response: %w", err))
	}

	total := len(sr.Data)
	cands := make([]types.Candidate, 0, total)
	for i, paper := range sr.Data {
		md := types.Metadata{"citation_count": paper.CitationCount}
		if paper.PaperID != "" {
			md["paper_id"] = paper.PaperID
		}
		if paper.Year > 0 {
			md["year"] = paper.Year
		}
		if paper.ExternalIDs.DOI != "" {
			md["doi"] = paper.ExternalIDs.DOI
		}
		if paper.ExternalIDs.ArXiv != "" {
			md["arxiv_id"] = paper.ExternalIDs.ArXiv
		}
		var authors []string
		for _, au := range paper.Authors {
			if au.Name != "" {
				authors = append(authors, au.Name)
			}
		}
		if len(authors) > 0 {
			md["authors"] = strings.Join(authors, ", ")
		}

		cands = append(cands, types.Candidate{
			Source:   types.SourceCitation,
			Title:    paper.Title,
			URL:      semanticPaperURL(paper),
			Snippet:  paper.Abstract,
			Score:    positionScore(i, total),
			Metadata: md,
		})
	}
	return cands, nil
}

// semanticPaperURL prefers the Semantic Scholar page, then the arXiv
// abstract page, then the DOI resolver.
func semanticPaperURL(p semanticPaper) string {
	switch {
	case p.URL != "":
		return p.URL
	case p.ExternalIDs.ArXiv != "":
		return "https://arxiv.org/abs/" + p.ExternalIDs.ArXiv
	case p.ExternalIDs.DOI != "":
		return "https://doi.org/" + p.ExternalIDs.DOI
	default:
		return ""
	}
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Data   []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID       string              `json:"paperId"`
	Title         string              `json:"title"`
	Abstract      string              `json:"abstract"`
	URL           string              `json:"url"`
	Year          int                 `json:"year"`
	CitationCount int                 `json:"citationCount"`
	Authors       []semanticAuthor    `json:"authors"`
	ExternalIDs   semanticExternalIDs `json:"externalIds"`
}

type semanticAuthor struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type semanticExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}
