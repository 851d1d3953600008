// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pdiddy/multi-search/internal/httputil"
	"github.com/pdiddy/multi-search/pkg/types"
)

// githubAPIBase is the GitHub REST API root. Declared as a var so tests
// can substitute an httptest server.
var githubAPIBase = "https://api.github.com"

const (
	defaultReadmeMaxChars = 500
	readmeConcurrency     = 4
)

// GitHubAdapter searches public repositories on GitHub.
type GitHubAdapter struct {
	Client    *http.Client
	Token     string
	UserAgent string
	Limiter   *rate.Limiter

	// FetchReadme attaches a README excerpt to each repository.
	FetchReadme    bool
	ReadmeMaxChars int

	// now is overridden in tests.
	now func() time.Time
}

// Source returns types.SourceRepository.
func (a *GitHubAdapter) Source() types.SourceKind { return types.SourceRepository }

// Fetch searches repositories sorted by stars and scores them by stars with
// a recency boost.
func (a *GitHubAdapter) Fetch(ctx context.Context, query string, limit int) ([]types.Candidate, error) {
	if err := waitLimiter(ctx, a.Limiter); err != nil {
		return nil, upstreamError(a.Source(), err)
	}

	limit = clampLimit(limit, 100)
	params := url.Values{
		"q":        {query},
		"sort":     {"stars"},
		"order":    {"desc"},
		"per_page": {strconv.Itoa(limit)},
	}

	req, err := a.newRequest(ctx, githubAPIBase+"/search/repositories?"+params.Encode())
	if err != nil {
		return nil, upstreamError(a.Source(), err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, upstreamError(a.Source(), fmt.Errorf("GitHub API request: %w", err))
	}
	if err := httputil.CheckResponse(resp); err != nil {
		return nil, upstreamError(a.Source(), fmt.Errorf("GitHub API: %w", err))
	}
	defer resp.Body.Close()

	var sr githubSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, upstreamError(a.Source(), fmt.Errorf("parsing GitHub response: %w", err))
	}

	items := sr.Items
	if len(items) > limit {
		items = items[:limit]
	}

	now := time.Now()
	if a.now != nil {
		now = a.now()
	}

	cands := make([]types.Candidate, 0, len(items))
	for _, item := range items {
		md := types.Metadata{
			"stars":     item.Stars,
			"forks":     item.Forks,
			"full_name": item.FullName,
		}
		if item.Owner.Login != "" {
			md["owner"] = item.Owner.Login
		}
		if item.Language != "" {
			md["language"] = item.Language
		}
		if item.UpdatedAt != "" {
			md["updated_at"] = item.UpdatedAt
		}

		cands = append(cands, types.Candidate{
			Source:   types.SourceRepository,
			Title:    item.FullName,
			URL:      item.HTMLURL,
			Snippet:  item.Description,
			Score:    repositoryScore(item.Stars, item.UpdatedAt, now),
			Metadata: md,
		})
	}

	if a.FetchReadme && len(cands) > 0 {
		a.attachReadmes(ctx, items, cands)
	}
	return cands, nil
}

func (a *GitHubAdapter) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := httputil.NewGetRequest(ctx, rawURL, a.UserAgent)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	return req, nil
}

// repositoryScore is the star count, boosted 1.5x for repositories updated
// within 30 days and 1.1x within a year.
func repositoryScore(stars int, updatedAt string, now time.Time) float64 {
	score := float64(stars)
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return score
	}
	age := now.Sub(t)
	switch {
	case age < 30*24*time.Hour:
		score *= 1.5
	case age < 365*24*time.Hour:
		score *= 1.1
	}
	return score
}

// attachReadmes fetches READMEs concurrently and stores an excerpt in each
// candidate's metadata. It spends at most half of the remaining deadline;
// any README that fails or arrives late is left out.
func (a *GitHubAdapter) attachReadmes(ctx context.Context, items []githubRepo, cands []types.Candidate) {
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Until(deadline)/2)
		defer cancel()
	}

	maxChars := a.ReadmeMaxChars
	if maxChars <= 0 {
		maxChars = defaultReadmeMaxChars
	}

	excerpts := make([]string, len(cands))
	var g errgroup.Group
	g.SetLimit(readmeConcurrency)
	for i := range cands {
		fullName := items[i].FullName
		g.Go(func() error {
			text, err := a.fetchReadme(ctx, fullName)
			if err == nil {
				excerpts[i] = excerpt(text, maxChars)
			}
			return nil
		})
	}
	g.Wait()

	for i, e := range excerpts {
		if e != "" {
			cands[i].Metadata["readme_excerpt"] = e
		}
	}
}

func (a *GitHubAdapter) fetchReadme(ctx context.Context, fullName string) (string, error) {
	req, err := a.newRequest(ctx, githubAPIBase+"/repos/"+fullName+"/readme")
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github.raw")

	resp, err := a.Client.Do(req)
	if err != nil {
		return "", err
	}
	if err := httputil.CheckResponse(resp); err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// A few times the excerpt is plenty to cut from.
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// excerpt returns the first max runes of s, on a valid UTF-8 boundary.
func excerpt(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + "..."
		}
		n++
	}
	return s
}

// GitHub search API JSON structures.
type githubSearchResponse struct {
	TotalCount int          `json:"total_count"`
	Items      []githubRepo `json:"items"`
}

type githubRepo struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	FullName    string      `json:"full_name"`
	HTMLURL     string      `json:"html_url"`
	Description string      `json:"description"`
	Stars       int         `json:"stargazers_count"`
	Forks       int         `json:"forks_count"`
	Language    string      `json:"language"`
	UpdatedAt   string      `json:"updated_at"`
	Owner       githubOwner `json:"owner"`
}

type githubOwner struct {
	Login string `json:"login"`
}
