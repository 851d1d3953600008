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

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/pdiddy/multi-search/internal/httputil"
	"github.com/pdiddy/multi-search/pkg/types"
)

// Web search endpoints. Declared as vars so tests can substitute httptest
// servers.
var (
	serpAPIBase    = "https://serpapi.com/search"
	duckDuckGoBase = "https://html.duckduckgo.com/html/"
)

// WebAdapter is the general web source. It uses SerpAPI (Google engine)
// when a key is configured and the DuckDuckGo HTML endpoint otherwise, or
// when SerpAPI fails.
type WebAdapter struct {
	Client     *http.Client
	SerpAPIKey string
	UserAgent  string
	Limiter    *rate.Limiter

	// KeywordFilter keeps only hits whose title contains one of the words.
	KeywordFilter []string

	Logger *zap.Logger
}

// Source returns types.SourceWeb.
func (a *WebAdapter) Source() types.SourceKind { return types.SourceWeb }

// Fetch runs the web search and applies the keyword filter.
func (a *WebAdapter) Fetch(ctx context.Context, query string, limit int) ([]types.Candidate, error) {
	if err := waitLimiter(ctx, a.Limiter); err != nil {
		return nil, upstreamError(a.Source(), err)
	}
	limit = clampLimit(limit, 100)

	var (
		cands []types.Candidate
		err   error
	)
	if a.SerpAPIKey != "" {
		cands, err = a.searchSerpAPI(ctx, query, limit)
		if err != nil && ctx.Err() == nil {
			a.logger().Warn("SerpAPI failed, falling back to DuckDuckGo", zap.Error(err))
			cands, err = a.searchDuckDuckGo(ctx, query, limit)
		}
	} else {
		cands, err = a.searchDuckDuckGo(ctx, query, limit)
	}
	if err != nil {
		return nil, upstreamError(a.Source(), err)
	}
	return filterByKeyword(cands, a.KeywordFilter), nil
}

func (a *WebAdapter) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

func (a *WebAdapter) searchSerpAPI(ctx context.Context, query string, limit int) ([]types.Candidate, error) {
	params := url.Values{
		"engine":  {"google"},
		"q":       {query},
		"num":     {strconv.Itoa(limit)},
		"api_key": {a.SerpAPIKey},
	}
	req, err := httputil.NewGetRequest(ctx, serpAPIBase+"?"+params.Encode(), a.UserAgent)
	if err != nil {
		return nil, err
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("SerpAPI request: %w", err)
	}
	if err := httputil.CheckResponse(resp); err != nil {
		return nil, fmt.Errorf("SerpAPI: %w", err)
	}
	defer resp.Body.Close()

	var sr serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing SerpAPI response: %w", err)
	}
	if sr.Error != "" {
		return nil, fmt.Errorf("SerpAPI: %s", sr.Error)
	}

	hits := sr.OrganicResults
	if len(hits) > limit {
		hits = hits[:limit]
	}
	cands := make([]types.Candidate, 0, len(hits))
	for i, h := range hits {
		md := types.Metadata{"engine": "serpapi"}
		if h.Position > 0 {
			md["position"] = h.Position
		}
		if h.DisplayedLink != "" {
			md["displayed_link"] = h.DisplayedLink
		}
		if h.Date != "" {
			md["date"] = h.Date
		}
		cands = append(cands, types.Candidate{
			Source:   types.SourceWeb,
			Title:    h.Title,
			URL:      h.Link,
			Snippet:  h.Snippet,
			Score:    positionScore(i, len(hits)),
			Metadata: md,
		})
	}
	return cands, nil
}

func (a *WebAdapter) searchDuckDuckGo(ctx context.Context, query string, limit int) ([]types.Candidate, error) {
	form := url.Values{"q": {query}, "kl": {"us-en"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, duckDuckGoBase, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if a.UserAgent != "" {
		req.Header.Set("User-Agent", a.UserAgent)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("DuckDuckGo request: %w", err)
	}
	if err := httputil.CheckResponse(resp); err != nil {
		return nil, fmt.Errorf("DuckDuckGo: %w", err)
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing DuckDuckGo response: %w", err)
	}

	hits := parseDuckDuckGo(doc)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	cands := make([]types.Candidate, 0, len(hits))
	for i, h := range hits {
		cands = append(cands, types.Candidate{
			Source:   types.SourceWeb,
			Title:    h.title,
			URL:      h.url,
			Snippet:  h.snippet,
			Score:    positionScore(i, len(hits)),
			Metadata: types.Metadata{"engine": "duckduckgo", "position": i + 1},
		})
	}
	return cands, nil
}

type webHit struct {
	title   string
	url     string
	snippet string
}

// parseDuckDuckGo extracts organic hits from the DuckDuckGo HTML page:
// each "result" block holds an "result__a" title link and an optional
// "result__snippet". Ad blocks are skipped.
func parseDuckDuckGo(doc *html.Node) []webHit {
	var hits []webHit
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "result") {
			if !hasClass(n, "result--ad") {
				if h, ok := duckDuckGoHit(n); ok {
					hits = append(hits, h)
				}
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return hits
}

func duckDuckGoHit(block *html.Node) (webHit, bool) {
	link := findFirst(block, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a")
	})
	if link == nil {
		return webHit{}, false
	}
	h := webHit{
		title: collapseSpace(textContent(link)),
		url:   resolveDuckDuckGoHref(attr(link, "href")),
	}
	if sn := findFirst(block, func(n *html.Node) bool {
		return n.Type == html.ElementNode && hasClass(n, "result__snippet")
	}); sn != nil {
		h.snippet = collapseSpace(textContent(sn))
	}
	return h, true
}

// resolveDuckDuckGoHref unwraps DuckDuckGo redirect links
// ("//duckduckgo.com/l/?uddg=<target>") to their target URL.
func resolveDuckDuckGoHref(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if u.Scheme == "" && u.Host != "" {
		u.Scheme = "https"
		return u.String()
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// filterByKeyword keeps candidates whose title contains any keyword,
// case-insensitively. Blank keywords are ignored; with none left, everything
// is kept.
func filterByKeyword(cands []types.Candidate, keywords []string) []types.Candidate {
	var kws []string
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			kws = append(kws, kw)
		}
	}
	if len(kws) == 0 {
		return cands
	}
	out := cands[:0]
	for _, c := range cands {
		title := strings.ToLower(c.Title)
		for _, kw := range kws {
			if strings.Contains(title, kw) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// SerpAPI JSON structures.
type serpResponse struct {
	Error          string       `json:"error"`
	OrganicResults []serpResult `json:"organic_results"`
}

type serpResult struct {
	Position      int    `json:"position"`
	Title         string `json:"title"`
	Link          string `json:"link"`
	DisplayedLink string `json:"displayed_link"`
	Snippet       string `json:"snippet"`
	Date          string `json:"date"`
}
