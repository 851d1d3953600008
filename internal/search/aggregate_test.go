// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pdiddy/multi-search/pkg/types"
)

// --- mock adapter ---

type mockAdapter struct {
	source    types.SourceKind
	cands     []types.Candidate
	err       error
	delay     time.Duration
	ignoreCtx bool
	panicMsg  string

	calls     atomic.Int32
	lastQuery atomic.Value
	lastLimit atomic.Int32
}

func (m *mockAdapter) Source() types.SourceKind { return m.source }

func (m *mockAdapter) Fetch(ctx context.Context, query string, limit int) ([]types.Candidate, error) {
	m.calls.Add(1)
	m.lastQuery.Store(query)
	m.lastLimit.Store(int32(limit))
	if m.delay > 0 {
		if m.ignoreCtx {
			time.Sleep(m.delay)
		} else {
			select {
			case <-time.After(m.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	return m.cands, m.err
}

func cand(src types.SourceKind, url string, score float64) types.Candidate {
	return types.Candidate{Source: src, Title: "Title " + url, URL: url, Score: score}
}

func urls(results []types.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.URL()
	}
	return out
}

func report(t *testing.T, resp *Response, k types.SourceKind) SourceReport {
	t.Helper()
	for _, r := range resp.Sources {
		if r.Source == k {
			return r
		}
	}
	t.Fatalf("no report for %s", k)
	return SourceReport{}
}

func aggregate(t *testing.T, adapters []Adapter, opts Options, text string, max int) (*Response, error) {
	t.Helper()
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 2 * time.Second
	}
	return NewAggregator(adapters, opts).Aggregate(context.Background(), Request{Text: text, MaxResults: max})
}

// --- request validation ---

func TestAggregateRejectsInvalidRequest(t *testing.T) {
	repo := &mockAdapter{source: types.SourceRepository}
	tests := []struct {
		name string
		req  Request
	}{
		{"empty text", Request{Text: "", MaxResults: 10}},
		{"blank text", Request{Text: "   \t", MaxResults: 10}},
		{"zero max", Request{Text: "go", MaxResults: 0}},
		{"above max", Request{Text: "go", MaxResults: 101}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAggregator([]Adapter{repo}, Options{}).Aggregate(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
	assert.Equal(t, int32(0), repo.calls.Load(), "invalid requests must not reach adapters")
}

func TestAggregateTrimsQueryAndPassesLimitHint(t *testing.T) {
	repo := &mockAdapter{source: types.SourceRepository, cands: []types.Candidate{cand(types.SourceRepository, "https://a.example/1", 1)}}
	_, err := aggregate(t, []Adapter{repo}, Options{}, "  graph database  ", 7)
	require.NoError(t, err)
	assert.Equal(t, "graph database", repo.lastQuery.Load())
	assert.Equal(t, int32(7), repo.lastLimit.Load())
}

// --- bounded, unique output ---

func TestAggregateNeverExceedsMaxResults(t *testing.T) {
	var repo, web []types.Candidate
	for i := 0; i < 40; i++ {
		repo = append(repo, cand(types.SourceRepository, fmt.Sprintf("https://github.com/o/r%d", i), float64(i)))
		web = append(web, cand(types.SourceWeb, fmt.Sprintf("https://web.example/%d", i), float64(40-i)))
	}
	adapters := []Adapter{
		&mockAdapter{source: types.SourceRepository, cands: repo},
		&mockAdapter{source: types.SourceWeb, cands: web},
	}

	for _, max := range []int{1, 5, 10, 79, 100} {
		t.Run(fmt.Sprint(max), func(t *testing.T) {
			resp, err := aggregate(t, adapters, Options{}, "q", max)
			require.NoError(t, err)
			want := max
			if want > 80 {
				want = 80
			}
			assert.Len(t, resp.Results, want)
		})
	}
}

func TestAggregateURLsAreUnique(t *testing.T) {
	shared := "https://example.com/shared"
	adapters := []Adapter{
		&mockAdapter{source: types.SourceRepository, cands: []types.Candidate{
			cand(types.SourceRepository, shared, 10),
			cand(types.SourceRepository, shared, 5),
		}},
		&mockAdapter{source: types.SourcePreprint, cands: []types.Candidate{cand(types.SourcePreprint, shared, 1)}},
		&mockAdapter{source: types.SourceCitation, cands: []types.Candidate{cand(types.SourceCitation, shared, 1)}},
		&mockAdapter{source: types.SourceWeb, cands: []types.Candidate{
			cand(types.SourceWeb, "HTTPS://EXAMPLE.COM/shared", 1),
			cand(types.SourceWeb, "https://example.com/other", 1),
		}},
	}

	resp, err := aggregate(t, adapters, Options{}, "q", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{shared, "https://example.com/other"}, urls(resp.Results))
	assert.Equal(t, 4, resp.DuplicatesRemoved)
	assert.Equal(t, types.SourceRepository, resp.Results[0].Source())
}

func TestAggregateKeepsDistinctURLsFromOneSource(t *testing.T) {
	in := []string{
		"https://example.com/a%2Fb",
		"https://example.com/a/b",
		"https://example.com/a/b/",
		"https://example.com/x?q=1#one",
		"https://example.com/x?q=1#two",
	}
	var cands []types.Candidate
	for i, u := range in {
		cands = append(cands, cand(types.SourceRepository, u, float64(len(in)-i)))
	}
	repo := &mockAdapter{source: types.SourceRepository, cands: cands}

	resp, err := aggregate(t, []Adapter{repo}, Options{}, "q", 10)
	require.NoError(t, err)
	assert.Equal(t, in, urls(resp.Results))
	assert.Zero(t, resp.DuplicatesRemoved)
}

// --- single adapter ordering ---

func TestAggregateSingleAdapterDescendingOrder(t *testing.T) {
	repo := &mockAdapter{source: types.SourceRepository, cands: []types.Candidate{
		cand(types.SourceRepository, "https://github.com/a/low", 10),
		cand(types.SourceRepository, "https://github.com/a/high", 900),
		cand(types.SourceRepository, "https://github.com/a/mid", 300),
	}}

	resp, err := aggregate(t, []Adapter{repo}, Options{}, "q", 10)
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, []string{"https://github.com/a/high", "https://github.com/a/mid", "https://github.com/a/low"}, urls(resp.Results))
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].NormalizedScore, resp.Results[i].NormalizedScore)
	}
	assert.Equal(t, 1.0, resp.Results[0].NormalizedScore)
	assert.Equal(t, 0.0, resp.Results[2].NormalizedScore)
	assert.Equal(t, 900.0, resp.Results[0].Score, "raw score is preserved")
}

// --- normalization and tie-breaking ---

func TestAggregateNormalizesPerSource(t *testing.T) {
	// Raw repository scores dwarf web scores; after normalization the best
	// of each source ties and priority decides.
	adapters := []Adapter{
		&mockAdapter{source: types.SourceWeb, cands: []types.Candidate{
			cand(types.SourceWeb, "https://web.example/best", 0.9),
			cand(types.SourceWeb, "https://web.example/mid", 0.5),
			cand(types.SourceWeb, "https://web.example/worst", 0.1),
		}},
		&mockAdapter{source: types.SourceRepository, cands: []types.Candidate{
			cand(types.SourceRepository, "https://github.com/a/best", 50000),
			cand(types.SourceRepository, "https://github.com/a/worst", 100),
		}},
	}

	resp, err := aggregate(t, adapters, Options{}, "q", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://github.com/a/best",
		"https://web.example/best",
		"https://web.example/mid",
		"https://github.com/a/worst",
		"https://web.example/worst",
	}, urls(resp.Results))
	assert.InDelta(t, 0.5, resp.Results[2].NormalizedScore, 1e-9)
}

func TestAggregateNormalizesExtremeFiniteScores(t *testing.T) {
	repo := &mockAdapter{source: types.SourceRepository, cands: []types.Candidate{
		cand(types.SourceRepository, "https://example.com/low", -math.MaxFloat64),
		cand(types.SourceRepository, "https://example.com/high", math.MaxFloat64),
		cand(types.SourceRepository, "https://example.com/zero", 0),
	}}

	resp, err := aggregate(t, []Adapter{repo}, Options{}, "q", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/high", "https://example.com/zero", "https://example.com/low"}, urls(resp.Results))
	want := []float64{1, 0.5, 0}
	for i, r := range resp.Results {
		assert.InDelta(t, want[i], r.NormalizedScore, 1e-9, r.URL())
	}

	_, err = json.Marshal(resp)
	assert.NoError(t, err)
}

func TestAggregateTiesBrokenByPriorityThenArrival(t *testing.T) {
	adapters := []Adapter{
		&mockAdapter{source: types.SourceWeb, cands: []types.Candidate{
			cand(types.SourceWeb, "https://w/1", 3),
			cand(types.SourceWeb, "https://w/2", 3),
		}},
		&mockAdapter{source: types.SourceCitation, cands: []types.Candidate{cand(types.SourceCitation, "https://c/1", 7)}},
		&mockAdapter{source: types.SourcePreprint, cands: []types.Candidate{
			cand(types.SourcePreprint, "https://p/1", 0.2),
			cand(types.SourcePreprint, "https://p/2", 0.2),
		}},
	}

	resp, err := aggregate(t, adapters, Options{}, "q", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://p/1", "https://p/2", "https://c/1", "https://w/1", "https://w/2"}, urls(resp.Results))
}

func TestAggregateOrderIndependentOfCompletionOrder(t *testing.T) {
	build := func(repoDelay, webDelay time.Duration) []Adapter {
		return []Adapter{
			&mockAdapter{source: types.SourceRepository, delay: repoDelay, cands: []types.Candidate{
				cand(types.SourceRepository, "https://r/1", 5),
				cand(types.SourceRepository, "https://r/2", 1),
			}},
			&mockAdapter{source: types.SourceWeb, delay: webDelay, cands: []types.Candidate{
				cand(types.SourceWeb, "https://w/1", 0.8),
				cand(types.SourceWeb, "https://w/2", 0.4),
			}},
		}
	}

	first, err := aggregate(t, build(0, 30*time.Millisecond), Options{}, "q", 10)
	require.NoError(t, err)
	second, err := aggregate(t, build(30*time.Millisecond, 0), Options{}, "q", 10)
	require.NoError(t, err)
	assert.Equal(t, urls(first.Results), urls(second.Results))
}

// --- dedup priority and metadata merge ---

func TestAggregateDuplicateKeepsHigherPriorityAndMergesMetadata(t *testing.T) {
	url := "https://arxiv.org/abs/1706.03762"
	adapters := []Adapter{
		&mockAdapter{source: types.SourceCitation, cands: []types.Candidate{{
			Source: types.SourceCitation, Title: "Attention (S2)", URL: url, Score: 1,
			Metadata: types.Metadata{"citation_count": 90000, "authors": "S2 authors"},
		}}},
		&mockAdapter{source: types.SourcePreprint, cands: []types.Candidate{{
			Source: types.SourcePreprint, Title: "Attention Is All You Need", URL: url, Score: 1,
			Metadata: types.Metadata{"arxiv_id": "1706.03762", "authors": "Vaswani et al."},
		}}},
	}

	resp, err := aggregate(t, adapters, Options{}, "attention", 10)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	r := resp.Results[0]
	assert.Equal(t, types.SourcePreprint, r.Source())
	assert.Equal(t, "Attention Is All You Need", r.Title)
	assert.Equal(t, "1706.03762", r.Metadata["arxiv_id"])
	assert.Equal(t, 90000, r.Metadata["citation_count"], "non-colliding key from the loser is merged")
	assert.Equal(t, "Vaswani et al.", r.Metadata["authors"], "colliding key keeps the survivor's value")
	assert.Equal(t, 1, resp.DuplicatesRemoved)
}

// --- validation inside the pipeline ---

func TestAggregateDropsMalformedItems(t *testing.T) {
	repo := &mockAdapter{source: types.SourceRepository, cands: []types.Candidate{
		cand(types.SourceRepository, "https://github.com/a/ok", 1),
		{Source: types.SourceRepository, Title: "", URL: "https://github.com/a/untitled"},
		{Source: types.SourceRepository, Title: "relative", URL: "/a/relative"},
		{Source: "", Title: "no source", URL: "https://github.com/a/nosource"},
	}}

	resp, err := aggregate(t, []Adapter{repo}, Options{}, "q", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://github.com/a/ok"}, urls(resp.Results))

	r := report(t, resp, types.SourceRepository)
	assert.Equal(t, StatusOK, r.Status)
	assert.Equal(t, 4, r.Returned)
	assert.Equal(t, 3, r.Dropped)
	assert.Equal(t, 1, r.Kept)
}

func TestAggregateDropsItemsTaggedWithAnotherSource(t *testing.T) {
	shared := "https://example.com/shared"
	adapters := []Adapter{
		&mockAdapter{source: types.SourcePreprint, cands: []types.Candidate{cand(types.SourcePreprint, shared, 1)}},
		&mockAdapter{source: types.SourceWeb, cands: []types.Candidate{
			cand(types.SourceRepository, shared, 5),
			cand(types.SourceWeb, "https://example.com/web", 1),
		}},
	}

	resp, err := aggregate(t, adapters, Options{}, "q", 10)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		if r.URL() == shared {
			assert.Equal(t, types.SourcePreprint, r.Source())
		}
	}
	assert.Zero(t, resp.DuplicatesRemoved)
	assert.Equal(t, 1, report(t, resp, types.SourceWeb).Dropped)
}

func TestAggregateSourceWithOnlyInvalidItemsStillSucceeds(t *testing.T) {
	repo := &mockAdapter{source: types.SourceRepository, cands: []types.Candidate{{Source: types.SourceRepository, URL: "::"}}}
	resp, err := aggregate(t, []Adapter{repo}, Options{}, "q", 10)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

// --- failure policy ---

func TestAggregateAllSourcesFail(t *testing.T) {
	adapters := []Adapter{
		&mockAdapter{source: types.SourceRepository, err: errors.New("connection refused")},
		&mockAdapter{source: types.SourcePreprint, err: upstreamError(types.SourcePreprint, fmt.Errorf("HTTP 503"))},
		&mockAdapter{source: types.SourceWeb, delay: time.Second},
	}

	resp, err := aggregate(t, adapters, Options{RequestTimeout: 50 * time.Millisecond}, "q", 10)
	assert.Nil(t, resp, "no partial list on total failure")
	require.ErrorIs(t, err, ErrAllSourcesUnavailable)

	var all *AllSourcesError
	require.ErrorAs(t, err, &all)
	for _, r := range all.Sources {
		assert.Equal(t, StatusFailed, r.Status, r.Source)
	}
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAggregateNoEnabledSources(t *testing.T) {
	resp, err := aggregate(t, nil, Options{Disabled: []types.SourceKind{types.SourceCitation}}, "q", 10)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrAllSourcesUnavailable)
	assert.Contains(t, err.Error(), "no sources enabled")
}

func TestAggregatePartialFailureIsNotAnError(t *testing.T) {
	adapters := []Adapter{
		&mockAdapter{source: types.SourceRepository, err: errors.New("boom")},
		&mockAdapter{source: types.SourceWeb, cands: []types.Candidate{cand(types.SourceWeb, "https://w/1", 1)}},
	}

	resp, err := aggregate(t, adapters, Options{}, "q", 10)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, []types.SourceKind{types.SourceWeb}, resp.Succeeded())
	assert.Equal(t, []types.SourceKind{types.SourceRepository}, resp.Failed())
}

func TestAggregateRateLimitedStatus(t *testing.T) {
	limited := &mockAdapter{source: types.SourceCitation, err: &UpstreamError{
		Source: types.SourceCitation, Kind: ErrUpstreamRateLimited, StatusCode: 429, Err: errors.New("HTTP 429"),
	}}
	ok := &mockAdapter{source: types.SourcePreprint, cands: []types.Candidate{cand(types.SourcePreprint, "https://p/1", 1)}}

	resp, err := aggregate(t, []Adapter{limited, ok}, Options{}, "q", 10)
	require.NoError(t, err)
	assert.Equal(t, StatusRateLimited, report(t, resp, types.SourceCitation).Status)
	assert.Equal(t, int32(1), limited.calls.Load(), "no retry within a request")
}

func TestAggregateRecoversAdapterPanic(t *testing.T) {
	adapters := []Adapter{
		&mockAdapter{source: types.SourceRepository, panicMsg: "nil map"},
		&mockAdapter{source: types.SourceWeb, cands: []types.Candidate{cand(types.SourceWeb, "https://w/1", 1)}},
	}

	resp, err := aggregate(t, adapters, Options{}, "q", 10)
	require.NoError(t, err)
	r := report(t, resp, types.SourceRepository)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Contains(t, r.Error, "adapter panic: nil map")
}

// --- deadlines and bulkhead isolation ---

func TestAggregateDeadlineAbandonsSlowAdapter(t *testing.T) {
	slow := &mockAdapter{source: types.SourcePreprint, delay: 5 * time.Second, ignoreCtx: true}
	fast := &mockAdapter{source: types.SourceRepository, cands: []types.Candidate{cand(types.SourceRepository, "https://r/1", 1)}}

	start := time.Now()
	resp, err := aggregate(t, []Adapter{slow, fast}, Options{RequestTimeout: 100 * time.Millisecond}, "q", 10)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 2*time.Second, "collection must not wait for an adapter past the deadline")
	assert.Equal(t, []string{"https://r/1"}, urls(resp.Results))

	r := report(t, resp, types.SourcePreprint)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Contains(t, r.Error, "deadline")
}

func TestCollectKeepsDeliveriesBufferedAtDeadline(t *testing.T) {
	a := NewAggregator([]Adapter{
		&mockAdapter{source: types.SourceRepository},
		&mockAdapter{source: types.SourcePreprint},
	}, Options{})
	done, cancel := context.WithCancel(context.Background())
	cancel()

	// select picks randomly between ready cases, so repeat to cover both.
	for i := 0; i < 50; i++ {
		slots := []outcome{
			{source: types.SourceRepository, invoked: true},
			{source: types.SourcePreprint, invoked: true},
		}
		ch := make(chan delivery, 2)
		ch <- delivery{idx: 0, out: outcome{candidates: []types.Candidate{cand(types.SourceRepository, "https://r/1", 1)}}}

		a.collect(done, ch, []int{0, 1}, slots, time.Now())

		require.NoError(t, slots[0].err, "iteration %d", i)
		assert.Len(t, slots[0].candidates, 1)
		assert.Equal(t, types.SourceRepository, slots[0].source)
		assert.ErrorIs(t, slots[1].err, ErrUpstreamUnavailable)
		assert.True(t, slots[1].done)
	}
}

func TestAggregateSourceTimeoutCapsOneAdapter(t *testing.T) {
	slow := &mockAdapter{source: types.SourcePreprint, delay: time.Second,
		cands: []types.Candidate{cand(types.SourcePreprint, "https://p/1", 1)}}
	fast := &mockAdapter{source: types.SourceRepository, cands: []types.Candidate{cand(types.SourceRepository, "https://r/1", 1)}}

	resp, err := aggregate(t, []Adapter{slow, fast}, Options{RequestTimeout: 5 * time.Second, SourceTimeout: 50 * time.Millisecond}, "q", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://r/1"}, urls(resp.Results))
	r := report(t, resp, types.SourcePreprint)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Contains(t, r.Error, "deadline")
}

func TestAggregateHonoursCallerDeadline(t *testing.T) {
	slow := &mockAdapter{source: types.SourcePreprint, delay: 5 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewAggregator([]Adapter{slow}, Options{RequestTimeout: time.Minute}).
		Aggregate(ctx, Request{Text: "q", MaxResults: 10})
	assert.ErrorIs(t, err, ErrAllSourcesUnavailable)
}

// --- enabled set ---

func TestAggregateDisabledSourceIsSkipped(t *testing.T) {
	failing := &mockAdapter{source: types.SourceRepository, err: errors.New("down")}
	ok := &mockAdapter{source: types.SourcePreprint, cands: []types.Candidate{cand(types.SourcePreprint, "https://p/1", 1)}}
	opts := Options{Disabled: []types.SourceKind{types.SourceCitation}}

	resp, err := aggregate(t, []Adapter{failing, ok}, opts, "q", 10)
	require.NoError(t, err)
	c := report(t, resp, types.SourceCitation)
	assert.Equal(t, StatusSkipped, c.Status)
	assert.Empty(t, c.Error)
	assert.NotContains(t, resp.Failed(), types.SourceCitation)

	// With every enabled source failing, the disabled one does not rescue
	// or change the outcome.
	_, err = aggregate(t, []Adapter{failing}, opts, "q", 10)
	require.ErrorIs(t, err, ErrAllSourcesUnavailable)
	var all *AllSourcesError
	require.ErrorAs(t, err, &all)
	assert.NotContains(t, err.Error(), "citation")
}

func TestAggregatorEnabledIsPriorityOrdered(t *testing.T) {
	agg := NewAggregator([]Adapter{
		&mockAdapter{source: types.SourceWeb},
		&mockAdapter{source: types.SourceRepository},
		&mockAdapter{source: types.SourceCitation},
	}, Options{Disabled: []types.SourceKind{types.SourcePreprint}})

	assert.Equal(t, []types.SourceKind{types.SourceRepository, types.SourceCitation, types.SourceWeb}, agg.Enabled())
	assert.Equal(t, []types.SourceKind{types.SourcePreprint}, agg.Disabled())
}

// --- web fallback mode ---

func TestAggregateWebFallbackNotNeeded(t *testing.T) {
	repo := &mockAdapter{source: types.SourceRepository, cands: []types.Candidate{
		cand(types.SourceRepository, "https://r/1", 2),
		cand(types.SourceRepository, "https://r/2", 1),
	}}
	web := &mockAdapter{source: types.SourceWeb, cands: []types.Candidate{cand(types.SourceWeb, "https://w/1", 1)}}

	resp, err := aggregate(t, []Adapter{repo, web}, Options{WebMode: types.WebFallback}, "q", 2)
	require.NoError(t, err)
	assert.Equal(t, int32(0), web.calls.Load())
	assert.Equal(t, StatusSkipped, report(t, resp, types.SourceWeb).Status)
}

func TestAggregateWebFallbackFillsShortfall(t *testing.T) {
	repo := &mockAdapter{source: types.SourceRepository, cands: []types.Candidate{cand(types.SourceRepository, "https://r/1", 2)}}
	web := &mockAdapter{source: types.SourceWeb, cands: []types.Candidate{cand(types.SourceWeb, "https://w/1", 1)}}

	resp, err := aggregate(t, []Adapter{repo, web}, Options{WebMode: types.WebFallback}, "q", 5)
	require.NoError(t, err)
	assert.Equal(t, int32(1), web.calls.Load())
	assert.Equal(t, []string{"https://r/1", "https://w/1"}, urls(resp.Results))
}

func TestAggregateWebFallbackRescuesTotalPrimaryFailure(t *testing.T) {
	repo := &mockAdapter{source: types.SourceRepository, err: errors.New("down")}
	web := &mockAdapter{source: types.SourceWeb, cands: []types.Candidate{cand(types.SourceWeb, "https://w/1", 1)}}

	resp, err := aggregate(t, []Adapter{repo, web}, Options{WebMode: types.WebFallback}, "q", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://w/1"}, urls(resp.Results))
}

func TestAggregateWebFallbackOnlyWebEnabled(t *testing.T) {
	web := &mockAdapter{source: types.SourceWeb, cands: []types.Candidate{cand(types.SourceWeb, "https://w/1", 1)}}

	resp, err := aggregate(t, []Adapter{web}, Options{WebMode: types.WebFallback}, "q", 5)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
}

// --- end-to-end scenario ---

func TestAggregateGraphDatabaseScenario(t *testing.T) {
	repo := &mockAdapter{source: types.SourceRepository, cands: []types.Candidate{
		{Source: types.SourceRepository, Title: "neo4j/neo4j", URL: "https://github.com/neo4j/neo4j", Score: 13000,
			Metadata: types.Metadata{"stars": 13000}},
		{Source: types.SourceRepository, Title: "dgraph-io/dgraph", URL: "https://github.com/dgraph-io/dgraph", Score: 20000,
			Metadata: types.Metadata{"stars": 20000}},
		{Source: types.SourceRepository, Title: "cayleygraph/cayley", URL: "https://github.com/cayleygraph/cayley", Score: 14000,
			Metadata: types.Metadata{"stars": 14000}},
		{Source: types.SourceRepository, Title: "broken", URL: "not a url"},
	}}
	preprint := &mockAdapter{source: types.SourcePreprint, delay: 5 * time.Second,
		cands: []types.Candidate{cand(types.SourcePreprint, "https://arxiv.org/abs/1", 1)}}
	web := &mockAdapter{source: types.SourceWeb, cands: []types.Candidate{
		{Source: types.SourceWeb, Title: "Neo4j on GitHub", URL: "https://github.com/neo4j/neo4j", Score: 1,
			Metadata: types.Metadata{"engine": "serpapi"}},
		{Source: types.SourceWeb, Title: "What is a graph database?", URL: "https://aws.amazon.com/nosql/graph/", Score: 0.8},
		{Source: types.SourceWeb, Title: "Dgraph", URL: "https://github.com/dgraph-io/dgraph", Score: 0.6,
			Metadata: types.Metadata{"stars": 1, "engine": "serpapi"}},
		{Source: types.SourceWeb, Title: "Graph database - Wikipedia", URL: "https://en.wikipedia.org/wiki/Graph_database", Score: 0.4},
	}}

	resp, err := aggregate(t, []Adapter{repo, preprint, web}, Options{RequestTimeout: 200 * time.Millisecond}, "graph database", 5)
	require.NoError(t, err, "partial success is not an error")
	require.LessOrEqual(t, len(resp.Results), 5)

	seen := map[string]types.Result{}
	for _, r := range resp.Results {
		_, dup := seen[r.URL()]
		require.False(t, dup, "duplicate URL %s", r.URL())
		seen[r.URL()] = r
		assert.NotEqual(t, "broken", r.Title)
		assert.NotEqual(t, types.SourcePreprint, r.Source())
	}

	neo := seen["https://github.com/neo4j/neo4j"]
	assert.Equal(t, types.SourceRepository, neo.Source())
	assert.Equal(t, "serpapi", neo.Metadata["engine"])
	dgraph := seen["https://github.com/dgraph-io/dgraph"]
	assert.Equal(t, types.SourceRepository, dgraph.Source())
	assert.Equal(t, 20000, dgraph.Metadata["stars"])

	assert.Len(t, resp.Results, 5)
	assert.Equal(t, 2, resp.DuplicatesRemoved)
	assert.Equal(t, 1, report(t, resp, types.SourceRepository).Dropped)
	assert.Equal(t, StatusFailed, report(t, resp, types.SourcePreprint).Status)
	assert.Equal(t, []types.SourceKind{types.SourceRepository, types.SourceWeb}, resp.Succeeded())
}

// --- observability ---

func TestAggregateRecordsMetrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)
	adapters := []Adapter{
		&mockAdapter{source: types.SourceRepository, cands: []types.Candidate{
			cand(types.SourceRepository, "https://r/1", 1),
			{Source: types.SourceRepository, URL: "https://r/untitled"},
		}},
		&mockAdapter{source: types.SourceWeb, err: errors.New("down")},
	}

	_, err := aggregate(t, adapters, Options{Metrics: m}, "q", 10)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sourceRequests.WithLabelValues("repository", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sourceRequests.WithLabelValues("web", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedItems.WithLabelValues("repository")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.aggregations.WithLabelValues("ok")))
}

func TestAggregateLogsSourceFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapters := []Adapter{
		&mockAdapter{source: types.SourceRepository, err: errors.New("down")},
		&mockAdapter{source: types.SourceWeb, cands: []types.Candidate{cand(types.SourceWeb, "https://w/1", 1)}},
	}

	_, err := aggregate(t, adapters, Options{Logger: zap.New(core)}, "q", 10)
	require.NoError(t, err)

	failed := logs.FilterMessage("source failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "repository", failed[0].ContextMap()["source"])
	assert.NotEmpty(t, failed[0].ContextMap()["request_id"])
	assert.Equal(t, 1, logs.FilterMessage("aggregation finished").Len())
}

func TestAggregateUsesContextRequestID(t *testing.T) {
	repo := &mockAdapter{source: types.SourceRepository, cands: []types.Candidate{cand(types.SourceRepository, "https://r/1", 1)}}
	agg := NewAggregator([]Adapter{repo}, Options{})

	resp, err := agg.Aggregate(WithRequestID(context.Background(), "req-42"), Request{Text: "q", MaxResults: 1})
	require.NoError(t, err)
	assert.Equal(t, "req-42", resp.RequestID)

	resp, err = agg.Aggregate(context.Background(), Request{Text: "q", MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, resp.RequestID, 36, "generated UUID")
}
