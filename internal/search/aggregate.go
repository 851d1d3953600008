// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search fans one free-text query out to several independent
// backends, normalizes their responses into one result model, and returns a
// merged, ranked, bounded list.
//
// One adapter's failure or timeout never blocks or aborts the others: each
// adapter runs in its own goroutine and reports into its own slot, and the
// collection step waits for either every slot or the request deadline.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/multi-search/pkg/types"
)

// Request bounds.
const (
	MinResults            = 1
	MaxResults            = 100
	DefaultMaxResults     = 10
	DefaultRequestTimeout = 10 * time.Second
)

// Request is one query to aggregate.
type Request struct {
	Text       string
	MaxResults int
}

func (r Request) normalize() (Request, error) {
	r.Text = strings.TrimSpace(r.Text)
	if r.Text == "" {
		return r, fmt.Errorf("%w: query text is empty", ErrInvalidRequest)
	}
	if r.MaxResults < MinResults || r.MaxResults > MaxResults {
		return r, fmt.Errorf("%w: max_results must be between %d and %d, got %d",
			ErrInvalidRequest, MinResults, MaxResults, r.MaxResults)
	}
	return r, nil
}

// SourceStatus is the outcome of one source within an aggregation.
type SourceStatus string

const (
	StatusOK          SourceStatus = "ok"
	StatusFailed      SourceStatus = "failed"
	StatusRateLimited SourceStatus = "rate_limited"
	StatusSkipped     SourceStatus = "skipped"
)

// SourceReport describes what one source contributed to an aggregation.
type SourceReport struct {
	Source types.SourceKind `json:"source" yaml:"source"`
	Status SourceStatus     `json:"status" yaml:"status"`
	Error  string           `json:"error,omitempty" yaml:"error,omitempty"`

	// Returned counts raw items, Dropped those rejected by validation, and
	// Kept those present in the final list.
	Returned int `json:"returned" yaml:"returned"`
	Dropped  int `json:"dropped" yaml:"dropped"`
	Kept     int `json:"kept" yaml:"kept"`

	DurationMS int64 `json:"duration_ms" yaml:"duration_ms"`
}

// Response is the outcome of a successful aggregation.
type Response struct {
	RequestID         string         `json:"request_id" yaml:"request_id"`
	Query             string         `json:"query" yaml:"query"`
	Results           []types.Result `json:"results" yaml:"results"`
	Sources           []SourceReport `json:"sources" yaml:"sources"`
	DuplicatesRemoved int            `json:"duplicates_removed" yaml:"duplicates_removed"`
}

// Succeeded lists the sources that returned a result set.
func (r *Response) Succeeded() []types.SourceKind {
	return r.sourcesWith(func(s SourceStatus) bool { return s == StatusOK })
}

// Failed lists the sources that were invoked and failed.
func (r *Response) Failed() []types.SourceKind {
	return r.sourcesWith(func(s SourceStatus) bool { return s == StatusFailed || s == StatusRateLimited })
}

func (r *Response) sourcesWith(match func(SourceStatus) bool) []types.SourceKind {
	var out []types.SourceKind
	for _, s := range r.Sources {
		if match(s.Status) {
			out = append(out, s.Source)
		}
	}
	return out
}

// Options configures an Aggregator.
type Options struct {
	// RequestTimeout is the single deadline for a whole aggregation
	// (default 10s). A caller deadline that is earlier wins.
	RequestTimeout time.Duration

	// SourceTimeout optionally caps each adapter below the request deadline.
	SourceTimeout time.Duration

	// WebMode selects whether the web source runs alongside the others
	// (default) or only when they came back short.
	WebMode types.WebMode

	// Disabled lists sources excluded by configuration. They are reported
	// as skipped and never invoked.
	Disabled []types.SourceKind

	Logger  *zap.Logger
	Metrics *Metrics
}

// Aggregator orchestrates fan-out, collection, validation, deduplication,
// normalization, ranking, and truncation for one query at a time. It holds
// no per-request state and is safe for concurrent use.
type Aggregator struct {
	adapters []Adapter
	opts     Options
	logger   *zap.Logger
}

// NewAggregator creates an Aggregator over the enabled adapters. Adapters
// are ordered by source priority; the order they are given in is irrelevant.
func NewAggregator(adapters []Adapter, opts Options) *Aggregator {
	sorted := make([]Adapter, len(adapters))
	copy(sorted, adapters)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Source().Priority() < sorted[j].Source().Priority()
	})

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.WebMode == "" {
		opts.WebMode = types.WebParallel
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{adapters: sorted, opts: opts, logger: log}
}

// Enabled lists the sources that take part in fan-out, in priority order.
func (a *Aggregator) Enabled() []types.SourceKind {
	out := make([]types.SourceKind, len(a.adapters))
	for i, ad := range a.adapters {
		out[i] = ad.Source()
	}
	return out
}

// Disabled lists the sources excluded by configuration.
func (a *Aggregator) Disabled() []types.SourceKind {
	return append([]types.SourceKind(nil), a.opts.Disabled...)
}

type requestIDKey struct{}

// WithRequestID makes Aggregate use id instead of generating one, so a
// transport-level request ID also tags the aggregation logs and response.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the ID set by WithRequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// outcome is the slot one adapter invocation reports into.
type outcome struct {
	source     types.SourceKind
	invoked    bool
	done       bool
	candidates []types.Candidate
	err        error
	duration   time.Duration
}

// Aggregate runs the full pipeline for req. It returns a (possibly short)
// ranked list when at least one invoked source succeeded, an error matching
// ErrInvalidRequest for a malformed request, and an *AllSourcesError
// matching ErrAllSourcesUnavailable when every invoked source failed.
func (a *Aggregator) Aggregate(ctx context.Context, req Request) (*Response, error) {
	req, err := req.normalize()
	if err != nil {
		a.opts.Metrics.observeAggregation("invalid")
		return nil, err
	}

	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := a.logger.With(zap.String("request_id", requestID), zap.String("query", req.Text))

	ctx, cancel := context.WithTimeout(ctx, a.opts.RequestTimeout)
	defer cancel()

	start := time.Now()
	slots := make([]outcome, len(a.adapters))
	for i, ad := range a.adapters {
		slots[i].source = ad.Source()
	}

	primary, web := a.partition()
	a.fanOut(ctx, primary, req, slots)
	if len(web) > 0 && a.needWeb(slots, req.MaxResults) {
		a.fanOut(ctx, web, req, slots)
	}

	results, removed, tallies := merge(slots, req.MaxResults)
	reports := a.reports(slots, tallies)

	for _, r := range reports {
		a.opts.Metrics.observeSource(r)
		switch r.Status {
		case StatusFailed, StatusRateLimited:
			log.Warn("source failed",
				zap.String("source", string(r.Source)),
				zap.String("status", string(r.Status)),
				zap.String("error", r.Error),
				zap.Int64("duration_ms", r.DurationMS))
		case StatusOK:
			if r.Dropped > 0 {
				log.Debug("dropped invalid items",
					zap.String("source", string(r.Source)),
					zap.Int("dropped", r.Dropped))
			}
		}
	}

	if !anySucceeded(slots) {
		a.opts.Metrics.observeAggregation("all_unavailable")
		log.Warn("all sources unavailable", zap.Duration("elapsed", time.Since(start)))
		return nil, &AllSourcesError{Sources: reports}
	}

	a.opts.Metrics.observeAggregation("ok")
	log.Info("aggregation finished",
		zap.Int("results", len(results)),
		zap.Int("duplicates_removed", removed),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{
		RequestID:         requestID,
		Query:             req.Text,
		Results:           results,
		Sources:           reports,
		DuplicatesRemoved: removed,
	}, nil
}

// partition splits adapter indexes into the first wave and the web
// fallback wave. In parallel mode, or when nothing else is enabled,
// everything is in the first wave.
func (a *Aggregator) partition() (primary, web []int) {
	for i, ad := range a.adapters {
		if a.opts.WebMode == types.WebFallback && ad.Source() == types.SourceWeb {
			web = append(web, i)
			continue
		}
		primary = append(primary, i)
	}
	if len(primary) == 0 {
		return web, nil
	}
	return primary, web
}

// needWeb reports whether the first wave produced fewer unique valid
// results than requested.
func (a *Aggregator) needWeb(slots []outcome, want int) bool {
	seen := make(map[string]struct{})
	for _, s := range slots {
		if !s.done || s.err != nil {
			continue
		}
		for _, c := range s.candidates {
			r, err := Validate(c)
			if err != nil {
				continue
			}
			seen[dedupKey(r.URL())] = struct{}{}
			if len(seen) >= want {
				return false
			}
		}
	}
	return true
}

type delivery struct {
	idx int
	out outcome
}

// fanOut invokes the adapters at idxs concurrently and waits until all of
// them reported or ctx is done. Adapters still running at that point are
// recorded as unavailable and their contexts cancelled.
func (a *Aggregator) fanOut(ctx context.Context, idxs []int, req Request, slots []outcome) {
	if len(idxs) == 0 {
		return
	}
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	ch := make(chan delivery, len(idxs))
	for _, idx := range idxs {
		slots[idx].invoked = true
		go func(idx int, ad Adapter, text string, limit int) {
			ch <- delivery{idx: idx, out: a.invoke(callCtx, ad, text, limit)}
		}(idx, a.adapters[idx], req.Text, req.MaxResults)
	}

	a.collect(ctx, ch, idxs, slots, start)
}

// collect stores deliveries into slots until every adapter in idxs has
// reported or ctx is done. Deliveries already buffered when ctx ends still
// count; only adapters that never delivered are marked unavailable.
func (a *Aggregator) collect(ctx context.Context, ch <-chan delivery, idxs []int, slots []outcome, start time.Time) {
	store := func(d delivery) {
		d.out.source = slots[d.idx].source
		d.out.invoked = true
		d.out.done = true
		slots[d.idx] = d.out
	}

	for pending := len(idxs); pending > 0; pending-- {
		select {
		case d := <-ch:
			store(d)
		case <-ctx.Done():
		drain:
			for {
				select {
				case d := <-ch:
					store(d)
				default:
					break drain
				}
			}
			elapsed := time.Since(start)
			for _, idx := range idxs {
				if slots[idx].done {
					continue
				}
				slots[idx].done = true
				slots[idx].duration = elapsed
				slots[idx].err = upstreamError(a.adapters[idx].Source(),
					fmt.Errorf("request deadline reached: %w", ctx.Err()))
			}
			return
		}
	}
}

// invoke runs one adapter under its own deadline and converts any failure,
// including a panic, into an *UpstreamError.
func (a *Aggregator) invoke(ctx context.Context, ad Adapter, text string, limit int) (out outcome) {
	src := ad.Source()
	start := time.Now()
	if a.opts.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.SourceTimeout)
		defer cancel()
	}
	defer func() {
		out.duration = time.Since(start)
		if p := recover(); p != nil {
			out.candidates = nil
			out.err = upstreamError(src, fmt.Errorf("adapter panic: %v", p))
		}
	}()

	cands, err := ad.Fetch(ctx, text, limit)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("source deadline reached: %w", ctx.Err())
	}
	if err != nil {
		return outcome{err: upstreamError(src, err)}
	}
	return outcome{candidates: cands}
}

// reports builds one report per known source in priority order: configured
// ones from their slots, disabled or uninvoked ones as skipped.
func (a *Aggregator) reports(slots []outcome, tallies []tally) []SourceReport {
	var out []SourceReport
	for i, ad := range a.adapters {
		s := slots[i]
		r := SourceReport{
			Source:     ad.Source(),
			DurationMS: s.duration.Milliseconds(),
			Dropped:    tallies[i].dropped,
			Kept:       tallies[i].kept,
		}
		switch {
		case !s.invoked:
			r.Status = StatusSkipped
		case s.err != nil:
			r.Status = StatusFailed
			if isRateLimited(s.err) {
				r.Status = StatusRateLimited
			}
			r.Error = s.err.Error()
		default:
			r.Status = StatusOK
			r.Returned = len(s.candidates)
		}
		out = append(out, r)
	}
	for _, k := range a.opts.Disabled {
		out = append(out, SourceReport{Source: k, Status: StatusSkipped})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Source.Priority() < out[j].Source.Priority()
	})
	return out
}

func anySucceeded(slots []outcome) bool {
	for _, s := range slots {
		if s.invoked && s.done && s.err == nil {
			return true
		}
	}
	return false
}
