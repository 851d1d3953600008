// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"errors"
	"math"
	"sort"

	"github.com/pdiddy/multi-search/pkg/types"
)

// tally counts what happened to one slot's items during the merge.
type tally struct {
	dropped int
	kept    int
}

// entry is a validated result with the facts ranking needs.
type entry struct {
	result   types.Result
	slot     int
	priority int
	arrival  int
}

// merge validates, normalizes, deduplicates, ranks, and truncates the
// result sets of every successful slot. It runs after collection on a
// single goroutine and never looks at completion order: slots are indexed
// by source priority and items keep their arrival position.
func merge(slots []outcome, max int) ([]types.Result, int, []tally) {
	tallies := make([]tally, len(slots))

	var all []entry
	for i, s := range slots {
		if !s.done || s.err != nil {
			continue
		}
		batch := make([]entry, 0, len(s.candidates))
		for pos, c := range s.candidates {
			// The slot's adapter owns the source tag.
			if c.Source != s.source {
				tallies[i].dropped++
				continue
			}
			r, err := Validate(c)
			if err != nil {
				tallies[i].dropped++
				continue
			}
			batch = append(batch, entry{result: r, slot: i, priority: r.Source().Priority(), arrival: pos})
		}
		normalize(batch)
		all = append(all, batch...)
	}

	// Visit in priority then arrival order so the first occurrence of a URL
	// is always the one to keep.
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].priority != all[j].priority {
			return all[i].priority < all[j].priority
		}
		return all[i].slot < all[j].slot
	})
	deduped, removed := deduplicate(all)

	sort.SliceStable(deduped, func(i, j int) bool {
		a, b := deduped[i], deduped[j]
		if a.result.NormalizedScore != b.result.NormalizedScore {
			return a.result.NormalizedScore > b.result.NormalizedScore
		}
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if a.slot != b.slot {
			return a.slot < b.slot
		}
		return a.arrival < b.arrival
	})

	if len(deduped) > max {
		deduped = deduped[:max]
	}

	results := make([]types.Result, len(deduped))
	for i, e := range deduped {
		results[i] = e.result
		tallies[e.slot].kept++
	}
	return results, removed, tallies
}

// normalize rescales the raw scores of one source batch onto [0,1] with
// min-max normalization. A batch whose scores are all equal maps to 1.
func normalize(batch []entry) {
	if len(batch) == 0 {
		return
	}
	lo, hi := batch[0].result.Score, batch[0].result.Score
	for _, e := range batch[1:] {
		if e.result.Score < lo {
			lo = e.result.Score
		}
		if e.result.Score > hi {
			hi = e.result.Score
		}
	}
	// Halved so that hi-lo stays finite for scores near ±MaxFloat64.
	lo, hi = lo/2, hi/2
	span := hi - lo
	for i := range batch {
		if span == 0 {
			batch[i].result.NormalizedScore = 1
			continue
		}
		n := (batch[i].result.Score/2 - lo) / span
		batch[i].result.NormalizedScore = math.Max(0, math.Min(1, n))
	}
}

// deduplicate keeps the first entry per URL and folds the metadata of later
// duplicates into it. Input must be in priority order.
func deduplicate(entries []entry) ([]entry, int) {
	seen := make(map[string]int, len(entries))
	out := make([]entry, 0, len(entries))
	removed := 0

	for _, e := range entries {
		key := dedupKey(e.result.URL())
		if idx, ok := seen[key]; ok {
			mergeMetadata(&out[idx].result, e.result)
			removed++
			continue
		}
		seen[key] = len(out)
		out = append(out, e)
	}
	return out, removed
}

// mergeMetadata copies metadata keys of src that dst does not have. Keys
// present on both keep dst's value.
func mergeMetadata(dst *types.Result, src types.Result) {
	if len(src.Metadata) == 0 {
		return
	}
	if dst.Metadata == nil {
		dst.Metadata = make(types.Metadata, len(src.Metadata))
	}
	for k, v := range src.Metadata {
		if _, ok := dst.Metadata[k]; !ok {
			dst.Metadata[k] = v
		}
	}
}

func isRateLimited(err error) bool {
	return errors.Is(err, ErrUpstreamRateLimited)
}
