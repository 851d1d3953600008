// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Output formats accepted by Format.
const (
	FormatNameTable = "table"
	FormatNameJSON  = "json"
	FormatNameYAML  = "yaml"
)

// Format writes resp to w in the named format.
func Format(resp *Response, format string, w io.Writer) error {
	switch format {
	case "", FormatNameTable:
		FormatTable(resp, w)
		return nil
	case FormatNameJSON:
		return FormatJSON(resp, w)
	case FormatNameYAML:
		return FormatYAML(resp, w)
	default:
		return fmt.Errorf("unknown output format %q (want table, json, or yaml)", format)
	}
}

// FormatTable writes results as a human-readable table followed by a
// one-line source summary.
func FormatTable(resp *Response, w io.Writer) {
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
	} else {
		fmt.Fprintf(w, "%-4s  %-50s  %-10s  %-5s  %s\n", "Rank", "Title", "Source", "Score", "URL")
		fmt.Fprintln(w, strings.Repeat("-", 110))

		for i, r := range resp.Results {
			fmt.Fprintf(w, "%-4d  %-50s  %-10s  %-5.2f  %s\n",
				i+1, truncate(r.Title, 50), r.Source(), r.NormalizedScore, r.URL())
		}
		fmt.Fprintf(w, "\n%d results", len(resp.Results))
		if resp.DuplicatesRemoved > 0 {
			fmt.Fprintf(w, " (%d duplicates removed)", resp.DuplicatesRemoved)
		}
		fmt.Fprintln(w)
	}

	var parts []string
	for _, s := range resp.Sources {
		part := fmt.Sprintf("%s=%s", s.Source, s.Status)
		if s.Status == StatusOK {
			part += fmt.Sprintf("(%d", s.Returned)
			if s.Dropped > 0 {
				part += fmt.Sprintf(", %d dropped", s.Dropped)
			}
			part += ")"
		}
		parts = append(parts, part)
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "sources: %s\n", strings.Join(parts, " "))
	}
}

// FormatJSON writes the response as indented JSON.
func FormatJSON(resp *Response, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// FormatYAML writes the response as YAML.
func FormatYAML(resp *Response, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return enc.Close()
}

func truncate(s string, max int) string {
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}
