// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets reads source credentials from a directory of plain-text
// files and applies them to the search configuration. Each file holds one
// secret: the filename is the key name and the trimmed contents the value.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/multi-search/pkg/types"
)

// DefaultDir is the secrets directory relative to the working directory.
const DefaultDir = ".secrets/"

// Recognized key files.
const (
	GitHubToken           = "github-token"
	SemanticScholarAPIKey = "semantic-scholar-api-key"
	SerpAPIKey            = "serpapi-key"
)

// credential binds a key file to the config field it fills.
type credential struct {
	key   string
	field func(*types.SearchConfig) *string
}

var credentials = []credential{
	{GitHubToken, func(c *types.SearchConfig) *string { return &c.GitHub.Token }},
	{SemanticScholarAPIKey, func(c *types.SearchConfig) *string { return &c.SemanticScholar.APIKey }},
	{SerpAPIKey, func(c *types.SearchConfig) *string { return &c.Web.SerpAPIKey }},
}

// Known reports whether name is a key file some source consumes.
func Known(name string) bool {
	for _, c := range credentials {
		if c.key == name {
			return true
		}
	}
	return false
}

// Load returns the non-empty secrets in dir keyed by filename. A missing
// directory yields an empty map. Dotfiles and subdirectories are ignored;
// unreadable files are logged at Warn and skipped.
func Load(dir string, log *zap.Logger) (map[string]string, error) {
	if log == nil {
		log = zap.NewNop()
	}

	entries, err := os.ReadDir(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return map[string]string{}, nil
	case err != nil:
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	out := make(map[string]string, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("could not read secret", zap.String("key", name), zap.Error(err))
			continue
		}
		value := strings.TrimSpace(string(data))
		if value == "" {
			continue
		}
		if !Known(name) {
			log.Debug("secret not used by any source", zap.String("key", name))
		}
		out[name] = value
	}
	return out, nil
}

// Apply fills the credentials cfg still lacks from s. Values already set by
// the config file or environment win. It returns the key names it used.
func Apply(cfg *types.SearchConfig, s map[string]string) []string {
	var used []string
	for _, c := range credentials {
		dst := c.field(cfg)
		if *dst != "" {
			continue
		}
		if v := s[c.key]; v != "" {
			*dst = v
			used = append(used, c.key)
		}
	}
	return used
}

// Keys returns the loaded key names, sorted. Values are never logged.
func Keys(s map[string]string) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
