// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the source adapters.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a failed response body is kept for the
// error message.
const maxErrorBody = 512

// StatusError describes a non-2xx upstream response.
type StatusError struct {
	Code int

	// RateLimited is set when the upstream signalled quota exhaustion.
	RateLimited bool

	// RetryAfter is the parsed Retry-After (or X-RateLimit-Reset) hint, zero if absent.
	RetryAfter time.Duration

	// Body holds the start of the response body.
	Body string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("HTTP %d", e.Code)
	if e.RateLimited {
		msg += " (rate limited"
		if e.RetryAfter > 0 {
			msg += fmt.Sprintf(", retry after %v", e.RetryAfter)
		}
		msg += ")"
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// AsStatusError unwraps err to a *StatusError if it carries one.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// CheckResponse returns nil for 2xx responses and a *StatusError otherwise.
// On error the body is drained and closed.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	io.Copy(io.Discard, resp.Body)

	return &StatusError{
		Code:        resp.StatusCode,
		RateLimited: IsRateLimited(resp),
		RetryAfter:  retryAfter(resp.Header, time.Now()),
		Body:        strings.TrimSpace(string(body)),
	}
}

// IsRateLimited reports whether resp signals quota exhaustion: HTTP 429, or
// HTTP 403 with an exhausted X-RateLimit-Remaining header (GitHub).
func IsRateLimited(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Header.Get("X-RateLimit-Remaining") == "0"
	default:
		return false
	}
}

// retryAfter reads Retry-After (delta seconds or HTTP date) and falls back
// to X-RateLimit-Reset (unix seconds).
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil && t.After(now) {
			return t.Sub(now)
		}
	}
	if v := strings.TrimSpace(h.Get("X-RateLimit-Reset")); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if t := time.Unix(unix, 0); t.After(now) {
				return t.Sub(now)
			}
		}
	}
	return 0
}

// NewGetRequest builds a GET request bound to ctx with the given User-Agent.
func NewGetRequest(ctx context.Context, rawURL, userAgent string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return req, nil
}
