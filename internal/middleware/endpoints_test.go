package middleware

import (
	"errors"
	"testing"

	"github.com/povarna/generative-ai-agents/guard-agent/internal/config"
)

func TestEndpointMatcher(t *testing.T) {
	matcher := NewEndpointMatcher([]config.EndpointConfig{
		{Path: "/query", Input: true, Output: true},
		{Path: "/query/stream", Input: true, Stream: true},
		{Path: "/conversation/{thread_id}/history", Output: true},
	})

	tests := []struct {
		path      string
		wantMatch bool
		wantPath  string
	}{
		{"/query", true, "/query"},
		{"/query/", true, "/query"},
		{"/query/stream", true, "/query/stream"},
		{"/conversation/thread_1234abcd/history", true, "/conversation/{thread_id}/history"},
		{"/conversation//history", false, ""},
		{"/conversation/thread_1/history/extra", false, ""},
		{"/conversations", false, ""},
		{"/health", false, ""},
		{"/", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			endpoint, ok := matcher.Match(tt.path)
			if ok != tt.wantMatch {
				t.Fatalf("Match(%q) matched = %v, want %v", tt.path, ok, tt.wantMatch)
			}
			if ok && endpoint.Path != tt.wantPath {
				t.Errorf("Match(%q) = %q, want %q", tt.path, endpoint.Path, tt.wantPath)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrEmptyQuery, 400},
		{ErrResultNotFound, 404},
		{ErrStreamingUnsupported, 500},
		{errUnknown, 502},
	}

	for _, tt := range tests {
		if got := StatusFor(tt.err, 502); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

var errUnknown = errors.New("upstream failed")
