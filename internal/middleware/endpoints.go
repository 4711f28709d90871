package middleware

import (
	"strings"

	"github.com/povarna/generative-ai-agents/guard-agent/internal/config"
)

// EndpointMatcher resolves a request path to its protected-endpoint settings.
// A template segment written as {name} matches any single non-empty segment.
type EndpointMatcher struct {
	endpoints []compiledEndpoint
}

type compiledEndpoint struct {
	segments []string
	cfg      config.EndpointConfig
}

func NewEndpointMatcher(endpoints []config.EndpointConfig) *EndpointMatcher {
	compiled := make([]compiledEndpoint, 0, len(endpoints))
	for _, endpoint := range endpoints {
		compiled = append(compiled, compiledEndpoint{
			segments: splitPath(endpoint.Path),
			cfg:      endpoint,
		})
	}
	return &EndpointMatcher{endpoints: compiled}
}

// Match returns the first endpoint whose template matches path.
func (m *EndpointMatcher) Match(path string) (config.EndpointConfig, bool) {
	segments := splitPath(path)

	for _, endpoint := range m.endpoints {
		if matchSegments(endpoint.segments, segments) {
			return endpoint.cfg, true
		}
	}
	return config.EndpointConfig{}, false
}

func matchSegments(template []string, path []string) bool {
	if len(template) != len(path) {
		return false
	}

	for i, segment := range template {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			if path[i] == "" {
				return false
			}
			continue
		}
		if segment != path[i] {
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
