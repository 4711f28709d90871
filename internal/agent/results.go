package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/povarna/generative-ai-agents/guard-agent/internal/middleware"
	"github.com/rs/zerolog"
)

const (
	resultTimeLayout = "20060102_150405"
	DefaultResultTTL = 24 * time.Hour
)

// ResultStore keeps query results too large to return inline, one JSON file
// per query named <thread>_<timestamp>.json.
type ResultStore struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time
	logger *zerolog.Logger
}

func NewResultStore(dir string, maxAge time.Duration, logger *zerolog.Logger) (*ResultStore, error) {
	if maxAge <= 0 {
		maxAge = DefaultResultTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results dir: %w", err)
	}

	return &ResultStore{
		dir:    dir,
		maxAge: maxAge,
		now:    time.Now,
		logger: logger,
	}, nil
}

func (s *ResultStore) Save(threadID string, documents []map[string]any) (string, error) {
	if !ValidSessionID(threadID) {
		return "", middleware.ErrInvalidSessionID
	}

	data, err := json.MarshalIndent(documents, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}

	name := fmt.Sprintf("%s_%s.json", threadID, s.now().Format(resultTimeLayout))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write results: %w", err)
	}

	s.logger.Info().
		Str("thread_id", threadID).
		Int("documents", len(documents)).
		Str("file", name).
		Msg("Saved large result")

	return path, nil
}

// Latest returns the most recent result file saved for the thread.
func (s *ResultStore) Latest(threadID string) (string, error) {
	if !ValidSessionID(threadID) {
		return "", middleware.ErrInvalidSessionID
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", fmt.Errorf("failed to read results dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stamp, ok := strings.CutPrefix(entry.Name(), threadID+"_")
		if !ok {
			continue
		}
		stamp, ok = strings.CutSuffix(stamp, ".json")
		if !ok {
			continue
		}
		if _, err := time.Parse(resultTimeLayout, stamp); err != nil {
			continue
		}
		names = append(names, entry.Name())
	}

	if len(names) == 0 {
		return "", middleware.ErrResultNotFound
	}

	sort.Strings(names)
	return filepath.Join(s.dir, names[len(names)-1]), nil
}

// Cleanup removes result files older than the configured max age.
func (s *ResultStore) Cleanup() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read results dir: %w", err)
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to remove old result")
			continue
		}
		removed++
	}

	return removed, nil
}
