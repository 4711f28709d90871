package audit

import "sync"

// Stats counts consumed events per outcome and per violation type.
type Stats struct {
	mu          sync.Mutex
	total       int64
	byOutcome   map[Outcome]int64
	byViolation map[string]int64
}

type StatsSnapshot struct {
	Total       int64             `json:"total"`
	ByOutcome   map[Outcome]int64 `json:"by_outcome"`
	ByViolation map[string]int64  `json:"by_violation"`
}

func NewStats() *Stats {
	return &Stats{
		byOutcome:   make(map[Outcome]int64),
		byViolation: make(map[string]int64),
	}
}

func (s *Stats) Record(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.byOutcome[event.Outcome]++
	if event.ViolationType != "" {
		s.byViolation[event.ViolationType]++
	}
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := StatsSnapshot{
		Total:       s.total,
		ByOutcome:   make(map[Outcome]int64, len(s.byOutcome)),
		ByViolation: make(map[string]int64, len(s.byViolation)),
	}
	for k, v := range s.byOutcome {
		snapshot.ByOutcome[k] = v
	}
	for k, v := range s.byViolation {
		snapshot.ByViolation[k] = v
	}
	return snapshot
}
