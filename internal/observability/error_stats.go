// Package observability tallies the errors of a run by category and code,
// so a summary can show which failures dominate.
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/beatset/beatset/internal/errors"
)

// Unclassified is the code recorded for errors that carry none.
const Unclassified = "UNCLASSIFIED"

// ErrorStats counts errors per category and code.
type ErrorStats struct {
	mu    sync.RWMutex
	codes map[string]*CodeStats
}

// CodeStats holds the count of one error code.
type CodeStats struct {
	Category errors.ErrorCategory
	Code     string
	Count    int64
	LastSeen time.Time
	// Example is the message of the most recent error.
	Example string
	Stages  map[string]int // stage → count (e.g. "folder" → 5, "asset" → 2)
}

// Key returns CATEGORY/CODE.
func (c CodeStats) Key() string {
	if c.Category == "" {
		return c.Code
	}
	return string(c.Category) + "/" + c.Code
}

// NewErrorStats returns an empty tally.
func NewErrorStats() *ErrorStats {
	return &ErrorStats{codes: make(map[string]*CodeStats)}
}

// Record counts err under the stage that hit it. Nil errors are ignored.
// This method is O(1) and thread-safe.
func (s *ErrorStats) Record(stage string, err error) {
	if err == nil {
		return
	}
	c := CodeStats{Category: errors.GetCategory(err), Code: errors.GetCode(err)}
	if c.Code == "" {
		c.Code = Unclassified
	}
	key := c.Key()

	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.codes[key]
	if !ok {
		c.Stages = make(map[string]int)
		stats = &c
		s.codes[key] = stats
	}
	stats.Count++
	stats.LastSeen = time.Now()
	stats.Example = err.Error()
	stats.Stages[stage]++
}

// Total returns the number of recorded errors.
func (s *ErrorStats) Total() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, c := range s.codes {
		n += c.Count
	}
	return n
}

// Top returns copies of the n most frequent codes, ties broken by key.
func (s *ErrorStats) Top(n int) []CodeStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || len(s.codes) == 0 {
		return nil
	}
	out := make([]CodeStats, 0, len(s.codes))
	for _, c := range s.codes {
		cp := *c
		cp.Stages = make(map[string]int, len(c.Stages))
		for stage, count := range c.Stages {
			cp.Stages[stage] = count
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key() < out[j].Key()
	})
	if n > len(out) {
		n = len(out)
	}
	return out[:n]
}
