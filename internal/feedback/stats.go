// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package feedback

import (
	"context"
	"fmt"
	"sort"
)

// FixStats aggregates outcomes for one fix record
type FixStats struct {
	FixSourceID string `json:"fix_source_id"`
	Answered    int    `json:"answered"`
	Resolved    int    `json:"resolved"`
	Escalated   int    `json:"escalated"`
}

// ResolutionRate is resolved / (resolved + escalated), or 0 with no verdicts
func (s FixStats) ResolutionRate() float64 {
	verdicts := s.Resolved + s.Escalated
	if verdicts == 0 {
		return 0
	}
	return float64(s.Resolved) / float64(verdicts)
}

// Stats summarizes the feedback log
type Stats struct {
	Total     int             `json:"total"`
	ByOutcome map[Outcome]int `json:"by_outcome"`
	ByFix     []FixStats      `json:"by_fix"`
}

// Stats returns outcome counts overall and per fix record. Fixes that users
// keep escalating are the ones whose documentation needs attention.
func (fl *Logger) Stats(ctx context.Context) (*Stats, error) {
	fl.mu.RLock()
	defer fl.mu.RUnlock()

	switch fl.config.StorageType {
	case StorageTypeSQLite:
		return fl.statsFromSQLite(ctx)
	case StorageTypeFile:
		entries, err := fl.readFile()
		if err != nil {
			return nil, err
		}
		return Summarize(entries), nil
	default:
		return nil, ErrUnsupportedQuery
	}
}

// Summarize aggregates entries in memory
func Summarize(entries []Entry) *Stats {
	stats := &Stats{ByOutcome: make(map[Outcome]int)}
	byFix := make(map[string]*FixStats)

	for _, entry := range entries {
		stats.add(byFix, entry.FixSourceID, entry.Outcome, 1)
	}
	stats.ByFix = sortedFixStats(byFix)
	return stats
}

func (s *Stats) add(byFix map[string]*FixStats, sourceID string, outcome Outcome, count int) {
	s.Total += count
	s.ByOutcome[outcome] += count
	if sourceID == "" {
		return
	}

	fix, ok := byFix[sourceID]
	if !ok {
		fix = &FixStats{FixSourceID: sourceID}
		byFix[sourceID] = fix
	}
	switch outcome {
	case OutcomeAnswered:
		fix.Answered += count
	case OutcomeResolved:
		fix.Resolved += count
	case OutcomeEscalated, OutcomeEscalationFailed:
		fix.Escalated += count
	}
}

func (fl *Logger) statsFromSQLite(ctx context.Context) (*Stats, error) {
	if fl.db == nil {
		return nil, fmt.Errorf("SQLite database not initialized")
	}

	query := `
		SELECT COALESCE(fix_source_id, ''), outcome, COUNT(*) as count
		FROM feedback
		GROUP BY fix_source_id, outcome
	`

	rows, err := fl.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &Stats{ByOutcome: make(map[Outcome]int)}
	byFix := make(map[string]*FixStats)

	for rows.Next() {
		var sourceID, outcome string
		var count int
		if err := rows.Scan(&sourceID, &outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan feedback stats row: %w", err)
		}
		stats.add(byFix, sourceID, Outcome(outcome), count)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback stats rows: %w", err)
	}

	stats.ByFix = sortedFixStats(byFix)
	return stats, nil
}

func sortedFixStats(byFix map[string]*FixStats) []FixStats {
	out := make([]FixStats, 0, len(byFix))
	for _, fix := range byFix {
		out = append(out, *fix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FixSourceID < out[j].FixSourceID })
	return out
}
