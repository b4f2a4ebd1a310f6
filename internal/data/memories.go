package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Memory is one row of brain_memories: a consolidated learning derived from
// a resolved decision (or, for dream output, from a synthesis cycle).
type Memory struct {
	MemoryID   string
	Timestamp  time.Time
	Type       string // "conflict_resolution", "successful_booking", ...
	Context    string // the situation the learning applies to
	Learning   string // what to do (or avoid) in that situation
	Confidence float64
	Source     string // decision_id or dream_id this memory derives from
}

// InsertMemory writes one memory row.
func (s *Store) InsertMemory(ctx context.Context, m *Memory) error {
	if m.MemoryID == "" {
		return fmt.Errorf("insert memory: empty memory_id")
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brain_memories (memory_id, timestamp, memory_type, context, learning, confidence, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.MemoryID, m.Timestamp.Format(time.RFC3339), m.Type, m.Context, m.Learning, m.Confidence, m.Source,
	)
	if err != nil {
		return fmt.Errorf("insert memory %s: %w", m.MemoryID, err)
	}

	return nil
}

// MemoryExistsForSource reports whether a memory derived from the given
// source already exists. Consolidation uses this to stay idempotent.
func (s *Store) MemoryExistsForSource(ctx context.Context, source string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM brain_memories WHERE source = ?", source).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check memory source %s: %w", source, err)
	}
	return n > 0, nil
}

// ListMemories returns memories, most recent first.
func (s *Store) ListMemories(ctx context.Context, limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, timestamp, memory_type, context, learning, confidence, source
		FROM brain_memories ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	return collectMemories(rows)
}

// TopMemories returns memories ranked by confidence, highest first. Ties
// break toward the most recent.
func (s *Store) TopMemories(ctx context.Context, limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, timestamp, memory_type, context, learning, confidence, source
		FROM brain_memories ORDER BY confidence DESC, timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top memories: %w", err)
	}
	defer rows.Close()

	return collectMemories(rows)
}

// CountMemories returns the total number of stored memories.
func (s *Store) CountMemories(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM brain_memories").Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

func collectMemories(rows *sql.Rows) ([]*Memory, error) {
	var memories []*Memory
	for rows.Next() {
		var m Memory
		var ts string
		if err := rows.Scan(&m.MemoryID, &ts, &m.Type, &m.Context, &m.Learning, &m.Confidence, &m.Source); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339, ts); perr == nil {
			m.Timestamp = t
		}
		memories = append(memories, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return memories, nil
}
