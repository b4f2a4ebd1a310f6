package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DreamRecord is one row of brain_dreams: the summary of a completed
// consolidation cycle. Cycles that skip (insufficient data) also write a
// record, with DreamsGenerated = 0, so the scheduler's history is complete.
type DreamRecord struct {
	DreamID                string
	Timestamp              time.Time
	ModelUsed              string
	ConversationsProcessed int
	DreamsGenerated        int
	PatternsLearned        string // JSON array of pattern descriptions
	DreamData              string // JSON array of generated training examples
}

// InsertDream writes one dream cycle record.
func (s *Store) InsertDream(ctx context.Context, d *DreamRecord) error {
	if d.DreamID == "" {
		return fmt.Errorf("insert dream: empty dream_id")
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brain_dreams (dream_id, timestamp, model_used, conversations_processed, dreams_generated, patterns_learned, dream_data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.DreamID, d.Timestamp.Format(time.RFC3339), d.ModelUsed,
		d.ConversationsProcessed, d.DreamsGenerated,
		orDefault(d.PatternsLearned, "[]"), orDefault(d.DreamData, "[]"),
	)
	if err != nil {
		return fmt.Errorf("insert dream %s: %w", d.DreamID, err)
	}

	return nil
}

// RecentDreams returns dream records, most recent first.
func (s *Store) RecentDreams(ctx context.Context, limit int) ([]*DreamRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT dream_id, timestamp, model_used, conversations_processed, dreams_generated, patterns_learned, dream_data
		FROM brain_dreams ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dreams: %w", err)
	}
	defer rows.Close()

	var dreams []*DreamRecord
	for rows.Next() {
		var d DreamRecord
		var ts string
		if err := rows.Scan(&d.DreamID, &ts, &d.ModelUsed, &d.ConversationsProcessed,
			&d.DreamsGenerated, &d.PatternsLearned, &d.DreamData); err != nil {
			return nil, fmt.Errorf("scan dream: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339, ts); perr == nil {
			d.Timestamp = t
		}
		dreams = append(dreams, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dreams: %w", err)
	}

	return dreams, nil
}

// LastDreamTime returns when the most recent dream cycle ran. The boolean is
// false when no cycle has ever run.
func (s *Store) LastDreamTime(ctx context.Context) (time.Time, bool, error) {
	var ts string
	err := s.db.QueryRowContext(ctx,
		"SELECT timestamp FROM brain_dreams ORDER BY timestamp DESC LIMIT 1").Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last dream time: %w", err)
	}

	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last dream time: %w", err)
	}
	return t, true, nil
}

// CountDreams returns the total number of recorded dream cycles.
func (s *Store) CountDreams(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM brain_dreams").Scan(&n); err != nil {
		return 0, fmt.Errorf("count dreams: %w", err)
	}
	return n, nil
}
