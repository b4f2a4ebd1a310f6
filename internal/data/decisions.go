package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Decision is one row of brain_decisions: everything the engine concluded
// about a single turn, plus the outcome once it is known.
type Decision struct {
	DecisionID     string
	ConversationID string
	Timestamp      time.Time

	// Turn inputs
	UserMessage string
	History     string // JSON array of "role: text" lines
	Snapshot    string // JSON object of workflow state

	// Pipeline conclusions
	ConflictDetected string
	PredictedIntent  string
	SubGoals         string // JSON array of goal strings
	ProposedResponse string
	Confidence       float64
	Completeness     float64
	SatisfactionProb float64
	Overall          float64

	// What the engine did
	Mode         string
	ActionTaken  string
	ResponseSent bool

	// Outcome, nil until resolved
	UserResponse     *string
	WorkflowOutcome  *string
	UserSatisfaction *float64
}

// Resolved reports whether the decision's outcome has been recorded.
func (d *Decision) Resolved() bool {
	return d.WorkflowOutcome != nil && d.UserSatisfaction != nil
}

// InsertDecision writes one decision row. DecisionID must be set by the
// caller; a zero Timestamp is replaced with the current time.
func (s *Store) InsertDecision(ctx context.Context, d *Decision) error {
	if d.DecisionID == "" {
		return fmt.Errorf("insert decision: empty decision_id")
	}
	if d.ConversationID == "" {
		return fmt.Errorf("insert decision: empty conversation_id")
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brain_decisions (
			decision_id, conversation_id, timestamp,
			user_message, conversation_history, state_snapshot,
			conflict_detected, predicted_intent, sub_goals,
			proposed_response, confidence,
			completeness_score, satisfaction_probability, overall_score,
			brain_mode, action_taken, response_sent
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DecisionID, d.ConversationID, d.Timestamp.Format(time.RFC3339),
		d.UserMessage, orDefault(d.History, "[]"), orDefault(d.Snapshot, "{}"),
		d.ConflictDetected, d.PredictedIntent, orDefault(d.SubGoals, "[]"),
		d.ProposedResponse, d.Confidence,
		d.Completeness, d.SatisfactionProb, d.Overall,
		d.Mode, d.ActionTaken, d.ResponseSent,
	)
	if err != nil {
		return fmt.Errorf("insert decision %s: %w", d.DecisionID, err)
	}

	return nil
}

// UpdateOutcome records how a decision played out. It is idempotent: calling
// it again with the same values is a no-op, and a later call overwrites an
// earlier one, which lets the workflow refine a provisional outcome.
func (s *Store) UpdateOutcome(ctx context.Context, decisionID, userResponse, workflowOutcome string, satisfaction float64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE brain_decisions
		SET user_response = ?, workflow_outcome = ?, user_satisfaction = ?
		WHERE decision_id = ?`,
		userResponse, workflowOutcome, satisfaction, decisionID,
	)
	if err != nil {
		return fmt.Errorf("update outcome for %s: %w", decisionID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update outcome for %s: %w", decisionID, err)
	}
	if rows == 0 {
		return fmt.Errorf("update outcome: decision %s not found", decisionID)
	}

	return nil
}

// GetDecision fetches one decision by ID.
func (s *Store) GetDecision(ctx context.Context, decisionID string) (*Decision, error) {
	row := s.db.QueryRowContext(ctx, selectDecisionSQL+" WHERE decision_id = ?", decisionID)

	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("decision %s not found", decisionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get decision %s: %w", decisionID, err)
	}
	return d, nil
}

// RecentDecisions returns the newest decisions, most recent first.
func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]*Decision, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, selectDecisionSQL+" ORDER BY timestamp DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query recent decisions: %w", err)
	}
	defer rows.Close()

	return collectDecisions(rows)
}

// ConversationDecisions returns all decisions for one conversation, oldest first.
func (s *Store) ConversationDecisions(ctx context.Context, conversationID string) ([]*Decision, error) {
	rows, err := s.db.QueryContext(ctx,
		selectDecisionSQL+" WHERE conversation_id = ? ORDER BY timestamp ASC", conversationID)
	if err != nil {
		return nil, fmt.Errorf("query decisions for %s: %w", conversationID, err)
	}
	defer rows.Close()

	return collectDecisions(rows)
}

// ResolvedDecisions returns decisions whose outcome has been recorded, most
// recent first. These feed memory consolidation.
func (s *Store) ResolvedDecisions(ctx context.Context, limit int) ([]*Decision, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, selectDecisionSQL+`
		WHERE workflow_outcome IS NOT NULL AND user_satisfaction IS NOT NULL
		ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query resolved decisions: %w", err)
	}
	defer rows.Close()

	return collectDecisions(rows)
}

// CountDecisions returns the total number of recorded decisions.
func (s *Store) CountDecisions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM brain_decisions").Scan(&n); err != nil {
		return 0, fmt.Errorf("count decisions: %w", err)
	}
	return n, nil
}

const selectDecisionSQL = `
	SELECT decision_id, conversation_id, timestamp,
		user_message, conversation_history, state_snapshot,
		conflict_detected, predicted_intent, sub_goals,
		proposed_response, confidence,
		completeness_score, satisfaction_probability, overall_score,
		brain_mode, action_taken, response_sent,
		user_response, workflow_outcome, user_satisfaction
	FROM brain_decisions`

// rowScanner lets scanDecision work for both QueryRow and Query results.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*Decision, error) {
	var d Decision
	var ts string
	var userResponse, workflowOutcome sql.NullString
	var satisfaction sql.NullFloat64

	err := row.Scan(
		&d.DecisionID, &d.ConversationID, &ts,
		&d.UserMessage, &d.History, &d.Snapshot,
		&d.ConflictDetected, &d.PredictedIntent, &d.SubGoals,
		&d.ProposedResponse, &d.Confidence,
		&d.Completeness, &d.SatisfactionProb, &d.Overall,
		&d.Mode, &d.ActionTaken, &d.ResponseSent,
		&userResponse, &workflowOutcome, &satisfaction,
	)
	if err != nil {
		return nil, err
	}

	if t, perr := time.Parse(time.RFC3339, ts); perr == nil {
		d.Timestamp = t
	}
	if userResponse.Valid {
		d.UserResponse = &userResponse.String
	}
	if workflowOutcome.Valid {
		d.WorkflowOutcome = &workflowOutcome.String
	}
	if satisfaction.Valid {
		d.UserSatisfaction = &satisfaction.Float64
	}

	return &d, nil
}

func collectDecisions(rows *sql.Rows) ([]*Decision, error) {
	var decisions []*Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return decisions, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
