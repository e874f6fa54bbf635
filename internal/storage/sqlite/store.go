package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/phishdrill/internal/domain"
	"github.com/felixgeelhaar/phishdrill/internal/llm"
	"github.com/felixgeelhaar/phishdrill/internal/simulation"
)

// Store implements simulation.Store on SQLite.
type Store struct {
	db *DB
}

var _ simulation.Store = (*Store)(nil)

// NewStore creates a store on a migrated database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const sessionColumns = `id, user_id, state, phase1_completed, phase2_completed,
	phase1_answered, phase1_correct, phase1_score, phase2_scores, phase2_correct,
	difficulty, abandon_reason, replaced_by, started_at, completed_at, updated_at`

const itemColumns = `id, is_predefined, is_spam, sender, subject, date, content,
	difficulty, source, provider, source_session_id, slot, created_at`

const responseColumns = `id, session_id, content_item_id, phase, user_response,
	user_explanation, correct, ai_feedback, score, evaluator, created_at`

// Commit writes m in one transaction. Sessions go first so items and
// responses can reference them.
func (s *Store) Commit(ctx context.Context, m simulation.Mutation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	for _, sess := range m.Sessions {
		if err := upsertSession(ctx, tx, sess); err != nil {
			return err
		}
	}
	if m.Item != nil {
		if err := insertItem(ctx, tx, m.Item); err != nil {
			return err
		}
	}
	if m.Response != nil {
		if err := insertResponse(ctx, tx, m.Response); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsertSession(ctx context.Context, tx *sql.Tx, sess *simulation.Session) error {
	scores, err := json.Marshal(sess.Phase2Scores)
	if err != nil {
		return fmt.Errorf("marshal phase2 scores: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state=excluded.state,
			phase1_completed=excluded.phase1_completed, phase2_completed=excluded.phase2_completed,
			phase1_answered=excluded.phase1_answered, phase1_correct=excluded.phase1_correct,
			phase1_score=excluded.phase1_score, phase2_scores=excluded.phase2_scores,
			phase2_correct=excluded.phase2_correct, difficulty=excluded.difficulty,
			abandon_reason=excluded.abandon_reason, replaced_by=excluded.replaced_by,
			completed_at=excluded.completed_at, updated_at=excluded.updated_at`,
		sess.ID, sess.UserID, string(sess.State), sess.Phase1Completed, sess.Phase2Completed,
		sess.Phase1Answered, sess.Phase1Correct, sess.Phase1Score, string(scores), sess.Phase2Correct,
		string(sess.Difficulty), sess.AbandonReason, sess.ReplacedBy,
		sess.StartedAt.UTC(), nullTime(sess.CompletedAt), sess.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", sess.ID, err)
	}
	return nil
}

// insertItem ignores an id that already exists. A different id for an
// occupied session slot violates idx_content_items_slot.
func insertItem(ctx context.Context, tx *sql.Tx, item *simulation.ContentItem) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO content_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		itemArgs(item)...,
	)
	if err != nil {
		return fmt.Errorf("insert content item %s: %w", item.ID, err)
	}
	return nil
}

func insertResponse(ctx context.Context, tx *sql.Tx, r *simulation.Response) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO responses (`+responseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.ContentItemID, int(r.Phase), r.UserResponse,
		r.UserExplanation, r.Correct, r.AIFeedback, r.Score, r.Evaluator, r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}

func itemArgs(item *simulation.ContentItem) []any {
	var sessionID *string
	if item.SourceSessionID != "" {
		sessionID = &item.SourceSessionID
	}
	return []any{
		item.ID, item.IsPredefined, item.IsSpam, item.Sender, item.Subject, item.Date, item.Content,
		string(item.Difficulty), string(item.Source), item.Provider, sessionID, item.Slot,
		item.CreatedAt.UTC(),
	}
}

func (s *Store) GetSession(ctx context.Context, id string) (*simulation.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	return sess, err
}

func (s *Store) ListSessionsByState(ctx context.Context, states ...simulation.State) ([]*simulation.Session, error) {
	if len(states) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(states))
	args := make([]any, len(states))
	for i, st := range states {
		placeholders[i] = "?"
		args[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE state IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY started_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*simulation.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanSession(row scanner) (*simulation.Session, error) {
	var sess simulation.Session
	var state, difficulty, scores string
	var completedAt sql.NullTime

	err := row.Scan(
		&sess.ID, &sess.UserID, &state, &sess.Phase1Completed, &sess.Phase2Completed,
		&sess.Phase1Answered, &sess.Phase1Correct, &sess.Phase1Score, &scores, &sess.Phase2Correct,
		&difficulty, &sess.AbandonReason, &sess.ReplacedBy,
		&sess.StartedAt, &completedAt, &sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.State = simulation.State(state)
	sess.Difficulty = llm.Difficulty(difficulty)
	if err := json.Unmarshal([]byte(scores), &sess.Phase2Scores); err != nil {
		return nil, fmt.Errorf("unmarshal phase2 scores: %w", err)
	}
	if sess.Phase2Scores == nil {
		sess.Phase2Scores = []int{}
	}
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	return &sess, nil
}

func (s *Store) ListResponses(ctx context.Context, sessionID string) ([]*simulation.Response, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+responseColumns+` FROM responses
		WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	out := []*simulation.Response{}
	for rows.Next() {
		var r simulation.Response
		var phase int
		var feedback sql.NullString
		var score sql.NullInt64

		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.ContentItemID, &phase, &r.UserResponse,
			&r.UserExplanation, &r.Correct, &feedback, &score, &r.Evaluator, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		r.Phase = simulation.Phase(phase)
		if feedback.Valid {
			r.AIFeedback = &feedback.String
		}
		if score.Valid {
			n := int(score.Int64)
			r.Score = &n
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// SaveContentItem upserts item. Only the text fields are refreshed, so a
// reseed from an edited content file takes effect.
func (s *Store) SaveContentItem(ctx context.Context, item *simulation.ContentItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_predefined=excluded.is_predefined, is_spam=excluded.is_spam,
			sender=excluded.sender, subject=excluded.subject, date=excluded.date,
			content=excluded.content`,
		itemArgs(item)...,
	)
	if err != nil {
		return fmt.Errorf("save content item %s: %w", item.ID, err)
	}
	return nil
}

func (s *Store) GetContentItem(ctx context.Context, id string) (*simulation.ContentItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id = ?`, id)
	return scanItem(row)
}

func (s *Store) FindPhase2Item(ctx context.Context, sessionID string, slot int) (*simulation.ContentItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM content_items
		WHERE source_session_id = ? AND slot = ?`, sessionID, slot)
	return scanItem(row)
}

func scanItem(row scanner) (*simulation.ContentItem, error) {
	var item simulation.ContentItem
	var difficulty, source string
	var sessionID sql.NullString

	err := row.Scan(
		&item.ID, &item.IsPredefined, &item.IsSpam, &item.Sender, &item.Subject, &item.Date, &item.Content,
		&difficulty, &source, &item.Provider, &sessionID, &item.Slot, &item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrContentItemNotFound
		}
		return nil, fmt.Errorf("scan content item: %w", err)
	}
	item.Difficulty = llm.Difficulty(difficulty)
	item.Source = simulation.Source(source)
	item.SourceSessionID = sessionID.String
	return &item, nil
}

func (s *Store) SaveAssignment(ctx context.Context, a *simulation.Assignment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignments (id, user_id, email, score, rating, feedback, evaluator, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Email, a.Score, a.Rating, a.Feedback, a.Evaluator, a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save assignment: %w", err)
	}
	return nil
}

// ListAssignments returns a user's scored assignments, newest first.
func (s *Store) ListAssignments(ctx context.Context, userID string) ([]*simulation.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, email, score, rating, feedback, evaluator, created_at
		FROM assignments WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []*simulation.Assignment
	for rows.Next() {
		var a simulation.Assignment
		if err := rows.Scan(&a.ID, &a.UserID, &a.Email, &a.Score, &a.Rating, &a.Feedback, &a.Evaluator, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// PruneAbandoned deletes abandoned sessions last updated before cutoff.
// Their items and responses cascade.
func (s *Store) PruneAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE state = ? AND updated_at < ?`,
		string(simulation.StateAbandoned), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune abandoned sessions: %w", err)
	}
	return res.RowsAffected()
}
