// Package postgres is the shared simulation store for multi-instance
// deployments.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/phishdrill/internal/domain"
	"github.com/felixgeelhaar/phishdrill/internal/llm"
	"github.com/felixgeelhaar/phishdrill/internal/simulation"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Store implements simulation.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ simulation.Store = (*Store)(nil)

// Open connects to url and verifies the connection.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const sessionColumns = `id, user_id, state, phase1_completed, phase2_completed,
	phase1_answered, phase1_correct, phase1_score, phase2_scores, phase2_correct,
	difficulty, abandon_reason, replaced_by, started_at, completed_at, updated_at`

const itemColumns = `id, is_predefined, is_spam, sender, subject, date, content,
	difficulty, source, provider, source_session_id, slot, created_at`

const responseColumns = `id, session_id, content_item_id, phase, user_response,
	user_explanation, correct, ai_feedback, score, evaluator, created_at`

func (s *Store) Commit(ctx context.Context, m simulation.Mutation) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, sess := range m.Sessions {
			_, err := tx.Exec(ctx, `
				INSERT INTO sessions (`+sessionColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
				ON CONFLICT (id) DO UPDATE SET
					state = EXCLUDED.state,
					phase1_completed = EXCLUDED.phase1_completed,
					phase2_completed = EXCLUDED.phase2_completed,
					phase1_answered = EXCLUDED.phase1_answered,
					phase1_correct = EXCLUDED.phase1_correct,
					phase1_score = EXCLUDED.phase1_score,
					phase2_scores = EXCLUDED.phase2_scores,
					phase2_correct = EXCLUDED.phase2_correct,
					difficulty = EXCLUDED.difficulty,
					abandon_reason = EXCLUDED.abandon_reason,
					replaced_by = EXCLUDED.replaced_by,
					completed_at = EXCLUDED.completed_at,
					updated_at = EXCLUDED.updated_at`,
				sess.ID, sess.UserID, string(sess.State), sess.Phase1Completed, sess.Phase2Completed,
				sess.Phase1Answered, sess.Phase1Correct, sess.Phase1Score, scores(sess.Phase2Scores), sess.Phase2Correct,
				string(sess.Difficulty), sess.AbandonReason, sess.ReplacedBy,
				sess.StartedAt, sess.CompletedAt, sess.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("upsert session %s: %w", sess.ID, err)
			}
		}

		if m.Item != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO content_items (`+itemColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
				ON CONFLICT (id) DO NOTHING`,
				itemArgs(m.Item)...,
			)
			if err != nil {
				return fmt.Errorf("insert content item %s: %w", m.Item.ID, err)
			}
		}

		if r := m.Response; r != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO responses (`+responseColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				r.ID, r.SessionID, r.ContentItemID, int(r.Phase), r.UserResponse,
				r.UserExplanation, r.Correct, r.AIFeedback, r.Score, r.Evaluator, r.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert response: %w", err)
			}
		}
		return nil
	})
}

func scores(in []int) []int32 {
	out := make([]int32, len(in))
	for i, n := range in {
		out[i] = int32(n)
	}
	return out
}

func itemArgs(item *simulation.ContentItem) []any {
	var sessionID *string
	if item.SourceSessionID != "" {
		sessionID = &item.SourceSessionID
	}
	return []any{
		item.ID, item.IsPredefined, item.IsSpam, item.Sender, item.Subject, item.Date, item.Content,
		string(item.Difficulty), string(item.Source), item.Provider, sessionID, item.Slot, item.CreatedAt,
	}
}

func (s *Store) GetSession(ctx context.Context, id string) (*simulation.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	return sess, err
}

func (s *Store) ListSessionsByState(ctx context.Context, states ...simulation.State) ([]*simulation.Session, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE state = ANY($1) ORDER BY started_at`, names)
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

func scanSession(row pgx.Row) (*simulation.Session, error) {
	var sess simulation.Session
	var state, difficulty string
	var phase2 []int32

	err := row.Scan(
		&sess.ID, &sess.UserID, &state, &sess.Phase1Completed, &sess.Phase2Completed,
		&sess.Phase1Answered, &sess.Phase1Correct, &sess.Phase1Score, &phase2, &sess.Phase2Correct,
		&difficulty, &sess.AbandonReason, &sess.ReplacedBy,
		&sess.StartedAt, &sess.CompletedAt, &sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.State = simulation.State(state)
	sess.Difficulty = llm.Difficulty(difficulty)
	sess.Phase2Scores = make([]int, len(phase2))
	for i, n := range phase2 {
		sess.Phase2Scores[i] = int(n)
	}
	return &sess, nil
}

func (s *Store) ListResponses(ctx context.Context, sessionID string) ([]*simulation.Response, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+responseColumns+` FROM responses
		WHERE session_id = $1 ORDER BY created_at, seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	out := []*simulation.Response{}
	for rows.Next() {
		var r simulation.Response
		var phase int

		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.ContentItemID, &phase, &r.UserResponse,
			&r.UserExplanation, &r.Correct, &r.AIFeedback, &r.Score, &r.Evaluator, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		r.Phase = simulation.Phase(phase)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) SaveContentItem(ctx context.Context, item *simulation.ContentItem) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO content_items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			is_predefined = EXCLUDED.is_predefined,
			is_spam = EXCLUDED.is_spam,
			sender = EXCLUDED.sender,
			subject = EXCLUDED.subject,
			date = EXCLUDED.date,
			content = EXCLUDED.content`,
		itemArgs(item)...,
	)
	if err != nil {
		return fmt.Errorf("save content item %s: %w", item.ID, err)
	}
	return nil
}

func (s *Store) GetContentItem(ctx context.Context, id string) (*simulation.ContentItem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id = $1`, id)
	return scanItem(row)
}

func (s *Store) FindPhase2Item(ctx context.Context, sessionID string, slot int) (*simulation.ContentItem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+itemColumns+` FROM content_items
		WHERE source_session_id = $1 AND slot = $2`, sessionID, slot)
	return scanItem(row)
}

func scanItem(row pgx.Row) (*simulation.ContentItem, error) {
	var item simulation.ContentItem
	var difficulty, source string
	var sessionID *string

	err := row.Scan(
		&item.ID, &item.IsPredefined, &item.IsSpam, &item.Sender, &item.Subject, &item.Date, &item.Content,
		&difficulty, &source, &item.Provider, &sessionID, &item.Slot, &item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrContentItemNotFound
		}
		return nil, fmt.Errorf("scan content item: %w", err)
	}
	item.Difficulty = llm.Difficulty(difficulty)
	item.Source = simulation.Source(source)
	if sessionID != nil {
		item.SourceSessionID = *sessionID
	}
	return &item, nil
}

func (s *Store) SaveAssignment(ctx context.Context, a *simulation.Assignment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO assignments (id, user_id, email, score, rating, feedback, evaluator, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.UserID, a.Email, a.Score, a.Rating, a.Feedback, a.Evaluator, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save assignment: %w", err)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, userID string) ([]*simulation.Assignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, email, score, rating, feedback, evaluator, created_at
		FROM assignments WHERE user_id = $1 ORDER BY created_at DESC`, userID)
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

// PruneAbandoned deletes abandoned sessions last updated before cutoff.
// Their items and responses cascade.
func (s *Store) PruneAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM sessions WHERE state = $1 AND updated_at < $2`,
		string(simulation.StateAbandoned), cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune abandoned sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
