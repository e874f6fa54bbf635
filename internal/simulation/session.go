package simulation

import (
	"time"

	"github.com/felixgeelhaar/phishdrill/internal/llm"
	"github.com/google/uuid"
)

const (
	// Phase1ItemCount is the number of predefined emails in phase 1.
	Phase1ItemCount = 5
	// Phase2ItemCount is the number of generated emails in phase 2.
	Phase2ItemCount = 5
)

// Session is one learner attempt at the exercise.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	State  State  `json:"state"`

	Phase1Completed bool `json:"phase1_completed"`
	Phase2Completed bool `json:"phase2_completed"`

	// Phase1Answered counts recorded phase-1 responses; answers arrive in
	// item order so it is also the index of the next item.
	Phase1Answered int `json:"phase1_answered"`
	Phase1Correct  int `json:"phase1_correct"`
	// Phase1Score is set once all phase-1 items are answered.
	Phase1Score int `json:"phase1_score"`

	Phase2Scores  []int          `json:"phase2_scores"`
	Phase2Correct int            `json:"phase2_correct"`
	Difficulty    llm.Difficulty `json:"difficulty,omitempty"`

	// AbandonReason is "restart" or "skip" for abandoned sessions.
	AbandonReason string `json:"abandon_reason,omitempty"`
	// ReplacedBy is the id of the session created on restart or skip.
	ReplacedBy string `json:"replaced_by,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Responses []*Response `json:"responses,omitempty"`
}

// NewSession creates a session in NotStarted.
func NewSession(userID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		State:        StateNotStarted,
		Phase2Scores: []int{},
		StartedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy. Mutations are applied to a clone and only
// replace the stored copy once persisted.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Phase2Scores = append([]int{}, s.Phase2Scores...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	cp.Responses = nil
	return &cp
}

// NextPhase2Slot is the zero-based index of the phase-2 item awaiting an answer.
func (s *Session) NextPhase2Slot() int {
	return len(s.Phase2Scores)
}

// Phase2Average is the mean phase-2 score, or 0 when none exist.
func (s *Session) Phase2Average() float64 {
	if len(s.Phase2Scores) == 0 {
		return 0
	}
	sum := 0
	for _, n := range s.Phase2Scores {
		sum += n
	}
	return float64(sum) / float64(len(s.Phase2Scores))
}

// Source tells where a content item came from.
type Source string

const (
	SourcePredefined Source = "predefined"
	SourceGenerated  Source = "generated"
	// SourceLocalTemplate marks fallback content used when every provider failed.
	SourceLocalTemplate Source = "local_template"
)

// ContentItem is an email shown to the learner. Items never change after
// creation.
type ContentItem struct {
	ID           string         `json:"id" yaml:"id"`
	IsPredefined bool           `json:"is_predefined" yaml:"-"`
	IsSpam       bool           `json:"is_spam" yaml:"is_spam"`
	Sender       string         `json:"sender" yaml:"sender"`
	Subject      string         `json:"subject" yaml:"subject"`
	Date         string         `json:"date,omitempty" yaml:"date"`
	Content      string         `json:"content" yaml:"content"`
	Difficulty   llm.Difficulty `json:"difficulty,omitempty" yaml:"-"`
	Source       Source         `json:"source" yaml:"-"`
	// Provider is set for generated items.
	Provider string `json:"provider,omitempty" yaml:"-"`

	// SourceSessionID and Slot link a phase-2 item to the session and
	// position it was generated for.
	SourceSessionID string    `json:"source_session_id,omitempty" yaml:"-"`
	Slot            int       `json:"slot" yaml:"-"`
	CreatedAt       time.Time `json:"created_at" yaml:"-"`
}

// IsFallback reports whether the item is local template content.
func (c *ContentItem) IsFallback() bool {
	return c.Source == SourceLocalTemplate
}

// Phase numbers a response.
type Phase int

const (
	Phase1 Phase = 1
	Phase2 Phase = 2
)

// Response is one learner answer.
type Response struct {
	ID            string `json:"id"`
	SessionID     string `json:"session_id"`
	ContentItemID string `json:"content_item_id"`
	Phase         Phase  `json:"phase"`

	// UserResponse is the spam verdict. Phase-2 answers carry one too, used
	// by the local scorer.
	UserResponse    bool   `json:"user_response"`
	UserExplanation string `json:"user_explanation,omitempty"`
	Correct         bool   `json:"correct"`

	AIFeedback *string `json:"ai_feedback,omitempty"`
	Score      *int    `json:"score,omitempty"`
	// Evaluator is the provider that scored the answer, or "local".
	Evaluator string    `json:"evaluator,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EvaluatorLocal marks a response or assignment scored without a provider.
const EvaluatorLocal = "local"

// Assignment is a scored learner-crafted phishing email.
type Assignment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Score     int       `json:"score"`
	Rating    string    `json:"rating"`
	Feedback  string    `json:"feedback"`
	Evaluator string    `json:"evaluator"`
	CreatedAt time.Time `json:"created_at"`
}

// Analytics aggregates completed sessions.
type Analytics struct {
	CompletedSessions int     `json:"completed_sessions"`
	AvgPhase1Score    float64 `json:"avg_phase1_score"`
	AvgPhase2Score    float64 `json:"avg_phase2_score"`
	// Phase1Distribution counts sessions per phase-1 score (index 0-5).
	Phase1Distribution [Phase1ItemCount + 1]int `json:"phase1_distribution"`
	AbandonedSessions  int                      `json:"abandoned_sessions"`
}
