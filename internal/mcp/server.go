package mcp

import (
	"context"
	"fmt"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
	"github.com/felixgeelhaar/phishdrill/internal/simulation"
)

// Server exposes the phishing simulation as MCP tools.
type Server struct {
	mcpServer *server.Server
	service   *simulation.Service
	version   string
}

// Config contains configuration for the MCP server
type Config struct {
	Service *simulation.Service
	Version string
}

// NewServer creates a new MCP server for phishdrill
func NewServer(cfg Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		service: cfg.Service,
		version: version,
	}

	s.mcpServer = server.New(server.Info{
		Name:    "phishdrill",
		Version: version,
	}, server.WithInstructions(`
phishdrill is a phishing awareness exercise.

Phase 1 shows five fixed emails; the learner marks each as phishing or safe.
Phase 2 serves five generated emails whose difficulty follows the learner's
accuracy; each verdict comes with a short explanation that is scored 1-10.

Typical flow:
- phishdrill_begin, then phishdrill_phase1_items
- phishdrill_answer_phase1 for each item in order
- phishdrill_start_phase2, then phishdrill_next_item / phishdrill_answer_phase2 five times
- phishdrill_status at any point; phishdrill_restart or phishdrill_skip to start over

Never reveal whether an email is phishing before the learner answers.
`))

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("phishdrill_begin").
		Description("Start a new session for a learner, already in phase 1.").
		Handler(s.handleBegin)

	s.mcpServer.Tool("phishdrill_phase1_items").
		Description("List the five phase 1 emails in presentation order.").
		Handler(s.handlePhase1Items)

	s.mcpServer.Tool("phishdrill_answer_phase1").
		Description("Record the learner's verdict for the next phase 1 email.").
		Handler(s.handleAnswerPhase1)

	s.mcpServer.Tool("phishdrill_start_phase2").
		Description("Move a session with phase 1 complete into phase 2.").
		Handler(s.handleStartPhase2)

	s.mcpServer.Tool("phishdrill_next_item").
		Description("Get the current phase 2 email. Repeated calls return the same email.").
		Handler(s.handleNextItem)

	s.mcpServer.Tool("phishdrill_answer_phase2").
		Description("Record a phase 2 verdict with the learner's explanation and return feedback.").
		Handler(s.handleAnswerPhase2)

	s.mcpServer.Tool("phishdrill_status").
		Description("Get a session's state and scores.").
		Handler(s.handleStatus)

	s.mcpServer.Tool("phishdrill_restart").
		Description("Abandon a session and start a new one for the same learner.").
		Handler(s.handleRestart)

	s.mcpServer.Tool("phishdrill_skip").
		Description("Abandon a session as skipped and start a new one.").
		Handler(s.handleSkip)

	s.mcpServer.Tool("phishdrill_assess_assignment").
		Description("Score a phishing email written by the learner on a 0-100 scale.").
		Handler(s.handleAssessAssignment)
}

type BeginInput struct {
	UserID string `json:"user_id" jsonschema:"description=Opaque learner id"`
}

type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"description=Session ID from phishdrill_begin"`
}

type Phase1Input struct{}

type AnswerInput struct {
	SessionID   string `json:"session_id" jsonschema:"description=Session ID from phishdrill_begin"`
	ItemID      string `json:"item_id" jsonschema:"description=ID of the email being answered"`
	IsSpam      bool   `json:"is_spam" jsonschema:"description=True when the learner thinks the email is phishing"`
	Explanation string `json:"explanation,omitempty" jsonschema:"description=Learner's reasoning (required in phase 2)"`
}

type AssignmentInput struct {
	UserID string `json:"user_id" jsonschema:"description=Opaque learner id"`
	Email  string `json:"email" jsonschema:"description=Full text of the learner-crafted phishing email"`
}

type SessionOutput struct {
	SessionID      string `json:"session_id"`
	State          string `json:"state"`
	Phase1Answered int    `json:"phase1_answered"`
	Phase1Score    int    `json:"phase1_score"`
	Phase2Scores   []int  `json:"phase2_scores"`
	Difficulty     string `json:"difficulty,omitempty"`
	Completed      bool   `json:"completed"`
	ReplacedBy     string `json:"replaced_by,omitempty"`
}

type ItemOutput struct {
	ItemID  string `json:"item_id"`
	Slot    int    `json:"slot"`
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Date    string `json:"date,omitempty"`
	Content string `json:"content"`
}

type Phase1Output struct {
	Items []ItemOutput `json:"items"`
}

type NextItemOutput struct {
	Item     ItemOutput `json:"item"`
	Fallback bool       `json:"fallback"`
}

type AnswerOutput struct {
	Correct  bool          `json:"correct"`
	Score    *int          `json:"score,omitempty"`
	Feedback string        `json:"feedback,omitempty"`
	Fallback bool          `json:"fallback"`
	Session  SessionOutput `json:"session"`
}

type AssignmentOutput struct {
	Score     int    `json:"score"`
	Rating    string `json:"rating"`
	Feedback  string `json:"feedback"`
	Evaluator string `json:"evaluator"`
}

func sessionOutput(sess *simulation.Session) SessionOutput {
	scores := sess.Phase2Scores
	if scores == nil {
		scores = []int{}
	}
	return SessionOutput{
		SessionID:      sess.ID,
		State:          string(sess.State),
		Phase1Answered: sess.Phase1Answered,
		Phase1Score:    sess.Phase1Score,
		Phase2Scores:   scores,
		Difficulty:     string(sess.Difficulty),
		Completed:      sess.CompletedAt != nil,
		ReplacedBy:     sess.ReplacedBy,
	}
}

func itemOutput(item *simulation.ContentItem) ItemOutput {
	return ItemOutput{
		ItemID:  item.ID,
		Slot:    item.Slot,
		Sender:  item.Sender,
		Subject: item.Subject,
		Date:    item.Date,
		Content: item.Content,
	}
}

func answerOutput(res *simulation.AnswerResult) AnswerOutput {
	out := AnswerOutput{
		Correct:  res.Response.Correct,
		Score:    res.Response.Score,
		Fallback: res.Fallback,
		Session:  sessionOutput(res.Session),
	}
	if res.Response.AIFeedback != nil {
		out.Feedback = *res.Response.AIFeedback
	}
	return out
}

func (s *Server) handleBegin(ctx context.Context, input BeginInput) (SessionOutput, error) {
	sess, err := s.service.Begin(ctx, input.UserID)
	if err != nil {
		return SessionOutput{}, fmt.Errorf("begin session: %w", err)
	}
	return sessionOutput(sess), nil
}

func (s *Server) handlePhase1Items(ctx context.Context, _ Phase1Input) (Phase1Output, error) {
	items := s.service.Phase1Items()
	out := Phase1Output{Items: make([]ItemOutput, len(items))}
	for i, item := range items {
		out.Items[i] = itemOutput(item)
	}
	return out, nil
}

func (s *Server) handleAnswerPhase1(ctx context.Context, input AnswerInput) (AnswerOutput, error) {
	res, err := s.service.SubmitPhase1Answer(ctx, input.SessionID, input.ItemID, input.IsSpam)
	if err != nil {
		return AnswerOutput{}, fmt.Errorf("answer phase 1: %w", err)
	}
	return answerOutput(res), nil
}

func (s *Server) handleStartPhase2(ctx context.Context, input SessionInput) (SessionOutput, error) {
	sess, err := s.service.StartPhase2(ctx, input.SessionID)
	if err != nil {
		return SessionOutput{}, fmt.Errorf("start phase 2: %w", err)
	}
	return sessionOutput(sess), nil
}

func (s *Server) handleNextItem(ctx context.Context, input SessionInput) (NextItemOutput, error) {
	res, err := s.service.RequestNextPhase2Item(ctx, input.SessionID)
	if err != nil {
		return NextItemOutput{}, fmt.Errorf("next item: %w", err)
	}
	return NextItemOutput{Item: itemOutput(res.Item), Fallback: res.Fallback}, nil
}

func (s *Server) handleAnswerPhase2(ctx context.Context, input AnswerInput) (AnswerOutput, error) {
	res, err := s.service.SubmitPhase2Answer(ctx, input.SessionID, input.ItemID, input.IsSpam, input.Explanation)
	if err != nil {
		return AnswerOutput{}, fmt.Errorf("answer phase 2: %w", err)
	}
	return answerOutput(res), nil
}

func (s *Server) handleStatus(ctx context.Context, input SessionInput) (SessionOutput, error) {
	sess, err := s.service.Get(ctx, input.SessionID)
	if err != nil {
		return SessionOutput{}, fmt.Errorf("session status: %w", err)
	}
	return sessionOutput(sess), nil
}

func (s *Server) handleRestart(ctx context.Context, input SessionInput) (SessionOutput, error) {
	sess, err := s.service.Restart(ctx, input.SessionID)
	if err != nil {
		return SessionOutput{}, fmt.Errorf("restart: %w", err)
	}
	return sessionOutput(sess), nil
}

func (s *Server) handleSkip(ctx context.Context, input SessionInput) (SessionOutput, error) {
	sess, err := s.service.Skip(ctx, input.SessionID)
	if err != nil {
		return SessionOutput{}, fmt.Errorf("skip: %w", err)
	}
	return sessionOutput(sess), nil
}

func (s *Server) handleAssessAssignment(ctx context.Context, input AssignmentInput) (AssignmentOutput, error) {
	a, err := s.service.AssessAssignment(ctx, input.UserID, input.Email)
	if err != nil {
		return AssignmentOutput{}, fmt.Errorf("assess assignment: %w", err)
	}
	return AssignmentOutput{
		Score:     a.Score,
		Rating:    a.Rating,
		Feedback:  a.Feedback,
		Evaluator: a.Evaluator,
	}, nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
