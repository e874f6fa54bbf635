package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/felixgeelhaar/phishdrill/internal/content"
	"github.com/felixgeelhaar/phishdrill/internal/domain"
	"github.com/felixgeelhaar/phishdrill/internal/llm"
	"github.com/felixgeelhaar/phishdrill/internal/router"
	"github.com/felixgeelhaar/phishdrill/internal/simulation"
)

// offlineRouter fails every request, so the service uses its local fallbacks.
type offlineRouter struct{}

func (offlineRouter) Route(ctx context.Context, req llm.CompletionRequest) router.Result {
	return router.Result{Failure: &router.Failure{Attempted: []router.Attempt{
		{Provider: "ollama", Kind: llm.KindUnavailable, Tries: 1},
	}}}
}

func setupTestServer(t *testing.T) (*Server, []*simulation.ContentItem) {
	t.Helper()
	items, err := content.Default()
	if err != nil {
		t.Fatalf("load content: %v", err)
	}
	svc, err := simulation.NewService(simulation.NewMemoryStore(), offlineRouter{}, items,
		simulation.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if err := svc.Seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return NewServer(Config{Service: svc, Version: "test"}), items
}

func TestNewServer(t *testing.T) {
	server, _ := setupTestServer(t)
	if server.GetMCPServer() == nil {
		t.Fatal("expected non-nil MCP server")
	}
	if server.version != "test" {
		t.Errorf("version = %q", server.version)
	}

	if NewServer(Config{}).version != "dev" {
		t.Error("empty config should default version to dev")
	}
}

func TestPhase1Items(t *testing.T) {
	server, items := setupTestServer(t)
	out, err := server.handlePhase1Items(context.Background(), Phase1Input{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Items) != len(items) {
		t.Fatalf("items = %d, want %d", len(out.Items), len(items))
	}
	for i, item := range out.Items {
		if item.ItemID != items[i].ID || item.Slot != i {
			t.Errorf("item %d = %s/%d", i, item.ItemID, item.Slot)
		}
	}
}

func TestFullFlow_Offline(t *testing.T) {
	server, items := setupTestServer(t)
	ctx := context.Background()

	sess, err := server.handleBegin(ctx, BeginInput{UserID: "learner"})
	if err != nil {
		t.Fatal(err)
	}
	if sess.State != string(simulation.StatePhase1InProgress) {
		t.Fatalf("state = %s", sess.State)
	}

	for _, item := range items {
		if _, err := server.handleAnswerPhase1(ctx, AnswerInput{SessionID: sess.SessionID, ItemID: item.ID, IsSpam: item.IsSpam}); err != nil {
			t.Fatalf("answer %s: %v", item.ID, err)
		}
	}

	status, err := server.handleStartPhase2(ctx, SessionInput{SessionID: sess.SessionID})
	if err != nil {
		t.Fatal(err)
	}
	if status.Phase1Score != simulation.Phase1ItemCount || status.Difficulty != string(llm.DifficultyHard) {
		t.Errorf("after phase 1: score %d difficulty %s", status.Phase1Score, status.Difficulty)
	}

	for slot := 0; slot < simulation.Phase2ItemCount; slot++ {
		next, err := server.handleNextItem(ctx, SessionInput{SessionID: sess.SessionID})
		if err != nil {
			t.Fatalf("next item %d: %v", slot, err)
		}
		if !next.Fallback || next.Item.Slot != slot {
			t.Fatalf("item %d fallback=%v slot=%d", slot, next.Fallback, next.Item.Slot)
		}
		ans, err := server.handleAnswerPhase2(ctx, AnswerInput{
			SessionID:   sess.SessionID,
			ItemID:      next.Item.ItemID,
			IsSpam:      true,
			Explanation: "generic greeting and an urgent link",
		})
		if err != nil {
			t.Fatalf("answer %d: %v", slot, err)
		}
		if ans.Score == nil || !ans.Fallback || ans.Feedback != "" {
			t.Errorf("answer %d = %+v, want rule-based score", slot, ans)
		}
	}

	final, err := server.handleStatus(ctx, SessionInput{SessionID: sess.SessionID})
	if err != nil {
		t.Fatal(err)
	}
	if final.State != string(simulation.StatePhase2Complete) || !final.Completed {
		t.Errorf("final = %+v", final)
	}
	if len(final.Phase2Scores) != simulation.Phase2ItemCount {
		t.Errorf("phase2 scores = %v", final.Phase2Scores)
	}
}

func TestAnswerPhase2_RequiresExplanation(t *testing.T) {
	server, items := setupTestServer(t)
	ctx := context.Background()
	sess, _ := server.handleBegin(ctx, BeginInput{UserID: "learner"})
	for _, item := range items {
		server.handleAnswerPhase1(ctx, AnswerInput{SessionID: sess.SessionID, ItemID: item.ID})
	}
	server.handleStartPhase2(ctx, SessionInput{SessionID: sess.SessionID})
	next, err := server.handleNextItem(ctx, SessionInput{SessionID: sess.SessionID})
	if err != nil {
		t.Fatal(err)
	}

	_, err = server.handleAnswerPhase2(ctx, AnswerInput{SessionID: sess.SessionID, ItemID: next.Item.ItemID})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestRestartAndSkip(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	sess, _ := server.handleBegin(ctx, BeginInput{UserID: "learner"})
	restarted, err := server.handleRestart(ctx, SessionInput{SessionID: sess.SessionID})
	if err != nil {
		t.Fatal(err)
	}
	if restarted.SessionID == sess.SessionID {
		t.Error("restart should create a new session")
	}

	old, _ := server.handleStatus(ctx, SessionInput{SessionID: sess.SessionID})
	if old.State != string(simulation.StateAbandoned) || old.ReplacedBy != restarted.SessionID {
		t.Errorf("old = %+v", old)
	}

	if _, err := server.handleSkip(ctx, SessionInput{SessionID: sess.SessionID}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("skip abandoned session error = %v, want ErrInvalidTransition", err)
	}
	if _, err := server.handleSkip(ctx, SessionInput{SessionID: restarted.SessionID}); err != nil {
		t.Errorf("skip = %v", err)
	}
}

func TestErrors(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	if _, err := server.handleBegin(ctx, BeginInput{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("begin without user = %v", err)
	}
	if _, err := server.handleStatus(ctx, SessionInput{SessionID: "missing"}); !domain.IsNotFound(err) {
		t.Errorf("status of missing session = %v", err)
	}
	if _, err := server.handleNextItem(ctx, SessionInput{SessionID: "missing"}); !domain.IsNotFound(err) {
		t.Errorf("next item of missing session = %v", err)
	}
}

func TestAssessAssignment_Local(t *testing.T) {
	server, _ := setupTestServer(t)
	out, err := server.handleAssessAssignment(context.Background(), AssignmentInput{
		UserID: "learner",
		Email:  "Subject: Urgent\nDear customer, click here to verify your password: https://bank.example/login",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Evaluator != simulation.EvaluatorLocal || out.Score <= 0 || out.Rating == "" {
		t.Errorf("assignment = %+v", out)
	}
}
