// Package simulation runs the two-phase phishing awareness exercise: five
// predefined emails, then five generated emails whose difficulty follows the
// learner's accuracy.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/phishdrill/internal/domain"
	"github.com/felixgeelhaar/phishdrill/internal/llm"
	"github.com/felixgeelhaar/phishdrill/internal/router"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// maxTopicHints caps the topics sent with one generation request.
const maxTopicHints = 2

// Router routes a completion request to the configured providers.
type Router interface {
	Route(ctx context.Context, req llm.CompletionRequest) router.Result
}

// Service drives sessions through the state machine. Access to one session
// is serialized by the Locker; the lock is released while a provider call
// is outstanding.
type Service struct {
	store      Store
	router     Router
	predefined []*ContentItem
	locker     Locker
	policy     DifficultyPolicy
	topics     []string
	logger     *slog.Logger
	now        func() time.Time

	inflight singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithLocker replaces the in-process KeyedMutex.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithDifficultyPolicy replaces DefaultDifficulty.
func WithDifficultyPolicy(p DifficultyPolicy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithTopicHints sets the topics suggested to email generation. Each slot
// starts at a different topic so one session sees a spread of themes.
func WithTopicHints(topics []string) Option {
	return func(s *Service) {
		s.topics = nil
		for _, t := range topics {
			if t = strings.TrimSpace(t); t != "" {
				s.topics = append(s.topics, t)
			}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a service. predefined must hold exactly
// Phase1ItemCount items in presentation order.
func NewService(store Store, r Router, predefined []*ContentItem, opts ...Option) (*Service, error) {
	if len(predefined) != Phase1ItemCount {
		return nil, fmt.Errorf("%w: got %d items, want %d", domain.ErrNoPredefinedContent, len(predefined), Phase1ItemCount)
	}

	s := &Service{
		store:  store,
		router: r,
		locker: NewKeyedMutex(),
		policy: DefaultDifficulty,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	for i, item := range predefined {
		cp := *item
		cp.IsPredefined = true
		cp.Source = SourcePredefined
		cp.Slot = i
		cp.SourceSessionID = ""
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = s.now()
		}
		s.predefined = append(s.predefined, &cp)
	}
	return s, nil
}

// Seed writes the predefined items to the store. It is safe to call on
// every startup.
func (s *Service) Seed(ctx context.Context) error {
	for _, item := range s.predefined {
		if err := s.store.SaveContentItem(ctx, item); err != nil {
			return persistenceErr("seed content", err)
		}
	}
	return nil
}

// Create stores a new NotStarted session for userID.
func (s *Service) Create(ctx context.Context, userID string) (*Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	sess := NewSession(userID)
	sess.StartedAt = s.now()
	sess.UpdatedAt = sess.StartedAt
	if err := s.commit(ctx, Mutation{Sessions: []*Session{sess}}); err != nil {
		return nil, err
	}
	return sess, nil
}

// Start moves a session into phase 1.
func (s *Service) Start(ctx context.Context, sessionID string) (*Session, error) {
	sess, _, err := s.mutate(ctx, sessionID, func(sess *Session) (*Response, error) {
		return nil, transition(sess, EventStart)
	})
	return sess, err
}

// Begin creates a session for userID already in phase 1.
func (s *Service) Begin(ctx context.Context, userID string) (*Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	sess := NewSession(userID)
	sess.StartedAt = s.now()
	sess.UpdatedAt = sess.StartedAt
	if err := transition(sess, EventStart); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, Mutation{Sessions: []*Session{sess}}); err != nil {
		return nil, err
	}
	return sess, nil
}

// Phase1Items returns the predefined items in presentation order.
func (s *Service) Phase1Items() []*ContentItem {
	out := make([]*ContentItem, len(s.predefined))
	for i, item := range s.predefined {
		cp := *item
		out[i] = &cp
	}
	return out
}

// AnswerResult is the outcome of a recorded answer.
type AnswerResult struct {
	Session  *Session  `json:"session"`
	Response *Response `json:"response"`
	// Fallback is true when the answer was scored locally.
	Fallback bool `json:"fallback"`
}

// SubmitPhase1Answer records the learner's verdict on a predefined item.
// Items must be answered in order; the fifth answer completes phase 1.
func (s *Service) SubmitPhase1Answer(ctx context.Context, sessionID, itemID string, isSpam bool) (*AnswerResult, error) {
	pos := -1
	for i, item := range s.predefined {
		if item.ID == itemID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrContentItemNotFound, itemID)
	}
	item := s.predefined[pos]

	sess, resp, err := s.mutate(ctx, sessionID, func(sess *Session) (*Response, error) {
		if err := transition(sess, EventAnswerPhase1); err != nil {
			return nil, err
		}
		switch {
		case pos < sess.Phase1Answered:
			return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyAnswered, itemID)
		case pos > sess.Phase1Answered:
			return nil, fmt.Errorf("%w: expected item %s", domain.ErrUnexpectedItem, s.predefined[sess.Phase1Answered].ID)
		}

		correct := isSpam == item.IsSpam
		sess.Phase1Answered++
		if correct {
			sess.Phase1Correct++
		}
		if sess.Phase1Answered == Phase1ItemCount {
			if err := transition(sess, EventCompletePhase1); err != nil {
				return nil, err
			}
			sess.Phase1Score = sess.Phase1Correct
			sess.Phase1Completed = true
		}

		return &Response{
			ID:            uuid.New().String(),
			SessionID:     sess.ID,
			ContentItemID: item.ID,
			Phase:         Phase1,
			UserResponse:  isSpam,
			Correct:       correct,
			CreatedAt:     s.now(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &AnswerResult{Session: sess, Response: resp}, nil
}

// StartPhase2 moves a session into phase 2 and sets the first difficulty
// from the phase-1 score.
func (s *Service) StartPhase2(ctx context.Context, sessionID string) (*Session, error) {
	sess, _, err := s.mutate(ctx, sessionID, func(sess *Session) (*Response, error) {
		if err := transition(sess, EventStartPhase2); err != nil {
			return nil, err
		}
		sess.Difficulty = s.policy(sess.Phase1Score, 0, 0)
		return nil, nil
	})
	return sess, err
}

// ItemResult is the phase-2 item for the current slot.
type ItemResult struct {
	Item *ContentItem `json:"item"`
	Slot int          `json:"slot"`
	// Fallback is true when the item is local template content.
	Fallback bool `json:"fallback"`
}

// RequestNextPhase2Item returns the item for the session's next phase-2
// slot, generating it if needed. Repeated calls for the same slot return
// the same stored item, and concurrent callers share one generation.
func (s *Service) RequestNextPhase2Item(ctx context.Context, sessionID string) (*ItemResult, error) {
	snapshot, existing, err := s.prepareItem(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	slot := snapshot.NextPhase2Slot()
	if existing != nil {
		return &ItemResult{Item: existing, Slot: slot, Fallback: existing.IsFallback()}, nil
	}

	key := fmt.Sprintf("%s/%d", sessionID, slot)
	v, err, _ := s.inflight.Do(key, func() (any, error) {
		return s.generateItem(context.WithoutCancel(ctx), snapshot, slot)
	})
	if err != nil {
		return nil, err
	}
	item := v.(*ContentItem)
	cp := *item
	return &ItemResult{Item: &cp, Slot: slot, Fallback: cp.IsFallback()}, nil
}

// prepareItem validates the session under lock and returns any item
// already stored for the next slot.
func (s *Service) prepareItem(ctx context.Context, sessionID string) (*Session, *ContentItem, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := Next(sess.State, EventServeItem); err != nil {
		return nil, nil, transitionErr(sess, err)
	}

	existing, err := s.findSlot(ctx, sessionID, sess.NextPhase2Slot())
	if err != nil {
		return nil, nil, err
	}
	return sess, existing, nil
}

// topicsFor returns up to maxTopicHints topics starting at the slot's offset.
func (s *Service) topicsFor(slot int) []string {
	if len(s.topics) == 0 {
		return nil
	}
	n := min(maxTopicHints, len(s.topics))
	out := make([]string, n)
	for i := range out {
		out[i] = s.topics[(slot+i)%len(s.topics)]
	}
	return out
}

func (s *Service) generateItem(ctx context.Context, snapshot *Session, slot int) (*ContentItem, error) {
	req := llm.GenerateEmail{
		Difficulty:  snapshot.Difficulty,
		TopicHints:  s.topicsFor(slot),
		Performance: performanceSummary(snapshot),
	}
	if !req.Difficulty.Valid() {
		req.Difficulty = s.policy(snapshot.Phase1Score, len(snapshot.Phase2Scores), snapshot.Phase2Correct)
	}

	res := s.router.Route(ctx, req)
	now := s.now()

	var item *ContentItem
	if res.OK() {
		if email, ok := res.Success.Completion.Payload.(*llm.GeneratedEmail); ok {
			item = &ContentItem{
				ID:              uuid.New().String(),
				IsSpam:          email.IsSpam,
				Sender:          email.Sender,
				Subject:         email.Subject,
				Date:            email.Date,
				Content:         email.Content,
				Difficulty:      req.Difficulty,
				Source:          SourceGenerated,
				Provider:        res.Success.ProviderUsed,
				SourceSessionID: snapshot.ID,
				Slot:            slot,
				CreatedAt:       now,
			}
		} else {
			s.logger.Warn("unexpected generation payload", "session_id", snapshot.ID, "provider", res.Success.ProviderUsed)
		}
	} else {
		s.logger.Warn("email generation failed, using template",
			"session_id", snapshot.ID,
			"slot", slot,
			"error", res.Failure.Error())
	}
	if item == nil {
		item = FallbackItem(snapshot.ID, slot, req.Difficulty, now)
	}

	unlock, err := s.lock(ctx, snapshot.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.load(ctx, snapshot.ID)
	if err != nil {
		return nil, err
	}
	if cur.State == StateAbandoned {
		s.logger.Info("discarding generated item for abandoned session", "session_id", cur.ID, "slot", slot)
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionAbandoned, cur.ID)
	}
	if _, err := Next(cur.State, EventServeItem); err != nil {
		return nil, transitionErr(cur, err)
	}
	if cur.NextPhase2Slot() != slot {
		return nil, fmt.Errorf("%w: slot %d already answered", domain.ErrAlreadyAnswered, slot)
	}

	if existing, err := s.findSlot(ctx, cur.ID, slot); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	if err := s.commit(ctx, Mutation{Item: item}); err != nil {
		// Another process may have filled the slot between the check and
		// the insert; the unique (session, slot) index rejects ours.
		if winner, ferr := s.findSlot(ctx, cur.ID, slot); ferr == nil && winner != nil {
			s.logger.Info("slot filled by another writer, using stored item",
				"session_id", cur.ID, "slot", slot, "item_id", winner.ID)
			return winner, nil
		}
		return nil, err
	}
	return item, nil
}

// SubmitPhase2Answer records the learner's verdict and explanation for the
// current phase-2 item, scoring it with an evaluator or, when every
// provider fails, on correctness alone.
func (s *Service) SubmitPhase2Answer(ctx context.Context, sessionID, itemID string, isSpam bool, explanation string) (*AnswerResult, error) {
	if strings.TrimSpace(explanation) == "" {
		return nil, fmt.Errorf("%w: explanation is required", domain.ErrInvalidInput)
	}

	item, slot, err := s.prepareAnswer(ctx, sessionID, itemID)
	if err != nil {
		return nil, err
	}

	correct := isSpam == item.IsSpam
	res := s.router.Route(ctx, llm.EvaluateExplanation{
		EmailContent: emailText(item),
		IsSpam:       item.IsSpam,
		Verdict:      isSpam,
		LearnerText:  explanation,
	})

	resp := &Response{
		ID:              uuid.New().String(),
		SessionID:       sessionID,
		ContentItemID:   item.ID,
		Phase:           Phase2,
		UserResponse:    isSpam,
		UserExplanation: explanation,
		Correct:         correct,
		Evaluator:       EvaluatorLocal,
	}
	fallback := true
	if res.OK() {
		if eval, ok := res.Success.Completion.Payload.(*llm.Evaluation); ok {
			score := eval.Score
			feedback := eval.Feedback
			resp.Score = &score
			resp.AIFeedback = &feedback
			resp.Evaluator = res.Success.ProviderUsed
			fallback = false
		}
	}
	if fallback {
		score := RuleBasedScore(correct)
		resp.Score = &score
		if res.Failure != nil {
			s.logger.Warn("evaluation failed, using rule-based score",
				"session_id", sessionID,
				"slot", slot,
				"error", res.Failure.Error())
		}
	}

	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cur.State == StateAbandoned {
		s.logger.Info("discarding evaluation for abandoned session", "session_id", cur.ID, "slot", slot)
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionAbandoned, cur.ID)
	}

	next := cur.Clone()
	if err := transition(next, EventAnswerPhase2); err != nil {
		return nil, err
	}
	if next.NextPhase2Slot() != slot {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyAnswered, itemID)
	}

	next.Phase2Scores = append(next.Phase2Scores, *resp.Score)
	if correct {
		next.Phase2Correct++
	}
	next.Difficulty = s.policy(next.Phase1Score, len(next.Phase2Scores), next.Phase2Correct)

	if len(next.Phase2Scores) == Phase2ItemCount {
		if err := transition(next, EventCompletePhase2); err != nil {
			return nil, err
		}
		next.Phase2Completed = true
		if next.CompletedAt == nil && next.Phase1Completed {
			t := s.now()
			next.CompletedAt = &t
		}
	}

	now := s.now()
	next.UpdatedAt = now
	resp.CreatedAt = now
	if err := s.commit(ctx, Mutation{Sessions: []*Session{next}, Response: resp}); err != nil {
		return nil, err
	}
	return &AnswerResult{Session: next, Response: resp, Fallback: fallback}, nil
}

// prepareAnswer checks under lock that itemID is the item awaiting an
// answer and returns it with its slot.
func (s *Service) prepareAnswer(ctx context.Context, sessionID, itemID string) (*ContentItem, int, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	defer unlock()

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if _, err := Next(sess.State, EventAnswerPhase2); err != nil {
		return nil, 0, transitionErr(sess, err)
	}

	item, err := s.store.GetContentItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrContentItemNotFound) {
			return nil, 0, fmt.Errorf("%w: %s", domain.ErrContentItemNotFound, itemID)
		}
		return nil, 0, persistenceErr("load content item", err)
	}

	slot := sess.NextPhase2Slot()
	switch {
	case item.IsPredefined || item.SourceSessionID != sess.ID:
		return nil, 0, fmt.Errorf("%w: %s does not belong to phase 2 of this session", domain.ErrUnexpectedItem, itemID)
	case item.Slot < slot:
		return nil, 0, fmt.Errorf("%w: %s", domain.ErrAlreadyAnswered, itemID)
	case item.Slot > slot:
		return nil, 0, fmt.Errorf("%w: %s is not the current item", domain.ErrUnexpectedItem, itemID)
	}
	return item, slot, nil
}

// Restart abandons the session and returns a new one in phase 1 for the
// same user.
func (s *Service) Restart(ctx context.Context, sessionID string) (*Session, error) {
	return s.replace(ctx, sessionID, "restart")
}

// Skip abandons the session the same way as Restart, recording the reason
// as a skip.
func (s *Service) Skip(ctx context.Context, sessionID string) (*Session, error) {
	return s.replace(ctx, sessionID, "skip")
}

func (s *Service) replace(ctx context.Context, sessionID, reason string) (*Session, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	old := cur.Clone()
	if err := transition(old, EventAbandon); err != nil {
		return nil, err
	}

	fresh := NewSession(old.UserID)
	fresh.StartedAt = s.now()
	fresh.UpdatedAt = fresh.StartedAt
	if err := transition(fresh, EventStart); err != nil {
		return nil, err
	}

	old.AbandonReason = reason
	old.ReplacedBy = fresh.ID
	old.UpdatedAt = fresh.StartedAt

	if err := s.commit(ctx, Mutation{Sessions: []*Session{old, fresh}}); err != nil {
		return nil, err
	}
	s.logger.Info("session abandoned", "session_id", old.ID, "reason", reason, "replaced_by", fresh.ID)
	return fresh, nil
}

// Get returns a session with its responses.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.ListResponses(ctx, sessionID)
	if err != nil {
		return nil, persistenceErr("list responses", err)
	}
	sess.Responses = responses
	return sess, nil
}

// Analytics aggregates completed sessions. Abandoned sessions are only
// counted.
func (s *Service) Analytics(ctx context.Context) (*Analytics, error) {
	sessions, err := s.store.ListSessionsByState(ctx, StatePhase2Complete, StateAbandoned)
	if err != nil {
		return nil, persistenceErr("list sessions", err)
	}

	a := &Analytics{}
	var p1, p2 float64
	for _, sess := range sessions {
		if sess.State == StateAbandoned {
			a.AbandonedSessions++
			continue
		}
		a.CompletedSessions++
		p1 += float64(sess.Phase1Score)
		p2 += sess.Phase2Average()
		if sess.Phase1Score >= 0 && sess.Phase1Score <= Phase1ItemCount {
			a.Phase1Distribution[sess.Phase1Score]++
		}
	}
	if a.CompletedSessions > 0 {
		a.AvgPhase1Score = p1 / float64(a.CompletedSessions)
		a.AvgPhase2Score = p2 / float64(a.CompletedSessions)
	}
	return a, nil
}

// AssessAssignment scores a learner-crafted phishing email on a 0-100
// scale.
func (s *Service) AssessAssignment(ctx context.Context, userID, email string) (*Assignment, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}

	a := &Assignment{
		ID:        uuid.New().String(),
		UserID:    userID,
		Email:     email,
		CreatedAt: s.now(),
	}

	res := s.router.Route(ctx, llm.ScoreAssignment{LearnerCraftedEmail: email})
	if assessment, ok := assessmentOf(res); ok {
		a.Score = assessment.Score
		a.Rating = assessment.Rating
		a.Feedback = assessment.Feedback
		a.Evaluator = res.Success.ProviderUsed
	} else {
		a.Score, a.Rating, a.Feedback = AssessLocally(email)
		a.Evaluator = EvaluatorLocal
	}

	if err := s.store.SaveAssignment(ctx, a); err != nil {
		return nil, persistenceErr("save assignment", err)
	}
	return a, nil
}

// Assignments lists a user's scored assignments.
func (s *Service) Assignments(ctx context.Context, userID string) ([]*Assignment, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	out, err := s.store.ListAssignments(ctx, userID)
	if err != nil {
		return nil, persistenceErr("list assignments", err)
	}
	return out, nil
}

func assessmentOf(res router.Result) (*llm.Assessment, bool) {
	if !res.OK() {
		return nil, false
	}
	a, ok := res.Success.Completion.Payload.(*llm.Assessment)
	return a, ok
}

// mutate applies fn to a copy of the session under lock and commits the
// copy together with the response fn returns.
func (s *Service) mutate(ctx context.Context, sessionID string, fn func(sess *Session) (*Response, error)) (*Session, *Response, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	cur, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	next := cur.Clone()
	resp, err := fn(next)
	if err != nil {
		return nil, nil, err
	}
	next.UpdatedAt = s.now()

	if err := s.commit(ctx, Mutation{Sessions: []*Session{next}, Response: resp}); err != nil {
		return nil, nil, err
	}
	return next, resp, nil
}

func (s *Service) lock(ctx context.Context, sessionID string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, "session:"+sessionID)
	if err != nil {
		return nil, fmt.Errorf("lock session %s: %w", sessionID, err)
	}
	return unlock, nil
}

func (s *Service) load(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
		}
		return nil, persistenceErr("load session", err)
	}
	return sess, nil
}

func (s *Service) findSlot(ctx context.Context, sessionID string, slot int) (*ContentItem, error) {
	item, err := s.store.FindPhase2Item(ctx, sessionID, slot)
	if err != nil {
		if errors.Is(err, domain.ErrContentItemNotFound) {
			return nil, nil
		}
		return nil, persistenceErr("find phase 2 item", err)
	}
	return item, nil
}

func (s *Service) commit(ctx context.Context, m Mutation) error {
	if err := s.store.Commit(ctx, m); err != nil {
		return persistenceErr("commit", err)
	}
	return nil
}

func persistenceErr(op string, err error) error {
	if errors.Is(err, domain.ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

// transition moves sess along ev or returns the reason it cannot.
func transition(sess *Session, ev Event) error {
	to, err := Next(sess.State, ev)
	if err != nil {
		return transitionErr(sess, err)
	}
	sess.State = to
	return nil
}

func transitionErr(sess *Session, err error) error {
	if sess.State == StateAbandoned {
		return fmt.Errorf("%w: %w", domain.ErrSessionAbandoned, err)
	}
	return err
}

func performanceSummary(sess *Session) string {
	return fmt.Sprintf("Phase 1: %d/%d correct. Phase 2 so far: %d of %d correct.",
		sess.Phase1Score, Phase1ItemCount, sess.Phase2Correct, len(sess.Phase2Scores))
}

func emailText(item *ContentItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", item.Sender)
	fmt.Fprintf(&b, "Subject: %s\n", item.Subject)
	if item.Date != "" {
		fmt.Fprintf(&b, "Date: %s\n", item.Date)
	}
	b.WriteString("\n")
	b.WriteString(item.Content)
	return b.String()
}
