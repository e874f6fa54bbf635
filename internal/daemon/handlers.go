package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/phishdrill/internal/domain"
	"github.com/felixgeelhaar/phishdrill/internal/llm"
	"github.com/felixgeelhaar/phishdrill/internal/simulation"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes bounds request bodies; assignments are the largest.
const maxBodyBytes = 64 << 10

// ItemView is a content item as shown to a learner. The ground truth is
// withheld until the item is answered.
type ItemView struct {
	ID         string            `json:"id"`
	Sender     string            `json:"sender"`
	Subject    string            `json:"subject"`
	Date       string            `json:"date,omitempty"`
	Content    string            `json:"content"`
	Difficulty llm.Difficulty    `json:"difficulty,omitempty"`
	Source     simulation.Source `json:"source"`
	Slot       int               `json:"slot"`
}

func viewOf(item *simulation.ContentItem) ItemView {
	return ItemView{
		ID:         item.ID,
		Sender:     item.Sender,
		Subject:    item.Subject,
		Date:       item.Date,
		Content:    item.Content,
		Difficulty: item.Difficulty,
		Source:     item.Source,
		Slot:       item.Slot,
	}
}

// CreateSessionRequest is the body of POST /v1/sessions.
type CreateSessionRequest struct {
	// Start creates the session directly in phase 1.
	Start bool `json:"start"`
}

// AnswerRequest is the body of the answer endpoints.
type AnswerRequest struct {
	ItemID      string `json:"item_id"`
	IsSpam      *bool  `json:"is_spam"`
	Explanation string `json:"explanation,omitempty"`
}

// AnswerResponse adds rendered feedback to an answer result.
type AnswerResponse struct {
	*simulation.AnswerResult
	FeedbackHTML string `json:"feedback_html,omitempty"`
}

// ItemResponse is the body returned for a phase 2 item.
type ItemResponse struct {
	Item     ItemView `json:"item"`
	Slot     int      `json:"slot"`
	Fallback bool     `json:"fallback"`
}

// AssignmentRequest is the body of POST /v1/assignments.
type AssignmentRequest struct {
	Email string `json:"email"`
}

// AssignmentResponse adds rendered feedback to a scored assignment.
type AssignmentResponse struct {
	*simulation.Assignment
	FeedbackHTML string `json:"feedback_html,omitempty"`
}

func (s *Server) handlePhase1Items(w http.ResponseWriter, r *http.Request) {
	items := s.service.Phase1Items()
	views := make([]ItemView, len(items))
	for i, item := range items {
		views[i] = viewOf(item)
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"items": views})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if !s.decode(w, r, &req) {
			return
		}
	}

	var (
		sess *simulation.Session
		err  error
	)
	if req.Start {
		sess, err = s.service.Begin(r.Context(), userID)
	} else {
		sess, err = s.service.Create(r.Context(), userID)
	}
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	started, err := s.service.Start(r.Context(), sess.ID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, started)
}

func (s *Server) handlePhase1Answer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	req, ok := s.decodeAnswer(w, r)
	if !ok {
		return
	}
	res, err := s.service.SubmitPhase1Answer(r.Context(), sess.ID, req.ItemID, *req.IsSpam)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, AnswerResponse{AnswerResult: res})
}

func (s *Server) handleStartPhase2(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	started, err := s.service.StartPhase2(r.Context(), sess.ID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, started)
}

func (s *Server) handleNextItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	res, err := s.service.RequestNextPhase2Item(r.Context(), sess.ID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ItemResponse{
		Item:     viewOf(res.Item),
		Slot:     res.Slot,
		Fallback: res.Fallback,
	})
}

func (s *Server) handlePhase2Answer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	req, ok := s.decodeAnswer(w, r)
	if !ok {
		return
	}
	res, err := s.service.SubmitPhase2Answer(r.Context(), sess.ID, req.ItemID, *req.IsSpam, req.Explanation)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	out := AnswerResponse{AnswerResult: res}
	if res.Response != nil {
		html, err := s.renderer.RenderPtr(res.Response.AIFeedback)
		if err != nil {
			s.logger.Warn("feedback render failed", "session_id", sess.ID, "error", err)
		}
		out.FeedbackHTML = html
	}
	s.jsonResponse(w, http.StatusOK, out)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	fresh, err := s.service.Restart(r.Context(), sess.ID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, fresh)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	fresh, err := s.service.Skip(r.Context(), sess.ID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, fresh)
}

func (s *Server) handleAssessAssignment(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req AssignmentRequest
	if !s.decode(w, r, &req) {
		return
	}

	a, err := s.service.AssessAssignment(r.Context(), userID, req.Email)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	html, err := s.renderer.Render(a.Feedback)
	if err != nil {
		s.logger.Warn("feedback render failed", "assignment_id", a.ID, "error", err)
	}
	s.jsonResponse(w, http.StatusCreated, AssignmentResponse{Assignment: a, FeedbackHTML: html})
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	list, err := s.service.Assignments(r.Context(), userID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	if list == nil {
		list = []*simulation.Assignment{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"assignments": list})
}

func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if userID == "" {
		s.jsonError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header", nil)
		return "", false
	}
	return userID, true
}

// ownedSession loads the session named in the path. Sessions of other
// users are reported as missing.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request) (*simulation.Session, bool) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return nil, false
	}
	sess, err := s.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.serviceError(w, r, err)
		return nil, false
	}
	if sess.UserID != userID {
		s.serviceError(w, r, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sess.ID))
		return nil, false
	}
	return sess, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

func (s *Server) decodeAnswer(w http.ResponseWriter, r *http.Request) (AnswerRequest, bool) {
	var req AnswerRequest
	if !s.decode(w, r, &req) {
		return req, false
	}
	if req.ItemID == "" || req.IsSpam == nil {
		s.jsonError(w, http.StatusBadRequest, "item_id and is_spam are required", nil)
		return req, false
	}
	return req, true
}
