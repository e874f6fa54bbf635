package simulation

import (
	"fmt"

	"github.com/felixgeelhaar/phishdrill/internal/domain"
)

// State is the position of a session in the two-phase exercise.
type State string

const (
	StateNotStarted       State = "not_started"
	StatePhase1InProgress State = "phase1_in_progress"
	StatePhase1Complete   State = "phase1_complete"
	StatePhase2InProgress State = "phase2_in_progress"
	StatePhase2Complete   State = "phase2_complete"
	StateAbandoned        State = "abandoned"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StatePhase2Complete || s == StateAbandoned
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateNotStarted, StatePhase1InProgress, StatePhase1Complete,
		StatePhase2InProgress, StatePhase2Complete, StateAbandoned:
		return true
	}
	return false
}

// Event triggers a transition.
type Event string

const (
	EventStart          Event = "start"
	EventAnswerPhase1   Event = "answer_phase1"
	EventCompletePhase1 Event = "complete_phase1"
	EventStartPhase2    Event = "start_phase2"
	EventServeItem      Event = "serve_item"
	EventAnswerPhase2   Event = "answer_phase2"
	EventCompletePhase2 Event = "complete_phase2"
	EventAbandon        Event = "abandon"
)

type transitionKey struct {
	from  State
	event Event
}

// transitions is the complete set of legal moves. Anything not listed is
// rejected.
var transitions = map[transitionKey]State{
	{StateNotStarted, EventStart}:                StatePhase1InProgress,
	{StatePhase1InProgress, EventAnswerPhase1}:   StatePhase1InProgress,
	{StatePhase1InProgress, EventCompletePhase1}: StatePhase1Complete,
	{StatePhase1Complete, EventStartPhase2}:      StatePhase2InProgress,
	{StatePhase2InProgress, EventServeItem}:      StatePhase2InProgress,
	{StatePhase2InProgress, EventAnswerPhase2}:   StatePhase2InProgress,
	{StatePhase2InProgress, EventCompletePhase2}: StatePhase2Complete,

	{StateNotStarted, EventAbandon}:       StateAbandoned,
	{StatePhase1InProgress, EventAbandon}: StateAbandoned,
	{StatePhase1Complete, EventAbandon}:   StateAbandoned,
	{StatePhase2InProgress, EventAbandon}: StateAbandoned,
}

// Next returns the state reached from s on ev, or an error wrapping
// domain.ErrInvalidTransition.
func Next(s State, ev Event) (State, error) {
	to, ok := transitions[transitionKey{s, ev}]
	if !ok {
		return s, fmt.Errorf("%w: %s from %s", domain.ErrInvalidTransition, ev, s)
	}
	return to, nil
}

// Can reports whether ev is legal from s.
func Can(s State, ev Event) bool {
	_, ok := transitions[transitionKey{s, ev}]
	return ok
}
