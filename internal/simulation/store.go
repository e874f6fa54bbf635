package simulation

import "context"

// Mutation is a set of records a Store writes atomically. Sessions are
// upserted; Item and Response are inserted.
type Mutation struct {
	Sessions []*Session
	Item     *ContentItem
	Response *Response
}

// Store persists sessions, content items, responses and assignments.
// Implementations return domain.ErrSessionNotFound or
// domain.ErrContentItemNotFound for missing records. All other errors are
// treated as persistence failures.
type Store interface {
	Commit(ctx context.Context, m Mutation) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListResponses(ctx context.Context, sessionID string) ([]*Response, error)

	// SaveContentItem upserts an item; used to seed predefined content.
	SaveContentItem(ctx context.Context, item *ContentItem) error
	GetContentItem(ctx context.Context, id string) (*ContentItem, error)
	// FindPhase2Item returns the item generated for a session slot.
	FindPhase2Item(ctx context.Context, sessionID string, slot int) (*ContentItem, error)

	SaveAssignment(ctx context.Context, a *Assignment) error
	// ListAssignments returns a user's assignments, newest first.
	ListAssignments(ctx context.Context, userID string) ([]*Assignment, error)
	// ListSessionsByState returns sessions in any of the given states.
	ListSessionsByState(ctx context.Context, states ...State) ([]*Session, error)
}
