// Package condition aggregates host condition controllers into the list of
// cards that should currently be shown.
package condition

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mscrnt/homecards/pkg/broadcast"
	"github.com/mscrnt/homecards/pkg/card"
)

// Controller owns the state query and the change subscription for one card
type Controller interface {
	// ID returns the id of the card this controller produces
	ID() card.ID

	// IsDisplayable reports whether the underlying condition currently holds.
	// It may block on the platform and may fail.
	IsDisplayable(ctx context.Context, sess *Session) (bool, error)

	// BuildCard returns a fresh card reflecting the last observed state
	BuildCard() card.Card

	// Source returns the change notifications for this condition, or nil
	Source() broadcast.Source
}

// Checker is implemented by controllers whose card describes the sample that
// made it displayable. The manager calls Check instead of IsDisplayable
// followed by BuildCard when a controller provides it.
type Checker interface {
	Check(ctx context.Context, sess *Session) (c card.Card, displayable bool, err error)
}

// Listener receives every refreshed card list. It is called from the
// goroutine that ran the aggregation.
type Listener func(cards []card.Card)

// Session is the state that lives for one monitoring session, such as cards
// that should keep showing once they appeared.
type Session struct {
	id      string
	started time.Time

	mu   sync.Mutex
	keep map[card.ID]bool
}

// NewSession creates an empty session
func NewSession() *Session {
	return &Session{
		id:      uuid.NewString(),
		started: time.Now(),
		keep:    make(map[card.ID]bool),
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Started returns when the session began
func (s *Session) Started() time.Time {
	return s.started
}

// KeepShowing reports whether id was pinned for this session
func (s *Session) KeepShowing(id card.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keep[id]
}

// SetKeepShowing pins or unpins id for the rest of the session
func (s *Session) SetKeepShowing(id card.ID, keep bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep {
		s.keep[id] = true
	} else {
		delete(s.keep, id)
	}
}
