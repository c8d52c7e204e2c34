package agent

import (
	"sync"
	"time"

	"github.com/mscrnt/homecards/pkg/card"
)

// Snapshot holds the most recent card list produced by monitoring
type Snapshot struct {
	mu        sync.RWMutex
	cards     []card.Card
	updatedAt time.Time
	updates   uint64
}

// NewSnapshot returns an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// Update replaces the card list. Its signature matches condition.Listener.
func (s *Snapshot) Update(cards []card.Card) {
	cp := make([]card.Card, len(cards))
	copy(cp, cards)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards = cp
	s.updatedAt = time.Now()
	s.updates++
}

// Cards returns a copy of the latest list and when it was stored
func (s *Snapshot) Cards() ([]card.Card, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := make([]card.Card, len(s.cards))
	copy(cp, s.cards)
	return cp, s.updatedAt
}

// Updates returns how many times Update was called
func (s *Snapshot) Updates() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}
