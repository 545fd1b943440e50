// Package conversation holds the ordered record of turns for the current
// session.
package conversation

import (
	"time"
)

type Speaker string

const (
	User      Speaker = "user"
	Assistant Speaker = "assistant"
)

// Turn is one utterance. Values are copied everywhere, so a Turn cannot be
// changed once appended.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Emotion   string    `json:"emotion,omitempty"`
}

func NewTurn(speaker Speaker, text string) Turn {
	return Turn{Speaker: speaker, Text: text, Timestamp: time.Now()}
}

// Store is append-only between resets and has a single writer, the
// orchestrator. It does no locking.
type Store struct {
	turns    []Turn
	maxTurns int
}

// NewStore keeps at most maxTurns turns, dropping the oldest first. Zero
// means unbounded. An odd bound is rounded up to hold whole exchanges.
func NewStore(maxTurns int) *Store {
	if maxTurns < 0 {
		maxTurns = 0
	}
	maxTurns += maxTurns % 2
	return &Store{maxTurns: maxTurns}
}

// Append adds t. When the bound is exceeded the oldest turns go, and the
// kept record never opens with a reply whose user turn was dropped.
func (s *Store) Append(t Turn) {
	s.turns = append(s.turns, t)
	if s.maxTurns == 0 || len(s.turns) <= s.maxTurns {
		return
	}
	drop := len(s.turns) - s.maxTurns
	for drop < len(s.turns)-1 && s.turns[drop].Speaker == Assistant {
		drop++
	}
	s.turns = append(s.turns[:0:0], s.turns[drop:]...)
}

// Snapshot returns a copy; callers may keep or modify it freely.
func (s *Store) Snapshot() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Reset empties the store. Snapshots taken earlier are unaffected.
func (s *Store) Reset() {
	s.turns = nil
}

func (s *Store) Len() int { return len(s.turns) }
