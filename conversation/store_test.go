package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendKeepsInsertionOrder(t *testing.T) {
	s := NewStore(0)
	s.Append(NewTurn(User, "hello"))
	s.Append(NewTurn(Assistant, "hi there"))
	s.Append(NewTurn(User, "bye"))

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"hello", "hi there", "bye"}, []string{snap[0].Text, snap[1].Text, snap[2].Text})
	assert.Equal(t, Assistant, snap[1].Speaker)
	assert.False(t, snap[0].Timestamp.IsZero())
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := NewStore(0)
	s.Append(NewTurn(User, "original"))

	snap := s.Snapshot()
	snap[0].Text = "tampered"
	snap = append(snap, NewTurn(User, "extra"))

	assert.Equal(t, "original", s.Snapshot()[0].Text)
	assert.Equal(t, 1, s.Len())
}

func TestResetEmptiesButKeepsOldSnapshots(t *testing.T) {
	s := NewStore(0)
	s.Append(NewTurn(User, "one"))
	s.Append(NewTurn(Assistant, "two"))
	before := s.Snapshot()

	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Snapshot())
	assert.NotNil(t, s.Snapshot())
	assert.Len(t, before, 2)

	s.Append(NewTurn(User, "fresh"))
	assert.Equal(t, 1, s.Len())
}

func TestMaxTurnsDropsOldest(t *testing.T) {
	s := NewStore(2)
	for _, text := range []string{"a", "b", "c", "d"} {
		s.Append(NewTurn(User, text))
	}
	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "c", snap[0].Text)
	assert.Equal(t, "d", snap[1].Text)
}

func TestMaxTurnsKeepsWholeExchanges(t *testing.T) {
	tests := []struct {
		name     string
		maxTurns int
		want     []string
	}{
		{"odd bound rounds up", 3, []string{"u2", "a2", "u3", "a3"}},
		{"even bound", 2, []string{"u3", "a3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(tt.maxTurns)
			for _, n := range []string{"1", "2", "3"} {
				s.Append(NewTurn(User, "u"+n))
				s.Append(NewTurn(Assistant, "a"+n))
			}
			var got []string
			for _, turn := range s.Snapshot() {
				got = append(got, turn.Text)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, User, s.Snapshot()[0].Speaker)
		})
	}
}

func TestTrimSkipsOrphanedReply(t *testing.T) {
	s := NewStore(2)
	// a turn that failed after recording the user but before the reply
	s.Append(NewTurn(User, "lost"))
	s.Append(NewTurn(User, "u1"))
	s.Append(NewTurn(Assistant, "a1"))
	s.Append(NewTurn(User, "u2"))

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "u2", snap[0].Text)
}
