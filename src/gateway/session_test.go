package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionReadyEnablesResume(t *testing.T) {
	s := NewSession()
	assert.False(t, s.CanResume())

	s.Ready("sess-1", "wss://resume.example")
	assert.True(t, s.CanResume())
	assert.Equal(t, "sess-1", s.ID())
	assert.Equal(t, "wss://resume.example", s.ResumeGatewayURL())
}

func TestSessionInvalidateResumable(t *testing.T) {
	s := NewSession()
	s.Ready("sess-1", "wss://resume.example")
	s.UpdateSequence(42)

	s.Invalidate(true)
	assert.True(t, s.CanResume())
	assert.EqualValues(t, 42, s.Sequence())
}

func TestSessionInvalidateNotResumableClearsIdentity(t *testing.T) {
	s := NewSession()
	s.Ready("sess-1", "wss://resume.example")
	s.UpdateSequence(42)

	s.Invalidate(false)
	assert.False(t, s.CanResume())
	assert.Empty(t, s.ID())
	assert.EqualValues(t, 0, s.Sequence())
}

func TestSessionSequenceNeverRegresses(t *testing.T) {
	s := NewSession()
	s.UpdateSequence(10)
	s.UpdateSequence(7)
	assert.EqualValues(t, 10, s.Sequence())
	s.UpdateSequence(11)
	assert.EqualValues(t, 11, s.Sequence())
}
