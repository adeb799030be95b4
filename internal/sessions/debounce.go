package sessions

import (
	"time"

	"github.com/nextlevelbuilder/wamenu/internal/intent"
)

const (
	// DefaultDebounceWindow is how long an identical invalid reply counts as a repeat.
	DefaultDebounceWindow = 2500 * time.Millisecond
	// DefaultFeedbackCooldown throttles the "please wait" notice per step.
	DefaultFeedbackCooldown = 2500 * time.Millisecond
)

var now = time.Now

// IsDebouncedRepeatedInput reports whether text repeats the previous invalid
// input for the same step within window. The observation is always recorded,
// so the comparison is against the most recent attempt only.
func (s *Session) IsDebouncedRepeatedInput(step Step, text string, window time.Duration) bool {
	if s == nil {
		return false
	}
	normalized := intent.NormalizeText(text)
	if normalized == "" {
		return false
	}

	at := now()
	prev := s.LastInvalidInput
	s.LastInvalidInput = &InputObservation{Step: step, Normalized: normalized, At: at}
	if prev == nil {
		return false
	}
	return prev.Step == step && prev.Normalized == normalized && at.Sub(prev.At) <= window
}

// ShouldSendRepeatedInputFeedback gates the repeated-input notice per step.
func (s *Session) ShouldSendRepeatedInputFeedback(step Step, cooldown time.Duration) bool {
	if s == nil {
		return false
	}
	at := now()
	if prev, ok := s.RepeatedFeedbackAt[step]; ok && at.Sub(prev) < cooldown {
		return false
	}
	if s.RepeatedFeedbackAt == nil {
		s.RepeatedFeedbackAt = make(map[Step]time.Time)
	}
	s.RepeatedFeedbackAt[step] = at
	return true
}
