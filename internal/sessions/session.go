// Package sessions holds per-chat user-menu state and the runtime machinery
// around it: the session store, inactivity timers, post-expiry cooldowns,
// the per-chat processing lock and the auxiliary clientrequest map.
package sessions

import (
	"sync"
	"sync/atomic"
	"time"
)

// Step is a state of the user-menu conversation.
type Step string

const (
	StepMain                    Step = "main"
	StepInputUserID             Step = "inputUserId"
	StepConfirmBindUser         Step = "confirmBindUser"
	StepConfirmBindUpdate       Step = "confirmBindUpdate"
	StepConfirmUserByWaIdentity Step = "confirmUserByWaIdentity"
	StepConfirmUserByWaUpdate   Step = "confirmUserByWaUpdate"
	StepTanyaUpdateMyData       Step = "tanyaUpdateMyData"
	StepUpdateAskField          Step = "updateAskField"
	StepUpdateAskValue          Step = "updateAskValue"
)

var knownSteps = map[Step]bool{
	StepMain:                    true,
	StepInputUserID:             true,
	StepConfirmBindUser:         true,
	StepConfirmBindUpdate:       true,
	StepConfirmUserByWaIdentity: true,
	StepConfirmUserByWaUpdate:   true,
	StepTanyaUpdateMyData:       true,
	StepUpdateAskField:          true,
	StepUpdateAskValue:          true,
}

// Valid reports whether s belongs to the closed step set.
func (s Step) Valid() bool { return knownSteps[s] }

// InputObservation is the last invalid input seen by a session.
type InputObservation struct {
	Step       Step
	Normalized string
	At         time.Time
}

// ProcessedInput records the last committed field update.
type ProcessedInput struct {
	Field    string
	Value    string
	RawInput string
}

// Session is the mutable user-menu record for one chat. Fields are owned by
// the handler holding the chat's processing lock; timer handles are guarded
// separately because the scheduler touches them from timer goroutines.
type Session struct {
	ChatID string
	Step   Step
	// StepVersion increases on every SetStep.
	StepVersion uint64

	IdentityConfirmed bool
	UserID            string
	UpdateUserID      string
	BindUserID        string
	IsDitbinmas       bool

	UpdateField         string
	AvailableTitles     []string
	AvailableSatfung    []string
	UpdateAskFieldRetry int

	LastInvalidInput   *InputObservation
	RepeatedFeedbackAt map[Step]time.Time

	LastProcessedInput *ProcessedInput
	LastProcessedAt    time.Time

	Exit    bool
	Created time.Time
	Updated time.Time

	activitySeq atomic.Uint64
	published   atomic.Pointer[StepSnapshot]

	timersMu     sync.Mutex
	expiryTimer  *time.Timer
	warningTimer *time.Timer
	noReplyTimer *time.Timer
}

// New returns an empty session for chatID positioned at the entry step.
func New(chatID string) *Session {
	now := time.Now()
	s := &Session{
		ChatID:  chatID,
		Step:    StepMain,
		Created: now,
		Updated: now,
	}
	s.published.Store(&StepSnapshot{Step: StepMain})
	return s
}

// SetStep moves the session to step and bumps StepVersion.
func (s *Session) SetStep(step Step) {
	s.Step = step
	s.StepVersion++
	s.Updated = time.Now()
	s.published.Store(&StepSnapshot{Step: step, StepVersion: s.StepVersion})
}

// ActivitySeq returns the current activity counter.
func (s *Session) ActivitySeq() uint64 { return s.activitySeq.Load() }

// ResetFieldScope discards state tied to the field being edited.
func (s *Session) ResetFieldScope() {
	s.UpdateField = ""
	s.AvailableTitles = nil
	s.AvailableSatfung = nil
	s.UpdateAskFieldRetry = 0
}

// StepSnapshot captures where a session was when an inbound message arrived.
type StepSnapshot struct {
	Step        Step
	StepVersion uint64
}

// Snapshot returns the session's position as of the last SetStep. It may
// be called without holding the chat's processing lock. A nil session yields
// the zero snapshot.
func (s *Session) Snapshot() StepSnapshot {
	if s == nil {
		return StepSnapshot{}
	}
	if p := s.published.Load(); p != nil {
		return *p
	}
	return StepSnapshot{}
}

var globalCommands = map[string]bool{
	"batal":       true,
	"menu":        true,
	"userrequest": true,
}

// IsGlobalCommand reports whether normalized text is honored at any step.
func IsGlobalCommand(normalized string) bool { return globalCommands[normalized] }

// ShouldDropStaleInput reports whether input captured at snap should be
// discarded because the session has moved on since. Global commands are
// never dropped.
func ShouldDropStaleInput(snap StepSnapshot, s *Session, normalized string) bool {
	if s == nil || s.StepVersion == snap.StepVersion {
		return false
	}
	return !IsGlobalCommand(normalized)
}

func (s *Session) stopTimersLocked() {
	for _, t := range []*time.Timer{s.expiryTimer, s.warningTimer, s.noReplyTimer} {
		if t != nil {
			t.Stop()
		}
	}
	s.expiryTimer, s.warningTimer, s.noReplyTimer = nil, nil, nil
}

// HasTimers reports whether any inactivity timer is armed.
func (s *Session) HasTimers() bool {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	return s.expiryTimer != nil || s.warningTimer != nil || s.noReplyTimer != nil
}
