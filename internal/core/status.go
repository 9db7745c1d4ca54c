package core

import "time"

// Phase is the coordinator's lifecycle phase. Exactly one phase holds at a
// time; account flags (Premium, NeedsReauth) ride alongside it in Status.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePriming
	PhaseActivating
	PhasePlaying
	PhasePaused
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePriming:
		return "priming"
	case PhaseActivating:
		return "activating"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Active reports whether a clip is currently in flight or audible.
func (p Phase) Active() bool {
	return p == PhaseActivating || p == PhasePlaying
}

// FailureReason classifies why a play attempt stopped making progress.
type FailureReason string

const (
	ReasonTransferFailed FailureReason = "transfer_failed"
	ReasonConfirmTimeout FailureReason = "confirm_timeout"
	ReasonPlayRejected   FailureReason = "play_rejected"
	ReasonPrimeFailed    FailureReason = "prime_failed"
)

// Failure records the typed outcome of a failed step, with the transport
// status when one was observed.
type Failure struct {
	Reason FailureReason `json:"reason"`
	Status int           `json:"status,omitempty"`
}

// Status is a point-in-time snapshot of the coordinator. Fields are derived
// under the coordinator's lock; consumers never see half-applied updates.
type Status struct {
	Phase        Phase         `json:"phase"`
	Clip         *Clip         `json:"clip,omitempty"`
	Position     time.Duration `json:"position"`
	Ready        bool          `json:"ready"`
	Initializing bool          `json:"initializing"`
	Loading      bool          `json:"loading"`
	Playing      bool          `json:"playing"`
	Premium      bool          `json:"premium"`
	NeedsReauth  bool          `json:"needs_reauth"`
	DeviceID     string        `json:"device_id,omitempty"`
	LastFailure  *Failure      `json:"last_failure,omitempty"`
}

// HasClip returns true if a clip is currently owned.
func (s Status) HasClip() bool {
	return s.Clip != nil
}

// ClipPercent returns progress through the clip window as a percentage
// (0-100), based on the derived position.
func (s Status) ClipPercent() float64 {
	if s.Clip == nil || s.Clip.Window() == 0 {
		return 0
	}
	return float64(s.Position-s.Clip.Start) / float64(s.Clip.Window()) * 100
}
