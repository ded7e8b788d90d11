// ABOUTME: Playback status values published by the session controller
// ABOUTME: Defines the state machine states and display helpers
package probe

import "fmt"

// State is the lifecycle state of the current playback session.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StateError
)

// String returns the lowercase display name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the UI-observable playback status. Message is set only when
// State is StateError and carries the failure description.
type Status struct {
	State   State
	Message string
}

// String renders the status for display, including any error message.
func (s Status) String() string {
	if s.State == StateError && s.Message != "" {
		return fmt.Sprintf("error: %s", s.Message)
	}
	return s.State.String()
}
