package lifecycle

import "fmt"

// State is a phase of the registration lifecycle.
type State int32

const (
	Unregistered State = iota
	Registered
	Serving
	Draining
	Terminated
	// Failed is terminal: startup did not reach Serving.
	Failed
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registered:
		return "registered"
	case Serving:
		return "serving"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Phase names the startup step that produced a StartupError.
type Phase string

const (
	PhaseRegister Phase = "register"
	PhaseDiscover Phase = "discover"
	PhaseListen   Phase = "listen"
	PhaseStart    Phase = "start"
)

// StartupError is fatal: the process exits after rolling back what was registered.
type StartupError struct {
	Phase Phase
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup failed during %s: %v", e.Phase, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }
