package loader

import "github.com/reelroll/reelroll/internal/video"

// Phase is where a load sequence currently stands.
type Phase string

const (
	PhaseIdle     Phase = "Idle"
	PhaseLoading  Phase = "Loading"
	PhaseRetrying Phase = "Retrying"
	PhaseSuccess  Phase = "Success"
	PhaseFailed   Phase = "Failed"
)

// IsTerminal reports whether the phase ends a load sequence.
func (p Phase) IsTerminal() bool {
	return p == PhaseSuccess || p == PhaseFailed
}

// State is a snapshot of a load sequence. Which fields are set depends on
// Phase: Retries and Of for Retrying, Video for Success, Err for Failed
// (and the triggering error for Retrying).
type State struct {
	Phase   Phase
	Retries int
	Of      int
	Video   video.Descriptor
	Err     error
}

// Attempt is the number of the attempt a Retrying state is waiting to make.
func (s State) Attempt() int {
	return s.Retries + 1
}

func Loading() State {
	return State{Phase: PhaseLoading}
}

func Retrying(retries, of int, err error) State {
	return State{Phase: PhaseRetrying, Retries: retries, Of: of, Err: err}
}

func Succeeded(v video.Descriptor) State {
	return State{Phase: PhaseSuccess, Video: v}
}

func Failed(err error) State {
	return State{Phase: PhaseFailed, Err: err}
}
