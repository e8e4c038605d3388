package loader

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	LabelIdle    = "Watch Random Video"
	LabelLoading = "Loading..."
)

// Control is the trigger's presentation: whether it accepts a click and
// what it reads.
type Control struct {
	Enabled bool
	Label   string
}

// View receives the output of a Session. Calls are serialized and never
// come from a superseded sequence. Implementations must not call back into
// the Session.
type View interface {
	Render(State)
	SetControl(Control)
}

// Session is the trigger handler for one widget. Each Trigger starts a new
// sequence and cancels the one before it.
type Session struct {
	loader *Loader
	view   View

	mu      sync.Mutex
	current uuid.UUID
	cancel  context.CancelFunc
	control Control
	wg      sync.WaitGroup
}

func NewSession(loader *Loader, view View) *Session {
	return &Session{
		loader:  loader,
		view:    view,
		control: Control{Enabled: true, Label: LabelIdle},
	}
}

// Control returns the trigger's current presentation.
func (s *Session) Control() Control {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.control
}

// Trigger starts a load sequence in the background and returns a channel
// that yields its Result. A sequence superseded by a later Trigger yields
// ErrCanceled.
func (s *Session) Trigger(ctx context.Context) <-chan Result {
	runCtx, cancel := context.WithCancel(ctx)
	id := uuid.New()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.current = id
	s.cancel = cancel
	s.setControlLocked(Control{Enabled: false, Label: LabelLoading})
	s.mu.Unlock()

	slog.Debug("load sequence started", "sequence", id)

	done := make(chan Result, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		result := s.loader.Run(runCtx, func(state State) {
			s.publish(id, state)
		})
		if errors.Is(result.Err, ErrCanceled) {
			s.release(id)
		}
		done <- result
	}()
	return done
}

// Wait blocks until every sequence started by Trigger has returned.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels the running sequence, if any, and waits for it to return.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.current = uuid.Nil
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Session) publish(id uuid.UUID, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.current {
		return
	}

	s.view.Render(state)
	if state.Phase.IsTerminal() {
		s.setControlLocked(Control{Enabled: true, Label: LabelIdle})
	}
}

// release re-enables the control after a canceled sequence that no later
// Trigger or Close has replaced.
func (s *Session) release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.current {
		slog.Debug("load sequence superseded", "sequence", id)
		return
	}
	slog.Debug("load sequence canceled", "sequence", id)
	s.setControlLocked(Control{Enabled: true, Label: LabelIdle})
}

func (s *Session) setControlLocked(c Control) {
	if s.control == c {
		return
	}
	s.control = c
	s.view.SetControl(c)
}
