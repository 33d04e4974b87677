package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/castline/screencast/pkg/logger"
)

// Factory creates a new idle session.
type Factory func() *Session

// Host is the background actor owning the current session.
// A start command creates a new session when there is none or the
// current one is over, all other commands go to the current session.
type Host struct {
	newSession Factory
	log        *logger.Logger

	mail     chan lookup
	quit     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once

	current *Session // owned by the loop
}

type lookup struct {
	create bool
	reply  chan *Session
}

func NewHost(factory Factory, log *logger.Logger) *Host {
	return &Host{
		newSession: factory,
		log:        log.Extend(log.With().Str("c", "host")),
		mail:       make(chan lookup),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (h *Host) Run() {
	if h.started.CompareAndSwap(false, true) {
		go h.loop()
	}
}

func (h *Host) loop() {
	defer close(h.done)
	for {
		select {
		case rq := <-h.mail:
			if rq.create && (h.current == nil || h.current.State().IsTerminal()) {
				h.current = h.newSession()
				h.log.Info().Str("sid", h.current.Id()).Msg("new session")
			}
			rq.reply <- h.current
		case <-h.quit:
			return
		}
	}
}

func (h *Host) session(ctx context.Context, create bool) (*Session, error) {
	rq := lookup{create: create, reply: make(chan *Session, 1)}
	select {
	case h.mail <- rq:
	case <-h.done:
		return nil, ErrHostClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return <-rq.reply, nil
}

// Submit routes the command to the current session.
func (h *Host) Submit(ctx context.Context, cmd Command) error {
	s, err := h.session(ctx, cmd.Kind == CmdStart)
	if err != nil {
		return err
	}
	if s == nil {
		if cmd.Kind == CmdStop {
			return nil
		}
		return ErrNotReady
	}
	return s.Submit(ctx, cmd)
}

// State returns the state of the current session,
// Idle when there were no sessions yet.
func (h *Host) State(ctx context.Context) (State, error) {
	s, err := h.session(ctx, false)
	if err != nil || s == nil {
		return Idle, err
	}
	return s.State(), nil
}

// Shutdown stops the current session and waits for its end.
func (h *Host) Shutdown(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.quit) })
	if !h.started.Load() {
		return nil
	}
	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if h.current == nil {
		return nil
	}
	if err := h.current.Stop(ctx); err != nil {
		return err
	}
	select {
	case <-h.current.Done():
		h.log.Info().Msg("session closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) String() string { return "session host" }
