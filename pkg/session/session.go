// Package session implements the capture session state machine.
//
// A session goes from a capture permission request through the engine
// resources acquisition and the offer/answer exchange to a connected
// state, and ends either stopped or failed. Every command and every
// engine callback of a session is applied on its own queue goroutine,
// engine calls that may block run aside and post their results back.
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/castline/screencast/pkg/api"
	"github.com/castline/screencast/pkg/capture"
	"github.com/castline/screencast/pkg/engine"
	"github.com/castline/screencast/pkg/logger"
	"github.com/gofrs/uuid"
)

// Lifecycle acquires and releases the engine resources of a session.
type Lifecycle interface {
	Acquire(t *capture.Token, obs engine.Observer) (*engine.Handles, error)
	Release(h *engine.Handles) error
}

// Emitter delivers session events to the command issuers.
// Emit must not block.
type Emitter interface {
	Emit(t api.PT, payload any)
}

type EmitterFunc func(t api.PT, payload any)

func (f EmitterFunc) Emit(t api.PT, payload any) { f(t, payload) }

type CommandKind int

const (
	CmdStart CommandKind = iota
	CmdSetRemoteDescription
	CmdAddIceCandidate
	CmdStop
)

func (k CommandKind) String() string {
	switch k {
	case CmdStart:
		return "start"
	case CmdSetRemoteDescription:
		return "setRemoteDescription"
	case CmdAddIceCandidate:
		return "addIceCandidate"
	case CmdStop:
		return "stop"
	default:
		return "unknown"
	}
}

type Command struct {
	Kind      CommandKind
	Sdp       string
	Candidate engine.Candidate
}

type Options struct {
	Acquirer  capture.Acquirer
	Lifecycle Lifecycle
	Events    Emitter
	Log       *logger.Logger
}

type answerState int

const (
	answerNone answerState = iota
	answerPending
	answerApplied
)

type Session struct {
	id  string
	acq capture.Acquirer
	lc  Lifecycle
	out Emitter
	log *logger.Logger

	q      *Queue
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// owned by the queue goroutine
	state    State
	token    *capture.Token
	unwatch  chan struct{}
	handles  *engine.Handles
	answer   answerState
	remote   []engine.Candidate
	local    []engine.Candidate
	inflight int

	current atomic.Int32
	failure atomic.Pointer[Failure]
}

// New creates a session in the Idle state and starts its queue.
func New(o Options) *Session {
	id := uuid.Must(uuid.NewV4()).String()
	log := o.Log
	if log == nil {
		log = logger.Default()
	}
	out := o.Events
	if out == nil {
		out = EmitterFunc(func(api.PT, any) {})
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     id,
		acq:    o.Acquirer,
		lc:     o.Lifecycle,
		out:    out,
		log:    log.Extend(log.With().Str("c", "session").Str("sid", id[:8])),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.q = NewQueue(s.onPanic, s.settle)
	active.Inc()
	go func() {
		s.q.Run()
		close(s.done)
	}()
	return s
}

func (s *Session) Id() string { return s.id }

// State returns the last state set on the queue.
func (s *Session) State() State { return State(s.current.Load()) }

// Failure returns the reason of a failed session or nil.
func (s *Session) Failure() *Failure { return s.failure.Load() }

// Done is closed when the session is over and its queue is stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Start(ctx context.Context) error { return s.Submit(ctx, Command{Kind: CmdStart}) }

func (s *Session) SetRemoteDescription(ctx context.Context, sdp string) error {
	return s.Submit(ctx, Command{Kind: CmdSetRemoteDescription, Sdp: sdp})
}

func (s *Session) AddIceCandidate(ctx context.Context, c engine.Candidate) error {
	return s.Submit(ctx, Command{Kind: CmdAddIceCandidate, Candidate: c})
}

func (s *Session) Stop(ctx context.Context) error { return s.Submit(ctx, Command{Kind: CmdStop}) }

// Submit puts the command into the session queue and waits for its result.
// The result tells only whether the command was accepted, outcomes of
// the engine calls it starts are reported with events.
func (s *Session) Submit(ctx context.Context, cmd Command) error {
	reply := make(chan error, 1)
	posted := s.q.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				reply <- fmt.Errorf("%v: %w", cmd.Kind, ErrTerminated)
				panic(r)
			}
		}()
		reply <- s.handle(cmd)
	})
	if !posted {
		if cmd.Kind == CmdStop {
			return nil
		}
		return ErrTerminated
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) handle(cmd Command) error {
	s.log.Debug().Str("cmd", cmd.Kind.String()).Str("state", s.state.String()).Msg("command")
	switch cmd.Kind {
	case CmdStart:
		return s.start()
	case CmdSetRemoteDescription:
		return s.setRemoteDescription(cmd.Sdp)
	case CmdAddIceCandidate:
		return s.addIceCandidate(cmd.Candidate)
	case CmdStop:
		s.stop()
		return nil
	}
	return ErrUnknownCommand
}

func (s *Session) start() error {
	if s.state != Idle {
		if s.state.IsTerminal() || s.state == Stopping {
			return ErrTerminated
		}
		return ErrAlreadyStarted
	}
	s.transition(PermissionRequested)
	async(s, func() (*capture.Token, error) { return s.acq.RequestCapture(s.ctx) }, s.onPermission)
	return nil
}

func (s *Session) onPermission(tok *capture.Token, err error) {
	if s.state != PermissionRequested {
		if tok != nil {
			tok.Release()
		}
		return
	}
	if err != nil {
		if errors.Is(err, capture.ErrPermissionDenied) {
			s.terminate(PermissionDenied, &Failure{Reason: ReasonPermissionDenied, Err: err})
			return
		}
		s.fail(ReasonEngineError, err)
		return
	}

	s.token = tok
	s.watch(tok)
	s.transition(CaptureAcquiring)
	obs := engine.ObserverFuncs{Candidate: s.postCandidate, Failure: s.postFailure}
	async(s, func() (*engine.Handles, error) { return s.lc.Acquire(tok, obs) }, s.onAcquired)
}

func (s *Session) onAcquired(h *engine.Handles, err error) {
	if s.state != CaptureAcquiring {
		// stopped or failed in the meantime
		s.release(h)
		return
	}
	if err != nil {
		s.releaseToken()
		s.terminate(AcquireFailed, &Failure{Reason: ReasonAcquireFailed, Err: err})
		return
	}
	s.handles = h
	s.transition(OfferPending)
	async(s, h.Peer.CreateOffer, s.onOfferCreated)
}

func (s *Session) onOfferCreated(sdp string, err error) {
	if s.state != OfferPending {
		return
	}
	if err != nil {
		s.fail(ReasonNegotiationFailed, fmt.Errorf("create offer: %w", err))
		return
	}
	peer := s.handles.Peer
	async(s, func() (string, error) { return sdp, peer.SetLocalDescription(sdp) }, s.onLocalDescription)
}

func (s *Session) onLocalDescription(sdp string, err error) {
	if s.state != OfferPending {
		return
	}
	if err != nil {
		s.fail(ReasonNegotiationFailed, fmt.Errorf("set local description: %w", err))
		return
	}
	s.transition(Negotiating)
	s.out.Emit(api.OfferGenerated, api.SdpMessage{Kind: api.SdpOffer, Body: sdp})
	for _, c := range s.local {
		s.emitCandidate(c)
	}
	s.local = nil
}

func (s *Session) setRemoteDescription(sdp string) error {
	if err := s.acceptsSignaling(); err != nil {
		return err
	}
	if s.answer != answerNone {
		return ErrAnswerApplied
	}
	s.answer = answerPending
	peer := s.handles.Peer
	async(s, func() (struct{}, error) { return struct{}{}, peer.SetRemoteDescription(sdp) }, s.onRemoteDescription)
	return nil
}

func (s *Session) onRemoteDescription(_ struct{}, err error) {
	if s.state != Negotiating {
		return
	}
	if err != nil {
		s.fail(ReasonNegotiationFailed, fmt.Errorf("set remote description: %w", err))
		return
	}
	s.answer = answerApplied
	s.transition(Connected)

	pending := s.remote
	s.remote = nil
	for _, c := range pending {
		if err := s.handles.Peer.AddICECandidate(c); err != nil {
			s.log.Warn().Err(err).Str("candidate", c.Candidate).Msg("buffered candidate rejected")
		}
	}
}

func (s *Session) addIceCandidate(c engine.Candidate) error {
	if err := s.acceptsSignaling(); err != nil {
		return err
	}
	if s.answer != answerApplied {
		s.remote = append(s.remote, c)
		return nil
	}
	if err := s.handles.Peer.AddICECandidate(c); err != nil {
		return fmt.Errorf("%w: %v", ErrCandidateRejected, err)
	}
	return nil
}

func (s *Session) acceptsSignaling() error {
	switch s.state {
	case Negotiating, Connected:
		return nil
	case Idle, PermissionRequested, CaptureAcquiring, OfferPending:
		return ErrNotReady
	}
	return ErrTerminated
}

func (s *Session) stop() {
	if s.state.IsTerminal() || s.state == Stopping {
		return
	}
	s.transition(Stopping)
	s.cancel()
	s.releaseAll()
	// engine calls still in flight release their results on return
	s.transition(Stopped)
}

// fail releases everything and ends the session with the reason.
func (s *Session) fail(reason Reason, err error) {
	if s.state.IsTerminal() || s.state == Stopping {
		s.log.Debug().Err(err).Str("reason", string(reason)).Msg("late failure skipped")
		return
	}
	s.log.Error().Err(err).Str("reason", string(reason)).Str("state", s.state.String()).Msg("session failure")
	s.releaseAll()
	s.terminate(Failed, &Failure{Reason: reason, Err: err})
}

func (s *Session) terminate(state State, f *Failure) {
	s.cancel()
	s.failure.Store(f)
	failures.WithLabelValues(string(f.Reason)).Inc()
	s.transition(state)
	ev := api.FailedEvent{Reason: string(f.Reason)}
	if f.Err != nil {
		ev.Error = f.Err.Error()
	}
	s.out.Emit(api.SessionFailed, ev)
}

func (s *Session) transition(to State) {
	from := s.state
	s.state = to
	s.current.Store(int32(to))
	transitions.WithLabelValues(to.String()).Inc()
	if to.IsTerminal() {
		active.Dec()
	}
	s.log.Info().Str("from", from.String()).Str("to", to.String()).Msg("state")
	s.out.Emit(api.StateChanged, api.StateChangedEvent{State: to.String()})
}

// settle runs after every queue item, the queue of a terminal
// session is closed once no engine call is in flight.
func (s *Session) settle() {
	if s.state.IsTerminal() && s.inflight == 0 {
		s.q.Close()
	}
}

func (s *Session) onPanic(v any) {
	s.log.Error().Str("stack", string(debug.Stack())).Msgf("session panic: %v", v)
	s.fail(ReasonEngineError, fmt.Errorf("panic: %v", v))
}

func (s *Session) releaseAll() {
	s.release(s.handles)
	s.handles = nil
	s.releaseToken()
	s.remote, s.local = nil, nil
}

func (s *Session) release(h *engine.Handles) {
	if h == nil {
		return
	}
	if err := s.lc.Release(h); err != nil {
		s.log.Warn().Err(err).Msg("release")
	}
}

func (s *Session) releaseToken() {
	if s.token == nil {
		return
	}
	close(s.unwatch)
	s.token.Release()
	s.token = nil
}

// watch turns the token revocation into a queue item.
func (s *Session) watch(tok *capture.Token) {
	unwatch := make(chan struct{})
	s.unwatch = unwatch
	go func() {
		select {
		case <-tok.Revoked():
			s.q.Post(s.onRevoked)
		case <-unwatch:
		}
	}()
}

func (s *Session) onRevoked() {
	if s.token == nil {
		return
	}
	s.fail(ReasonExternalRevocation, ErrRevoked)
}

func (s *Session) postCandidate(c *engine.Candidate) { s.q.Post(func() { s.onLocalCandidate(c) }) }

func (s *Session) postFailure(err error) {
	s.q.Post(func() { s.fail(ReasonEngineError, err) })
}

func (s *Session) onLocalCandidate(c *engine.Candidate) {
	if c == nil {
		s.log.Debug().Msg("ICE gathering complete")
		return
	}
	switch s.state {
	case CaptureAcquiring, OfferPending:
		s.local = append(s.local, *c)
	case Negotiating, Connected:
		s.emitCandidate(*c)
	default:
		s.log.Debug().Str("state", s.state.String()).Msg("local candidate dropped")
	}
}

func (s *Session) emitCandidate(c engine.Candidate) {
	s.out.Emit(api.CandidateGenerated, api.IceCandidate{
		Candidate:     c.Candidate,
		SdpMid:        c.SdpMid,
		SdpMLineIndex: c.SdpMLineIndex,
	})
}

// async runs a blocking engine call aside and applies
// its result with then on the session queue.
func async[T any](s *Session, fn func() (T, error), then func(T, error)) {
	s.inflight++
	go func() {
		var v T
		err := guard(func() (err error) { v, err = fn(); return })
		if !s.q.Post(func() { s.inflight--; then(v, err) }) {
			s.log.Error().Err(err).Msg("engine result after the queue close")
		}
	}()
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
