package engine

import (
	"fmt"

	"github.com/castline/screencast/pkg/capture"
	"github.com/castline/screencast/pkg/logger"
	"github.com/hashicorp/go-multierror"
)

// Step is one step of the resource acquisition.
type Step int

const (
	StepInit Step = iota
	StepEncodeContext
	StepPeerConnection
	StepVideoSource
	StepCapture
	StepTrack
)

func (s Step) String() string {
	switch s {
	case StepInit:
		return "init"
	case StepEncodeContext:
		return "encode context"
	case StepPeerConnection:
		return "peer connection"
	case StepVideoSource:
		return "video source"
	case StepCapture:
		return "capture"
	case StepTrack:
		return "track"
	default:
		return "unknown"
	}
}

// AcquireError tells which acquisition step has failed.
type AcquireError struct {
	Step Step
	Err  error
}

func (e *AcquireError) Error() string { return fmt.Sprintf("acquire %v: %v", e.Step, e.Err) }
func (e *AcquireError) Unwrap() error { return e.Err }

// Handles are the engine resources of one session.
// A handle is nil when it was not acquired or is already released.
type Handles struct {
	Preset    capture.Preset
	Encode    EncodeContext
	Peer      PeerConnection
	Source    VideoSource
	Track     Track
	capturing bool
}

func (h *Handles) IsCapturing() bool { return h != nil && h.capturing }

// IsEmpty checks that nothing is held.
func (h *Handles) IsEmpty() bool {
	return h == nil || (h.Encode == nil && h.Peer == nil && h.Source == nil && h.Track == nil && !h.capturing)
}

// Manager acquires all the engine resources of a session
// or none of them, and releases them in the reverse order.
type Manager struct {
	engine Engine
	policy capture.Policy
	log    *logger.Logger
}

func NewManager(engine Engine, policy capture.Policy, log *logger.Logger) *Manager {
	return &Manager{engine: engine, policy: policy, log: log.Extend(log.With().Str("c", "lifecycle"))}
}

// Acquire builds the engine resources for a granted capture token.
// On failure everything acquired before the failed step is released
// and an *AcquireError is returned.
func (m *Manager) Acquire(t *capture.Token, obs Observer) (*Handles, error) {
	preset := m.policy.Select(t.Bounds())
	h := &Handles{Preset: preset}

	fail := func(step Step, err error) (*Handles, error) {
		m.log.Error().Err(err).Str("step", step.String()).Msg("acquire failed")
		if rerr := m.Release(h); rerr != nil {
			m.log.Warn().Err(rerr).Msg("rollback")
		}
		return nil, &AcquireError{Step: step, Err: err}
	}

	if err := guard(m.engine.Init); err != nil {
		return fail(StepInit, err)
	}

	var err error
	if err = guard(func() error {
		ec, err := m.engine.NewEncodeContext(preset)
		if err == nil {
			h.Encode = ec
		}
		return err
	}); err != nil {
		return fail(StepEncodeContext, err)
	}
	if err = guard(func() error {
		pc, err := m.engine.NewPeerConnection(obs)
		if err == nil {
			h.Peer = pc
		}
		return err
	}); err != nil {
		return fail(StepPeerConnection, err)
	}
	if err = guard(func() error {
		if err := t.Claim(); err != nil {
			return err
		}
		src, err := m.engine.NewVideoSource(t, h.Encode)
		if err == nil {
			h.Source = src
		}
		return err
	}); err != nil {
		return fail(StepVideoSource, err)
	}
	if err = guard(func() error { return h.Source.StartCapture(preset) }); err != nil {
		return fail(StepCapture, err)
	}
	h.capturing = true
	if err = guard(func() error {
		tr, err := m.engine.AttachTrack(h.Peer, h.Source)
		if err == nil {
			h.Track = tr
		}
		return err
	}); err != nil {
		return fail(StepTrack, err)
	}

	m.log.Info().Str("preset", preset.String()).Str("token", t.Id()).Msg("acquired")
	return h, nil
}

// Release frees the handles in the reverse order of acquisition:
// track, capture, video source, peer connection, encode context.
// Every step runs even if a previous one failed, the errors are
// collected. Released handles are nil-ed so a second call is a no-op.
func (m *Manager) Release(h *Handles) error {
	if h.IsEmpty() {
		return nil
	}
	var result *multierror.Error
	step := func(name string, fn func() error) {
		if err := guard(fn); err != nil {
			result = multierror.Append(result, fmt.Errorf("%v: %w", name, err))
		}
	}

	if h.Track != nil {
		step("detach track", h.Track.Detach)
		h.Track = nil
	}
	if h.capturing && h.Source != nil {
		step("stop capture", h.Source.StopCapture)
	}
	h.capturing = false
	if h.Source != nil {
		step("dispose source", h.Source.Dispose)
		h.Source = nil
	}
	if h.Peer != nil {
		step("close peer", h.Peer.Close)
		h.Peer = nil
	}
	if h.Encode != nil {
		step("close encode context", h.Encode.Close)
		h.Encode = nil
	}

	err := result.ErrorOrNil()
	if err != nil {
		m.log.Warn().Err(err).Msg("release")
	} else {
		m.log.Debug().Msg("released")
	}
	return err
}

// guard turns panics of the engine calls into errors.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
