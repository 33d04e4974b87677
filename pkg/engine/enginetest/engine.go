// Package enginetest provides a recording media engine for tests.
package enginetest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/castline/screencast/pkg/capture"
	"github.com/castline/screencast/pkg/engine"
)

const (
	OpInit        = "init"
	OpEncode      = "encode.new"
	OpEncodeClose = "encode.close"
	OpPeer        = "peer.new"
	OpPeerClose   = "peer.close"
	OpOffer       = "peer.offer"
	OpLocal       = "peer.local"
	OpRemote      = "peer.remote"
	OpCandidate   = "peer.candidate"
	OpSource      = "source.new"
	OpStart       = "capture.start"
	OpStop        = "capture.stop"
	OpDispose     = "source.dispose"
	OpTrack       = "track.attach"
	OpDetach      = "track.detach"
)

// FakeOffer is the SDP every fake peer offers.
const FakeOffer = "v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\nm=video 9 UDP/TLS/RTP/SAVPF 96\r\na=sendonly\r\n"

var ErrInjected = errors.New("injected failure")

// Engine records every call in order and fails or blocks on demand.
type Engine struct {
	mu     sync.Mutex
	calls  []string
	fail   map[string]error
	panics map[string]bool
	gates  map[string]chan struct{}
	peers  []*Peer
}

func New() *Engine {
	return &Engine{fail: map[string]error{}, panics: map[string]bool{}, gates: map[string]chan struct{}{}}
}

// FailOn makes the op return err, ErrInjected if err is nil.
func (e *Engine) FailOn(op string, err error) *Engine {
	if err == nil {
		err = ErrInjected
	}
	e.mu.Lock()
	e.fail[op] = err
	e.mu.Unlock()
	return e
}

// PanicOn makes the op panic.
func (e *Engine) PanicOn(op string) *Engine {
	e.mu.Lock()
	e.panics[op] = true
	e.mu.Unlock()
	return e
}

// BlockOn holds the op until the returned channel is closed.
func (e *Engine) BlockOn(op string) chan struct{} {
	gate := make(chan struct{})
	e.mu.Lock()
	e.gates[op] = gate
	e.mu.Unlock()
	return gate
}

// Calls returns the recorded ops.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Count returns how many times the op was called.
func (e *Engine) Count(op string) (n int) {
	for _, c := range e.Calls() {
		if c == op {
			n++
		}
	}
	return
}

// Released lists the release ops in the order of calls.
func (e *Engine) Released() (out []string) {
	for _, c := range e.Calls() {
		switch c {
		case OpDetach, OpStop, OpDispose, OpPeerClose, OpEncodeClose:
			out = append(out, c)
		}
	}
	return
}

// Peer returns the last created peer.
func (e *Engine) Peer() *Peer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.peers) == 0 {
		return nil
	}
	return e.peers[len(e.peers)-1]
}

func (e *Engine) record(op string) error {
	e.mu.Lock()
	e.calls = append(e.calls, op)
	gate := e.gates[op]
	err := e.fail[op]
	panics := e.panics[op]
	e.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if panics {
		panic(fmt.Sprintf("%v exploded", op))
	}
	return err
}

func (e *Engine) Init() error { return e.record(OpInit) }

func (e *Engine) NewEncodeContext(_ capture.Preset) (engine.EncodeContext, error) {
	if err := e.record(OpEncode); err != nil {
		return nil, err
	}
	return &encodeContext{e: e}, nil
}

func (e *Engine) NewPeerConnection(obs engine.Observer) (engine.PeerConnection, error) {
	if err := e.record(OpPeer); err != nil {
		return nil, err
	}
	p := &Peer{e: e, obs: obs}
	e.mu.Lock()
	e.peers = append(e.peers, p)
	e.mu.Unlock()
	return p, nil
}

func (e *Engine) NewVideoSource(_ *capture.Token, _ engine.EncodeContext) (engine.VideoSource, error) {
	if err := e.record(OpSource); err != nil {
		return nil, err
	}
	return NewSource(e), nil
}

func (e *Engine) AttachTrack(_ engine.PeerConnection, src engine.VideoSource) (engine.Track, error) {
	if err := e.record(OpTrack); err != nil {
		return nil, err
	}
	src.SetSink(func([]byte, time.Duration) error { return nil })
	return &track{e: e, src: src}, nil
}

type encodeContext struct{ e *Engine }

func (c *encodeContext) Close() error { return c.e.record(OpEncodeClose) }

type track struct {
	e   *Engine
	src engine.VideoSource
}

func (t *track) Detach() error {
	t.src.SetSink(nil)
	return t.e.record(OpDetach)
}

// Peer is a fake peer connection.
type Peer struct {
	e   *Engine
	obs engine.Observer

	mu         sync.Mutex
	local      string
	remote     string
	candidates []engine.Candidate
}

func (p *Peer) CreateOffer() (string, error) {
	if err := p.e.record(OpOffer); err != nil {
		return "", err
	}
	return FakeOffer, nil
}

func (p *Peer) SetLocalDescription(sdp string) error {
	if err := p.e.record(OpLocal); err != nil {
		return err
	}
	p.mu.Lock()
	p.local = sdp
	p.mu.Unlock()
	return nil
}

func (p *Peer) SetRemoteDescription(sdp string) error {
	if err := p.e.record(OpRemote); err != nil {
		return err
	}
	p.mu.Lock()
	p.remote = sdp
	p.mu.Unlock()
	return nil
}

func (p *Peer) AddICECandidate(c engine.Candidate) error {
	if err := p.e.record(OpCandidate); err != nil {
		return err
	}
	p.mu.Lock()
	p.candidates = append(p.candidates, c)
	p.mu.Unlock()
	return nil
}

func (p *Peer) Close() error { return p.e.record(OpPeerClose) }

// Observer gives access to the callbacks the peer was created with.
func (p *Peer) Observer() engine.Observer { return p.obs }

func (p *Peer) Local() string  { p.mu.Lock(); defer p.mu.Unlock(); return p.local }
func (p *Peer) Remote() string { p.mu.Lock(); defer p.mu.Unlock(); return p.remote }

// Candidates returns the applied remote candidates in order.
func (p *Peer) Candidates() []engine.Candidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.Candidate(nil), p.candidates...)
}

// Source is a fake video source, it produces frames only on Emit.
type Source struct {
	e *Engine

	mu      sync.Mutex
	sink    engine.Sink
	preset  capture.Preset
	running bool
}

// NewSource creates a source recording its calls into e, e may be nil.
func NewSource(e *Engine) *Source { return &Source{e: e} }

func (s *Source) record(op string) error {
	if s.e == nil {
		return nil
	}
	return s.e.record(op)
}

func (s *Source) StartCapture(p capture.Preset) error {
	if err := s.record(OpStart); err != nil {
		return err
	}
	s.mu.Lock()
	s.preset, s.running = p, true
	s.mu.Unlock()
	return nil
}

func (s *Source) StopCapture() error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return s.record(OpStop)
}

func (s *Source) SetSink(sink engine.Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *Source) Dispose() error { return s.record(OpDispose) }

func (s *Source) Running() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.running }

// Emit pushes one frame into the sink.
func (s *Source) Emit(frame []byte) error {
	s.mu.Lock()
	sink, p := s.sink, s.preset
	s.mu.Unlock()
	if sink == nil {
		return nil
	}
	d := time.Second / 30
	if p.Fps > 0 {
		d = time.Second / time.Duration(p.Fps)
	}
	return sink(frame, d)
}
