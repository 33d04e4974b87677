// Package engine describes the media engine a capture session drives
// and manages the lifetime of the engine resources of one session.
package engine

import (
	"time"

	"github.com/castline/screencast/pkg/capture"
)

// Engine creates the media resources of a session.
// Init is called before every acquisition, implementations
// must initialize their process-wide state only once.
type Engine interface {
	Init() error
	NewEncodeContext(p capture.Preset) (EncodeContext, error)
	NewPeerConnection(obs Observer) (PeerConnection, error)
	NewVideoSource(t *capture.Token, ec EncodeContext) (VideoSource, error)
	AttachTrack(pc PeerConnection, src VideoSource) (Track, error)
}

// EncodeContext is a rendering/encoding context shared by a video source.
type EncodeContext interface {
	Close() error
}

// PeerConnection is the publishing side of a WebRTC connection.
// The description methods may block, callers should not run them
// on a goroutine that must stay responsive.
type PeerConnection interface {
	CreateOffer() (string, error)
	SetLocalDescription(sdp string) error
	SetRemoteDescription(sdp string) error
	AddICECandidate(c Candidate) error
	Close() error
}

// Sink receives encoded video frames.
type Sink func(frame []byte, duration time.Duration) error

// VideoSource produces encoded frames of a captured display.
type VideoSource interface {
	StartCapture(p capture.Preset) error
	StopCapture() error
	SetSink(s Sink)
	Dispose() error
}

// Track is a send-only media track attached to a peer connection.
type Track interface {
	Detach() error
}

// Observer receives peer connection callbacks.
// The callbacks are invoked from engine goroutines.
type Observer interface {
	// OnICECandidate reports a local ICE candidate,
	// nil means the gathering is complete.
	OnICECandidate(c *Candidate)
	// OnFailure reports an unrecoverable engine error.
	OnFailure(err error)
}

type Candidate struct {
	Candidate     string
	SdpMid        string
	SdpMLineIndex uint16
}

// ObserverFuncs adapts a pair of functions to Observer.
type ObserverFuncs struct {
	Candidate func(c *Candidate)
	Failure   func(err error)
}

func (o ObserverFuncs) OnICECandidate(c *Candidate) {
	if o.Candidate != nil {
		o.Candidate(c)
	}
}

func (o ObserverFuncs) OnFailure(err error) {
	if o.Failure != nil {
		o.Failure(err)
	}
}
