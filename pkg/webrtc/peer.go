package webrtc

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/castline/screencast/pkg/engine"
	"github.com/castline/screencast/pkg/logger"
	"github.com/pion/sdp/v3"
	pion "github.com/pion/webrtc/v3"
)

var (
	ErrConnectionFailed = errors.New("peer connection failed")
	ErrBadAnswer        = errors.New("bad answer")
)

// Peer is the publishing side of a pion peer connection.
type Peer struct {
	conn   *pion.PeerConnection
	log    *logger.Logger
	closed atomic.Bool
}

func newPeer(conn *pion.PeerConnection, obs engine.Observer, log *logger.Logger) *Peer {
	p := &Peer{conn: conn, log: log}

	conn.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			obs.OnICECandidate(nil)
			return
		}
		init := c.ToJSON()
		candidate := engine.Candidate{Candidate: init.Candidate}
		if init.SDPMid != nil {
			candidate.SdpMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			candidate.SdpMLineIndex = *init.SDPMLineIndex
		}
		log.Debug().Str("candidate", candidate.Candidate).Msg("local ICE candidate")
		obs.OnICECandidate(&candidate)
	})
	conn.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		log.Debug().Msgf("ICE connection state: %v", state)
	})
	conn.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		log.Info().Msgf("Peer connection state: %v", state)
		if state == pion.PeerConnectionStateFailed && !p.closed.Load() {
			obs.OnFailure(ErrConnectionFailed)
		}
	})
	return p
}

func (p *Peer) CreateOffer() (string, error) {
	offer, err := p.conn.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (p *Peer) SetLocalDescription(offer string) error {
	return p.conn.SetLocalDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: offer})
}

func (p *Peer) SetRemoteDescription(answer string) error {
	if err := CheckAnswer(answer); err != nil {
		return err
	}
	return p.conn.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: answer})
}

func (p *Peer) AddICECandidate(c engine.Candidate) error {
	mid, index := c.SdpMid, c.SdpMLineIndex
	return p.conn.AddICECandidate(pion.ICECandidateInit{Candidate: c.Candidate, SDPMid: &mid, SDPMLineIndex: &index})
}

func (p *Peer) Close() error {
	p.closed.Store(true)
	return p.conn.Close()
}

// CheckAnswer parses the SDP and checks that it can
// answer the video offer.
func CheckAnswer(answer string) error {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(answer)); err != nil {
		return fmt.Errorf("%w: %v", ErrBadAnswer, err)
	}
	for _, m := range desc.MediaDescriptions {
		if m.MediaName.Media == "video" {
			return nil
		}
	}
	return fmt.Errorf("%w: no video section", ErrBadAnswer)
}
