package webrtc

import (
	"time"

	"github.com/castline/screencast/pkg/engine"
	pion "github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// Track is the send-only video track of a peer connection fed by a video source.
type Track struct {
	track  *pion.TrackLocalStaticSample
	sender *pion.RTPSender
	conn   *pion.PeerConnection
	src    engine.VideoSource
}

func newTrack(p *Peer, src engine.VideoSource) (*Track, error) {
	track, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeH264}, "video", "screen")
	if err != nil {
		return nil, err
	}
	tr, err := p.conn.AddTransceiverFromTrack(track, pion.RTPTransceiverInit{Direction: pion.RTPTransceiverDirectionSendonly})
	if err != nil {
		return nil, err
	}
	t := &Track{track: track, sender: tr.Sender(), conn: p.conn, src: src}

	// RTCP packets should be read for the interceptors to work
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := t.sender.Read(buf); err != nil {
				return
			}
		}
	}()

	src.SetSink(t.write)
	return t, nil
}

func (t *Track) write(frame []byte, duration time.Duration) error {
	return t.track.WriteSample(media.Sample{Data: frame, Duration: duration})
}

func (t *Track) Detach() error {
	t.src.SetSink(nil)
	return t.conn.RemoveTrack(t.sender)
}
