// Package webrtc implements the media engine with pion WebRTC.
package webrtc

import (
	"errors"
	"sync"

	"github.com/castline/screencast/pkg/capture"
	"github.com/castline/screencast/pkg/config"
	"github.com/castline/screencast/pkg/engine"
	"github.com/castline/screencast/pkg/logger"
	pion "github.com/pion/webrtc/v3"
)

var (
	ErrNotInitialized = errors.New("engine is not initialized")
	ErrForeignPeer    = errors.New("peer connection of another engine")
)

type (
	EncoderFactory func(p capture.Preset) (engine.EncodeContext, error)
	SourceFactory  func(t *capture.Token, ec engine.EncodeContext) (engine.VideoSource, error)
)

type Engine struct {
	conf       config.Webrtc
	audio      bool
	newEncoder EncoderFactory
	newSource  SourceFactory
	log        *logger.Logger

	once sync.Once
	api  *ApiFactory
	err  error
}

func NewEngine(conf config.Webrtc, audio bool, enc EncoderFactory, src SourceFactory, log *logger.Logger) *Engine {
	return &Engine{
		conf:       conf,
		audio:      audio,
		newEncoder: enc,
		newSource:  src,
		log:        log.Extend(log.With().Str("c", "webrtc")),
	}
}

// Init builds the pion API once per process.
// An initialization error is returned on every subsequent call.
func (e *Engine) Init() error {
	e.once.Do(func() {
		e.api, e.err = NewApiFactory(e.conf, e.audio, e.log, nil)
		if e.err == nil {
			e.log.Info().Bool("audio", e.audio).Int("ice", len(e.conf.IceServers)).Msg("WebRTC engine is ready")
		}
	})
	return e.err
}

func (e *Engine) NewEncodeContext(p capture.Preset) (engine.EncodeContext, error) {
	return e.newEncoder(p)
}

func (e *Engine) NewPeerConnection(obs engine.Observer) (engine.PeerConnection, error) {
	if e.api == nil {
		return nil, ErrNotInitialized
	}
	conn, err := e.api.NewPeer()
	if err != nil {
		return nil, err
	}
	if e.audio {
		_, err = conn.AddTransceiverFromKind(pion.RTPCodecTypeAudio, pion.RTPTransceiverInit{Direction: pion.RTPTransceiverDirectionSendonly})
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return newPeer(conn, obs, e.log), nil
}

func (e *Engine) NewVideoSource(t *capture.Token, ec engine.EncodeContext) (engine.VideoSource, error) {
	return e.newSource(t, ec)
}

func (e *Engine) AttachTrack(pc engine.PeerConnection, src engine.VideoSource) (engine.Track, error) {
	p, ok := pc.(*Peer)
	if !ok {
		return nil, ErrForeignPeer
	}
	return newTrack(p, src)
}
