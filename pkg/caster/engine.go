package caster

import (
	"fmt"

	"github.com/castline/screencast/pkg/capture"
	"github.com/castline/screencast/pkg/config"
	"github.com/castline/screencast/pkg/encoder"
	"github.com/castline/screencast/pkg/encoder/h264"
	"github.com/castline/screencast/pkg/engine"
	"github.com/castline/screencast/pkg/logger"
	"github.com/castline/screencast/pkg/media"
	"github.com/castline/screencast/pkg/webrtc"
)

// NewEncoderFactory makes x264 encoders scaling the frames to the preset size.
func NewEncoderFactory(conf config.H264, log *logger.Logger) webrtc.EncoderFactory {
	return func(p capture.Preset) (engine.EncodeContext, error) {
		codec, err := h264.NewEncoder(p.Width, p.Height, p.Fps, conf)
		if err != nil {
			return nil, err
		}
		return encoder.NewVideoEncoder(codec, p.Width, p.Height, log), nil
	}
}

// NewSourceFactory makes screen capture sources of the token display.
func NewSourceFactory(maxFailures int, log *logger.Logger) webrtc.SourceFactory {
	return func(t *capture.Token, ec engine.EncodeContext) (engine.VideoSource, error) {
		enc, ok := ec.(media.FrameEncoder)
		if !ok {
			return nil, fmt.Errorf("%T can't encode frames", ec)
		}
		return media.NewSource(t, capture.NewScreenGrabber(t), enc, maxFailures, log), nil
	}
}
