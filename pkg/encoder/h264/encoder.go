// Package h264 implements the H264 codec with x264.
package h264

import (
	"bytes"
	"fmt"
	"image"

	"github.com/castline/screencast/pkg/config"
	"github.com/gen2brain/x264-go"
)

type Encoder struct {
	buf *bytes.Buffer
	enc *x264.Encoder
}

// NewEncoder creates an encoder for the frames of w x h,
// both should be even.
func NewEncoder(w, h, fps int, conf config.H264) (*Encoder, error) {
	if w <= 0 || h <= 0 || w%2 != 0 || h%2 != 0 {
		return nil, fmt.Errorf("h264: bad frame size %vx%v", w, h)
	}
	buf := bytes.NewBuffer(make([]byte, 0))
	enc, err := x264.NewEncoder(buf, Options(w, h, fps, conf))
	if err != nil {
		return nil, err
	}
	return &Encoder{buf: buf, enc: enc}, nil
}

// Options maps the config onto the x264 options.
func Options(w, h, fps int, conf config.H264) *x264.Options {
	return &x264.Options{
		Width:     w,
		Height:    h,
		FrameRate: fps,
		Tune:      conf.Tune,
		Preset:    conf.Preset,
		Profile:   conf.Profile,
		LogLevel:  logLevel(conf.LogLevel),
	}
}

func logLevel(level int) int32 {
	switch {
	case level < int(x264.LogNone):
		return x264.LogNone
	case level > int(x264.LogDebug):
		return x264.LogDebug
	}
	return int32(level)
}

// Encode returns the NAL units of the frame.
func (e *Encoder) Encode(frame *image.RGBA) ([]byte, error) {
	if err := e.enc.Encode(frame); err != nil {
		return nil, err
	}
	if err := e.enc.Flush(); err != nil {
		return nil, err
	}
	payload := make([]byte, e.buf.Len())
	copy(payload, e.buf.Bytes())
	e.buf.Reset()
	return payload, nil
}

func (e *Encoder) Close() error { return e.enc.Close() }
