// Package encoder turns captured display frames into a video stream.
package encoder

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/castline/screencast/pkg/logger"
	"golang.org/x/image/draw"
)

var ErrStopped = errors.New("encoder is stopped")

// Encoder compresses frames of a fixed size.
type Encoder interface {
	Encode(frame *image.RGBA) ([]byte, error)
	Close() error
}

// Video fits captured frames into the output size
// and encodes them with the codec.
type Video struct {
	codec   Encoder
	log     *logger.Logger
	size    image.Point
	stopped atomic.Bool
	canvas  *image.RGBA
	mu      sync.Mutex
}

// NewVideoEncoder returns new video encoder for the frames of w x h.
func NewVideoEncoder(codec Encoder, w, h int, log *logger.Logger) *Video {
	return &Video{
		codec:  codec,
		log:    log,
		size:   image.Point{X: w, Y: h},
		canvas: image.NewRGBA(image.Rect(0, 0, w, h)),
	}
}

// Encode returns the compressed frame, it may be empty
// while the codec is buffering.
func (v *Video) Encode(frame *image.RGBA) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopped.Load() {
		return nil, ErrStopped
	}
	if frame.Bounds().Size() != v.size {
		Fit(v.canvas, frame)
		frame = v.canvas
	}
	return v.codec.Encode(frame)
}

func (v *Video) Size() image.Point { return v.size }

func (v *Video) Info() string { return fmt.Sprintf("%vx%v", v.size.X, v.size.Y) }

// Close stops the encoder, subsequent calls do nothing.
func (v *Video) Close() error {
	if v.stopped.Swap(true) {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.codec.Close(); err != nil {
		v.log.Error().Err(err).Msg("failed to close the encoder")
		return err
	}
	return nil
}

// Fit scales src into dst keeping the aspect ratio,
// the rest of dst is black.
func Fit(dst *image.RGBA, src image.Image) {
	r := FitRect(src.Bounds().Size(), dst.Bounds())
	if r != dst.Bounds() {
		draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)
	}
	draw.ApproxBiLinear.Scale(dst, r, src, src.Bounds(), draw.Src, nil)
}

// FitRect returns the largest rectangle of the src aspect ratio
// centered in dst.
func FitRect(src image.Point, dst image.Rectangle) image.Rectangle {
	dw, dh := dst.Dx(), dst.Dy()
	if src.X <= 0 || src.Y <= 0 || dw <= 0 || dh <= 0 {
		return dst
	}
	w, h := dw, src.Y*dw/src.X
	if h > dh {
		w, h = src.X*dh/src.Y, dh
	}
	x := dst.Min.X + (dw-w)/2
	y := dst.Min.Y + (dh-h)/2
	return image.Rect(x, y, x+w, y+h)
}
