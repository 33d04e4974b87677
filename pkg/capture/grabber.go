package capture

import (
	"image"

	"github.com/castline/screencast/pkg/thread"
	"github.com/kbinani/screenshot"
)

// Grabber takes a single frame of a display.
type Grabber interface {
	Grab() (*image.RGBA, error)
}

// ScreenGrabber captures the display area of a token.
type ScreenGrabber struct {
	bounds image.Rectangle
}

func NewScreenGrabber(t *Token) *ScreenGrabber { return &ScreenGrabber{bounds: t.Bounds()} }

func (g *ScreenGrabber) Grab() (img *image.RGBA, err error) {
	thread.MainMaybe(func() { img, err = screenshot.CaptureRect(g.bounds) })
	return
}
