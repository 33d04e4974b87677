package encoder

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/castline/screencast/pkg/logger"
)

type codec struct {
	sizes  []image.Point
	closed int
	err    error
}

func (c *codec) Encode(frame *image.RGBA) ([]byte, error) {
	c.sizes = append(c.sizes, frame.Bounds().Size())
	return []byte{1}, c.err
}

func (c *codec) Close() error { c.closed++; return c.err }

func TestFitRect(t *testing.T) {
	tests := []struct {
		src  image.Point
		dst  image.Rectangle
		want image.Rectangle
	}{
		{src: image.Pt(1920, 1080), dst: image.Rect(0, 0, 1280, 720), want: image.Rect(0, 0, 1280, 720)},
		{src: image.Pt(1920, 1200), dst: image.Rect(0, 0, 1280, 720), want: image.Rect(64, 0, 1216, 720)},
		{src: image.Pt(1080, 1080), dst: image.Rect(0, 0, 720, 1280), want: image.Rect(0, 280, 720, 1000)},
		{src: image.Pt(2560, 1080), dst: image.Rect(0, 0, 1280, 720), want: image.Rect(0, 90, 1280, 630)},
		{src: image.Pt(0, 0), dst: image.Rect(0, 0, 10, 10), want: image.Rect(0, 0, 10, 10)},
	}
	for _, test := range tests {
		if got := FitRect(test.src, test.dst); got != test.want {
			t.Errorf("fit %v into %v: got %v, want %v", test.src, test.dst, got, test.want)
		}
	}
}

func TestFitLetterbox(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	dst := image.NewRGBA(image.Rect(0, 0, 40, 20))
	Fit(dst, src)

	if c := dst.RGBAAt(0, 10); c != (color.RGBA{A: 0xff}) {
		t.Errorf("the border should be black, got %v", c)
	}
	if c := dst.RGBAAt(20, 10); c.R < 0xf0 {
		t.Errorf("the center should be white, got %v", c)
	}
}

func TestVideoScales(t *testing.T) {
	c := &codec{}
	v := NewVideoEncoder(c, 64, 36, logger.Nop())

	if _, err := v.Encode(image.NewRGBA(image.Rect(0, 0, 64, 36))); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Encode(image.NewRGBA(image.Rect(0, 0, 192, 120))); err != nil {
		t.Fatal(err)
	}
	for _, s := range c.sizes {
		if s != image.Pt(64, 36) {
			t.Errorf("codec got a frame of %v", s)
		}
	}
}

func TestVideoClose(t *testing.T) {
	c := &codec{}
	v := NewVideoEncoder(c, 2, 2, logger.Nop())
	if err := v.Close(); err != nil {
		t.Fatal(err)
	}
	if err := v.Close(); err != nil {
		t.Fatal(err)
	}
	if c.closed != 1 {
		t.Errorf("the codec is closed %v times", c.closed)
	}
	if _, err := v.Encode(image.NewRGBA(image.Rect(0, 0, 2, 2))); !errors.Is(err, ErrStopped) {
		t.Errorf("expected stopped, got %v", err)
	}
}
