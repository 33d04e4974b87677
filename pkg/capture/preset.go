package capture

import (
	"fmt"
	"image"

	"github.com/castline/screencast/pkg/config"
)

type Orientation int

const (
	Landscape Orientation = iota
	Portrait
)

func (o Orientation) String() string {
	if o == Portrait {
		return config.Portrait
	}
	return config.Landscape
}

// OrientationOf tells the display orientation by its bounds.
// Square displays are landscape.
func OrientationOf(bounds image.Rectangle) Orientation {
	if bounds.Dy() > bounds.Dx() {
		return Portrait
	}
	return Landscape
}

// Preset is the capture resolution and frame rate.
type Preset struct {
	Width  int
	Height int
	Fps    int
}

func (p Preset) Size() image.Point { return image.Point{X: p.Width, Y: p.Height} }

func (p Preset) String() string { return fmt.Sprintf("%dx%d@%d", p.Width, p.Height, p.Fps) }

// Policy maps display orientations to capture presets.
type Policy struct {
	presets map[Orientation]Preset
}

func DefaultPolicy() Policy {
	p, _ := NewPolicy(config.DefaultPresets)
	return p
}

// NewPolicy makes a policy from the config presets.
// Dimensions are rounded down to even numbers as 4:2:0 encoders want.
func NewPolicy(presets map[string]config.Preset) (Policy, error) {
	policy := Policy{presets: make(map[Orientation]Preset, 2)}
	for _, o := range []Orientation{Landscape, Portrait} {
		p, ok := presets[o.String()]
		if !ok || !p.Valid() {
			return Policy{}, fmt.Errorf("no valid %v preset", o)
		}
		w, h := p.Width&^1, p.Height&^1
		if w == 0 || h == 0 {
			return Policy{}, fmt.Errorf("%v preset is too small: %+v", o, p)
		}
		policy.presets[o] = Preset{Width: w, Height: h, Fps: p.Fps}
	}
	return policy, nil
}

// Select returns the preset for a display with the given bounds.
func (p Policy) Select(bounds image.Rectangle) Preset { return p.presets[OrientationOf(bounds)] }
