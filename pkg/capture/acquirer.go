package capture

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"

	"github.com/castline/screencast/pkg/config"
	"github.com/castline/screencast/pkg/thread"
	"github.com/kbinani/screenshot"
)

// Acquirer asks the user for a capture permission.
// Each call shows exactly one consent request and never retries,
// a refusal is reported as ErrPermissionDenied.
type Acquirer interface {
	RequestCapture(ctx context.Context) (*Token, error)
}

type AcquirerFunc func(ctx context.Context) (*Token, error)

func (f AcquirerFunc) RequestCapture(ctx context.Context) (*Token, error) { return f(ctx) }

// Displays lists the displays available for capture.
type Displays interface {
	Count() int
	Bounds(i int) image.Rectangle
}

type screens struct{}

// Screens returns the displays of this machine.
func Screens() Displays { return screens{} }

func (screens) Count() (n int) {
	thread.MainMaybe(func() { n = screenshot.NumActiveDisplays() })
	return
}

func (screens) Bounds(i int) (r image.Rectangle) {
	thread.MainMaybe(func() { r = screenshot.GetDisplayBounds(i) })
	return
}

func displayBounds(d Displays, i int) (image.Rectangle, error) {
	n := d.Count()
	if i < 0 || i >= n {
		return image.Rectangle{}, fmt.Errorf("%w: #%v of %v", ErrNoDisplay, i, n)
	}
	b := d.Bounds(i)
	if b.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: #%v has no area", ErrNoDisplay, i)
	}
	return b, nil
}

// AutoGrant grants every request without asking.
type AutoGrant struct {
	Displays Displays
	Display  int
}

func (a AutoGrant) RequestCapture(ctx context.Context) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := displayBounds(a.Displays, a.Display)
	if err != nil {
		return nil, err
	}
	return NewToken(a.Display, b), nil
}

// Prompt asks for the permission with a y/N question.
// Only a line typed while the question is open answers it,
// lines typed in between the questions are ignored.
type Prompt struct {
	displays Displays
	display  int
	out      io.Writer
	in       io.Reader

	once sync.Once
	mu   sync.Mutex // one question at a time

	qmu    sync.Mutex
	answer chan string // open question
	eof    bool
}

func NewPrompt(d Displays, display int, in io.Reader, out io.Writer) *Prompt {
	return &Prompt{displays: d, display: display, in: in, out: out}
}

func (p *Prompt) scan() {
	s := bufio.NewScanner(p.in)
	for s.Scan() {
		p.deliver(s.Text())
	}
	p.qmu.Lock()
	p.eof = true
	if p.answer != nil {
		close(p.answer)
		p.answer = nil
	}
	p.qmu.Unlock()
}

func (p *Prompt) deliver(line string) {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	if p.answer == nil {
		_, _ = fmt.Fprintln(p.out, "(ignored, no open question)")
		return
	}
	p.answer <- line
	p.answer = nil
}

// ask opens a question, the channel gets the answer
// or is closed when the input is over.
func (p *Prompt) ask() chan string {
	answer := make(chan string, 1)
	p.qmu.Lock()
	if p.eof {
		close(answer)
	} else {
		p.answer = answer
	}
	p.qmu.Unlock()
	return answer
}

func (p *Prompt) close(answer chan string) {
	p.qmu.Lock()
	if p.answer == answer {
		p.answer = nil
	}
	p.qmu.Unlock()
}

func (p *Prompt) RequestCapture(ctx context.Context) (*Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, err := displayBounds(p.displays, p.display)
	if err != nil {
		return nil, err
	}
	answer := p.ask()
	defer p.close(answer)
	p.once.Do(func() { go p.scan() })

	_, _ = fmt.Fprintf(p.out, "Allow screen capture of display #%d (%dx%d)? [y/N]: ", p.display, b.Dx(), b.Dy())

	select {
	case line, ok := <-answer:
		if !ok {
			return nil, ErrPermissionDenied
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return NewToken(p.display, b), nil
		}
		return nil, ErrPermissionDenied
	case <-ctx.Done():
		_, _ = fmt.Fprintln(p.out)
		return nil, ctx.Err()
	}
}

// NewAcquirer creates an acquirer by the consent mode from the config.
func NewAcquirer(conf config.Capture, d Displays, in io.Reader, out io.Writer) Acquirer {
	if conf.Consent == config.ConsentAuto {
		return AutoGrant{Displays: d, Display: conf.Display}
	}
	return NewPrompt(d, conf.Display, in, out)
}
