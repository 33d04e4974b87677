package capture

import (
	"bytes"
	"context"
	"image"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/castline/screencast/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDisplays []image.Rectangle

func (d fakeDisplays) Count() int                   { return len(d) }
func (d fakeDisplays) Bounds(i int) image.Rectangle { return d[i] }

var oneDisplay = fakeDisplays{image.Rect(0, 0, 1920, 1080)}

func TestTokenClaimOnce(t *testing.T) {
	tok := NewToken(0, image.Rect(0, 0, 10, 10))
	require.NoError(t, tok.Claim())
	assert.ErrorIs(t, tok.Claim(), ErrTokenClaimed)
	assert.True(t, tok.IsClaimed())
	assert.NotEmpty(t, tok.Id())
}

func TestTokenRevoke(t *testing.T) {
	tok := NewToken(0, image.Rect(0, 0, 10, 10))
	tok.Revoke()
	tok.Revoke()

	select {
	case <-tok.Revoked():
	default:
		t.Fatal("revoked channel should be closed")
	}
	assert.False(t, tok.Valid())
	assert.ErrorIs(t, tok.Claim(), ErrTokenInvalid)
}

func TestTokenRelease(t *testing.T) {
	tok := NewToken(0, image.Rect(0, 0, 10, 10))
	tok.Release()
	assert.False(t, tok.Valid())
	assert.False(t, tok.IsRevoked())
	assert.ErrorIs(t, tok.Claim(), ErrTokenInvalid)
}

func TestAutoGrant(t *testing.T) {
	tok, err := AutoGrant{Displays: oneDisplay}.RequestCapture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, oneDisplay[0], tok.Bounds())

	_, err = AutoGrant{Displays: oneDisplay, Display: 3}.RequestCapture(context.Background())
	assert.ErrorIs(t, err, ErrNoDisplay)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
}

func TestPrompt(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		denied bool
	}{
		{name: "yes", input: "y\n"},
		{name: "full yes", input: "  YES \n"},
		{name: "no", input: "n\n", denied: true},
		{name: "empty", input: "\n", denied: true},
		{name: "eof", input: "", denied: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompt(oneDisplay, 0, strings.NewReader(test.input), &out)
			tok, err := p.RequestCapture(context.Background())
			if test.denied {
				assert.ErrorIs(t, err, ErrPermissionDenied)
				assert.Nil(t, tok)
			} else {
				require.NoError(t, err)
				assert.True(t, tok.Valid())
			}
			assert.Contains(t, out.String(), "1920x1080")
		})
	}
}

type askWriter struct {
	bytes.Buffer
	asked chan struct{}
}

func (w *askWriter) Write(p []byte) (int, error) {
	n, err := w.Buffer.Write(p)
	w.asked <- struct{}{}
	return n, err
}

func TestPromptOncePerCall(t *testing.T) {
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()
	out := &askWriter{asked: make(chan struct{}, 2)}
	p := NewPrompt(oneDisplay, 0, r, out)

	answer := func(a string) {
		<-out.asked
		_, _ = w.Write([]byte(a))
	}

	go answer("no\n")
	_, err := p.RequestCapture(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)

	go answer("y\n")
	tok, err := p.RequestCapture(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tok)
	assert.Equal(t, 2, strings.Count(out.String(), "[y/N]"))
}

func TestPromptCancel(t *testing.T) {
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()
	p := NewPrompt(oneDisplay, 0, r, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.RequestCapture(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPromptIgnoresLateAnswer(t *testing.T) {
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()
	out := &lockedBuffer{}
	p := NewPrompt(oneDisplay, 0, r, out)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.RequestCapture(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// typed after the question was gone
	_, err = w.Write([]byte("y\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "ignored") }, time.Second, time.Millisecond)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	tok, err := p.RequestCapture(ctx2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, tok)
	assert.Equal(t, 2, strings.Count(out.String(), "[y/N]"))
}

func TestNewAcquirer(t *testing.T) {
	a := NewAcquirer(config.Capture{Consent: config.ConsentAuto}, oneDisplay, nil, nil)
	assert.IsType(t, AutoGrant{}, a)
	a = NewAcquirer(config.Capture{Consent: config.ConsentPrompt}, oneDisplay, strings.NewReader(""), io.Discard)
	assert.IsType(t, &Prompt{}, a)
}

func TestPolicySelect(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name   string
		bounds image.Rectangle
		want   Preset
	}{
		{name: "landscape", bounds: image.Rect(0, 0, 1920, 1080), want: Preset{Width: 1280, Height: 720, Fps: 30}},
		{name: "portrait", bounds: image.Rect(0, 0, 1080, 2340), want: Preset{Width: 720, Height: 1280, Fps: 30}},
		{name: "square", bounds: image.Rect(0, 0, 1000, 1000), want: Preset{Width: 1280, Height: 720, Fps: 30}},
		{name: "offset display", bounds: image.Rect(1920, 0, 2520, 1200), want: Preset{Width: 720, Height: 1280, Fps: 30}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, p.Select(test.bounds))
		})
	}
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy(map[string]config.Preset{
		config.Landscape: {Width: 853, Height: 481, Fps: 24},
		config.Portrait:  {Width: 480, Height: 854, Fps: 24},
	})
	require.NoError(t, err)
	assert.Equal(t, Preset{Width: 852, Height: 480, Fps: 24}, p.Select(image.Rect(0, 0, 2, 1)))

	_, err = NewPolicy(map[string]config.Preset{config.Landscape: {Width: 1, Height: 1, Fps: 1}})
	assert.Error(t, err)
}
