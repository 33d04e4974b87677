// Package media runs the capture loop of a display.
package media

import (
	"errors"
	"image"
	"sync"
	"time"

	"github.com/castline/screencast/pkg/capture"
	"github.com/castline/screencast/pkg/engine"
	"github.com/castline/screencast/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ErrRunning  = errors.New("capture is already running")
	ErrDisposed = errors.New("source is disposed")
	ErrBadFps   = errors.New("bad frame rate")
)

var (
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screencast",
		Subsystem: "capture",
		Name:      "frames_total",
		Help:      "Captured frames by the outcome.",
	}, []string{"result"})
	encodeTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "screencast",
		Subsystem: "capture",
		Name:      "encode_seconds",
		Help:      "Frame encoding time.",
		Buckets:   []float64{.001, .0025, .005, .01, .02, .04, .08, .16},
	})
)

// FrameEncoder compresses captured frames.
type FrameEncoder interface {
	Encode(frame *image.RGBA) ([]byte, error)
}

// Source grabs the display of a token at the preset frame rate,
// encodes the frames and passes them into its sink.
// After maxFailures grab errors in a row the token is revoked.
type Source struct {
	token       *capture.Token
	grab        capture.Grabber
	enc         FrameEncoder
	maxFailures int
	log         *logger.Logger

	mu       sync.Mutex
	sink     engine.Sink
	stop     chan struct{}
	done     chan struct{}
	disposed bool
}

func NewSource(t *capture.Token, grab capture.Grabber, enc FrameEncoder, maxFailures int, log *logger.Logger) *Source {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &Source{
		token:       t,
		grab:        grab,
		enc:         enc,
		maxFailures: maxFailures,
		log:         log.Extend(log.With().Str("c", "source").Int("display", t.Display())),
	}
}

func (s *Source) StartCapture(p capture.Preset) error {
	if p.Fps <= 0 {
		return ErrBadFps
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if s.stop != nil {
		return ErrRunning
	}
	if !s.token.Valid() {
		return capture.ErrTokenInvalid
	}
	s.stop, s.done = make(chan struct{}), make(chan struct{})
	go s.run(p, s.stop, s.done)
	s.log.Info().Str("preset", p.String()).Msg("capture started")
	return nil
}

func (s *Source) run(p capture.Preset, stop, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Msgf("capture loop panic: %v", r)
			s.token.Revoke()
		}
	}()

	period := time.Second / time.Duration(p.Fps)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-stop:
			return
		case <-s.token.Revoked():
			s.log.Info().Msg("capture revoked")
			return
		case <-ticker.C:
		}

		frame, err := s.grab.Grab()
		if err != nil {
			failures++
			framesTotal.WithLabelValues("grab_error").Inc()
			s.log.Warn().Err(err).Int("failures", failures).Msg("grab")
			if failures >= s.maxFailures {
				s.log.Error().Msg("the display is gone, revoking the capture")
				s.token.Revoke()
				return
			}
			continue
		}
		failures = 0

		start := time.Now()
		data, err := s.enc.Encode(frame)
		encodeTime.Observe(time.Since(start).Seconds())
		if err != nil {
			framesTotal.WithLabelValues("encode_error").Inc()
			s.log.Warn().Err(err).Msg("encode")
			continue
		}
		if len(data) == 0 {
			continue
		}

		s.mu.Lock()
		sink := s.sink
		s.mu.Unlock()
		if sink == nil {
			framesTotal.WithLabelValues("dropped").Inc()
			continue
		}
		if err := sink(data, period); err != nil {
			framesTotal.WithLabelValues("sink_error").Inc()
			s.log.Debug().Err(err).Msg("sink")
			continue
		}
		framesTotal.WithLabelValues("sent").Inc()
	}
}

// StopCapture stops the capture loop and waits for it.
func (s *Source) StopCapture() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	s.log.Info().Msg("capture stopped")
	return nil
}

func (s *Source) SetSink(sink engine.Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *Source) Dispose() error {
	err := s.StopCapture()
	s.mu.Lock()
	s.disposed = true
	s.sink = nil
	s.mu.Unlock()
	return err
}

func (s *Source) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}
