// Package caster assembles the screencast host from the config.
package caster

import (
	"context"
	"fmt"
	"io"

	"github.com/castline/screencast/pkg/capture"
	"github.com/castline/screencast/pkg/config"
	"github.com/castline/screencast/pkg/engine"
	"github.com/castline/screencast/pkg/logger"
	"github.com/castline/screencast/pkg/monitoring"
	"github.com/castline/screencast/pkg/network/httpx"
	"github.com/castline/screencast/pkg/os"
	"github.com/castline/screencast/pkg/service"
	"github.com/castline/screencast/pkg/session"
	"github.com/castline/screencast/pkg/signal"
	"github.com/castline/screencast/pkg/webrtc"
)

type Caster struct {
	conf     config.Config
	lock     *os.Flock
	host     *session.Host
	relay    *signal.Relay
	http     *httpx.Server
	services service.Group
	log      *logger.Logger
}

// Terminal is where the capture consent prompt talks to the user.
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

// New takes the single instance lock and builds every service
// with the real screen capture and the pion engine.
func New(conf config.Config, term Terminal, log *logger.Logger) (*Caster, error) {
	policy, err := capture.NewPolicy(conf.Capture.Presets)
	if err != nil {
		return nil, err
	}
	acquirer := capture.NewAcquirer(conf.Capture, capture.Screens(), term.In, term.Out)
	eng := webrtc.NewEngine(conf.Webrtc, conf.Engine.Audio,
		NewEncoderFactory(conf.Encoder.H264, log),
		NewSourceFactory(conf.Capture.MaxFailures, log),
		log,
	)
	return NewWith(conf, acquirer, eng, policy, log)
}

// NewWith builds the services around the given acquirer and engine.
func NewWith(conf config.Config, acquirer capture.Acquirer, eng engine.Engine, policy capture.Policy, log *logger.Logger) (*Caster, error) {
	lock, err := os.NewFileLock(conf.Host.LockFile)
	if err != nil {
		return nil, err
	}
	if err = lock.TryLock(); err != nil {
		return nil, fmt.Errorf("lock %v: %w", lock.Path(), err)
	}
	log.Debug().Msgf("lock %v", lock.Path())

	c := &Caster{conf: conf, lock: lock, log: log}

	c.relay = signal.NewRelay(log)
	manager := engine.NewManager(eng, policy, log)
	c.host = session.NewHost(func() *session.Session {
		return session.New(session.Options{
			Acquirer:  acquirer,
			Lifecycle: manager,
			Events:    c.relay,
			Log:       log,
		})
	}, log)
	sig := signal.NewServer(c.host, c.relay, conf, log)

	c.http, err = NewHTTPServer(conf, log, func(mux *httpx.Mux) { sig.Routes(mux) })
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	if conf.Monitoring.IsEnabled() {
		mon, err := monitoring.New(conf.Monitoring, log)
		if err != nil {
			_ = lock.Unlock()
			return nil, err
		}
		c.services.Add(mon)
	}
	// the host stops first
	c.services.Add(c.http, sig, c.host)
	return c, nil
}

func (c *Caster) Start() { c.services.Start() }

// Address is where the signaling server listens.
func (c *Caster) Address() string { return c.http.Addr }

func (c *Caster) Host() *session.Host { return c.host }

func (c *Caster) Shutdown(ctx context.Context) error {
	err := c.services.Shutdown(ctx)
	if e := c.lock.Unlock(); e != nil {
		c.log.Warn().Err(e).Msg("unlock")
	}
	return err
}
