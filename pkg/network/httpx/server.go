package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/castline/screencast/pkg/logger"
	"golang.org/x/crypto/acme/autocert"
)

// Server is an HTTP or HTTPS server on its own listener.
// An HTTPS server with HttpsRedirect runs a second, plain server that
// sends every request to the HTTPS address.
type Server struct {
	http.Server

	opts     Options
	autoCert *autocert.Manager
	listener *Listener
	redirect *Server
	log      *logger.Logger
}

type (
	Mux struct {
		*http.ServeMux
		prefix string
	}
	Handler        = http.Handler
	HandlerFunc    = http.HandlerFunc
	ResponseWriter = http.ResponseWriter
	Request        = http.Request
)

// NewServeMux makes a mux registering every pattern under the prefix.
func NewServeMux(prefix string) *Mux {
	return &Mux{ServeMux: http.NewServeMux(), prefix: prefix}
}

func (m *Mux) Handle(pattern string, handler Handler) *Mux {
	m.ServeMux.Handle(m.prefix+pattern, handler)
	return m
}

func (m *Mux) HandleFunc(pattern string, handler func(ResponseWriter, *Request)) *Mux {
	m.ServeMux.HandleFunc(m.prefix+pattern, handler)
	return m
}

func (m *Mux) ServeHTTP(w ResponseWriter, r *Request) { m.ServeMux.ServeHTTP(w, r) }

// NewServer opens the listener right away, so Addr holds the real port
// (after a roll or for :0) before Run.
func NewServer(address string, handler func(*Server) Handler, options ...Option) (*Server, error) {
	opts := Options{
		HttpsRedirect: true,
		IdleTimeout:   120 * time.Second,
		ReadTimeout:   500 * time.Second,
		WriteTimeout:  500 * time.Second,
	}
	opts.override(options...)
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	if address == "" {
		address = ":http"
		if opts.Https {
			address = ":https"
		}
		opts.Logger.Warn().Msgf("empty server address, using %v", address)
	}
	listener, err := NewListener(address, opts.PortRoll)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Server: http.Server{
			Addr:         buildAddress(address, opts.Zone, *listener),
			IdleTimeout:  opts.IdleTimeout,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		opts:     opts,
		listener: listener,
		log:      opts.Logger,
	}
	if opts.Https && opts.IsAutoHttpsCert() {
		s.autoCert = NewTLSConfig(withZonePrefix(opts.HttpsDomain, opts.Zone), opts.CertCache).CertManager
		s.TLSConfig = s.autoCert.TLSConfig()
	}
	s.Handler = handler(s)
	s.log.Info().Msgf("httpx %v (%v)", s.Addr, address)
	return s, nil
}

func (s *Server) Run() {
	if s.opts.Https && s.opts.HttpsRedirect {
		rdr, err := s.redirection()
		if err != nil {
			s.log.Error().Err(err).Msg("couldn't init redirection server")
		} else {
			s.redirect = rdr
			rdr.Run()
		}
	}
	go s.run()
}

func (s *Server) run() {
	protocol := s.GetProtocol()
	s.log.Debug().Msgf("Starting %s server on %s", protocol, s.Addr)

	var err error
	if s.opts.Https {
		err = s.ServeTLS(*s.listener, s.opts.HttpsCert, s.opts.HttpsKey)
	} else {
		err = s.Serve(*s.listener)
	}
	if errors.Is(err, http.ErrServerClosed) {
		s.log.Debug().Msgf("%s server was closed", protocol)
		return
	}
	s.log.Error().Err(err).Msgf("%s server", protocol)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.redirect != nil {
		_ = s.redirect.Shutdown(ctx)
	}
	return s.Server.Shutdown(ctx)
}

func (s *Server) GetProtocol() string {
	if s.opts.Https {
		return "https"
	}
	return "http"
}

func (s *Server) String() string { return fmt.Sprintf("%s server %s", s.GetProtocol(), s.Addr) }

// RedirectHandler sends every request to the same path and query on https://host.
func RedirectHandler(host string, log *logger.Logger) Handler {
	return HandlerFunc(func(w ResponseWriter, r *Request) {
		to := (&url.URL{Scheme: "https", Host: host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}).String()
		log.Debug().Str("from", r.Host+r.URL.RequestURI()).Str("to", to).Msg("Redirect")
		http.Redirect(w, r, to, http.StatusFound)
	})
}

// redirection makes the plain server in front of an HTTPS one.
// With automatic certificates it also answers the ACME http-01 challenges.
func (s *Server) redirection() (*Server, error) {
	host := s.Addr
	if s.opts.HttpsDomain != "" {
		host = buildAddress(s.opts.HttpsDomain, s.opts.Zone, *s.listener)
	}
	srv, err := NewServer(s.opts.HttpsRedirectAddress,
		func(*Server) Handler {
			h := RedirectHandler(host, s.log)
			if s.autoCert != nil {
				return s.autoCert.HTTPHandler(h)
			}
			return h
		},
		WithPortRoll(s.opts.PortRoll),
		WithLogger(s.log),
	)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("addr", srv.Addr).Str("to", host).Msg("Start HTTPS redirect server")
	return srv, nil
}
