package caster

import (
	"net/http"

	"github.com/castline/screencast/pkg/config"
	"github.com/castline/screencast/pkg/logger"
	"github.com/castline/screencast/pkg/network/httpx"
)

func NewHTTPServer(conf config.Config, log *logger.Logger, fnMux func(*httpx.Mux)) (*httpx.Server, error) {
	return httpx.NewServer(
		conf.Server.GetAddr(),
		func(*httpx.Server) httpx.Handler {
			h := httpx.NewServeMux("")
			h.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("ok"))
			})
			fnMux(h)
			return h
		},
		httpx.WithServerConfig(conf.Server),
		httpx.WithLogger(log),
	)
}
