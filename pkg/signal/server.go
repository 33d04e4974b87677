package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/castline/screencast/pkg/api"
	"github.com/castline/screencast/pkg/com"
	"github.com/castline/screencast/pkg/config"
	"github.com/castline/screencast/pkg/engine"
	"github.com/castline/screencast/pkg/logger"
	"github.com/castline/screencast/pkg/network/httpx"
	"github.com/castline/screencast/pkg/network/websocket"
	"github.com/castline/screencast/pkg/session"
	"github.com/castline/screencast/pkg/webrtc"
)

// Commander applies issuer commands, session.Host is one.
type Commander interface {
	Submit(ctx context.Context, cmd session.Command) error
	State(ctx context.Context) (session.State, error)
}

type Server struct {
	host    Commander
	relay   *Relay
	ice     []config.IceServer
	timeout time.Duration
	buffer  int
	log     *logger.Logger

	sockets *com.Map[com.Uid, *websocket.WS]
}

func NewServer(host Commander, relay *Relay, conf config.Config, log *logger.Logger) *Server {
	timeout := conf.Host.CommandTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Server{
		host:    host,
		relay:   relay,
		ice:     conf.Webrtc.IceServers,
		timeout: timeout,
		buffer:  conf.Host.OutboundBuffer,
		log:     log.Extend(log.With().Str("c", "signal")),
		sockets: com.NewMap[com.Uid, *websocket.WS](),
	}
}

func (s *Server) Routes(mux *httpx.Mux) *httpx.Mux {
	return mux.
		HandleFunc("/signal", s.ServeWS).
		HandleFunc("/ice", s.ServeIce)
}

// ServeWS attaches a new command issuer.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.NewServer(w, r, s.buffer, s.log)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade")
		return
	}
	log := s.log.Extend(s.log.With().Str("cid", ws.Id().Short()))
	ws.OnMessage = func(message []byte) {
		out := s.handle(message)
		data, err := json.Marshal(out)
		if err != nil {
			log.Error().Err(err).Msg("encode")
			return
		}
		if !ws.Write(data) {
			log.Warn().Str("id", out.Id).Msg("result dropped")
		}
	}
	s.sockets.Put(ws.Id(), ws)
	s.relay.Attach(ws)
	ws.Start()
	log.Info().Str("addr", r.RemoteAddr).Msg("issuer connected")

	go func() {
		<-ws.Done
		s.relay.Detach(ws.Id())
		s.sockets.RemoveByKey(ws.Id())
		log.Info().Msg("issuer disconnected")
	}()
}

// ServeIce returns the ICE servers for browsers,
// {server-ip} in the hosts is replaced with the requested host.
func (s *Server) ServeIce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(webrtc.ToJson(s.ice, webrtc.Replacement{From: "server-ip", To: host})))
}

// Close disconnects every issuer.
func (s *Server) Close() {
	s.sockets.ForEach(func(ws *websocket.WS) { ws.Close() })
}

// Run does nothing, issuers come through the HTTP routes.
func (s *Server) Run() {}

func (s *Server) Shutdown(context.Context) error {
	s.Close()
	return nil
}

func (s *Server) String() string { return "signaling" }

func (s *Server) handle(message []byte) api.Out {
	var in api.In
	if err := json.Unmarshal(message, &in); err != nil {
		return api.Out{T: api.Result, Payload: Result(api.ErrMalformed)}
	}
	out := api.Out{Id: in.Id, T: api.Result}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.log.Debug().Str("id", in.Id).Str("t", in.T.String()).Msg("command")

	var err error
	switch in.T {
	case api.Start:
		err = s.host.Submit(ctx, session.Command{Kind: session.CmdStart})
	case api.SetRemoteDescription:
		var rq *api.RemoteDescriptionRequest
		if rq, err = api.UnwrapChecked[api.RemoteDescriptionRequest](in.Payload); err == nil {
			if rq.Sdp == "" {
				err = api.ErrMalformed
				break
			}
			err = s.host.Submit(ctx, session.Command{Kind: session.CmdSetRemoteDescription, Sdp: rq.Sdp})
		}
	case api.AddIceCandidate:
		var rq *api.IceCandidateRequest
		if rq, err = api.UnwrapChecked[api.IceCandidateRequest](in.Payload); err == nil {
			if rq.Candidate == "" {
				err = api.ErrMalformed
				break
			}
			err = s.host.Submit(ctx, session.Command{
				Kind:      session.CmdAddIceCandidate,
				Candidate: engine.Candidate{Candidate: rq.Candidate, SdpMid: rq.Mid, SdpMLineIndex: rq.Index},
			})
		}
	case api.Stop:
		err = s.host.Submit(ctx, session.Command{Kind: session.CmdStop})
	case api.GetState:
		var st session.State
		if st, err = s.host.State(ctx); err == nil {
			res := Result(nil)
			res.State = st.String()
			out.Payload = res
			return out
		}
	default:
		err = session.ErrUnknownCommand
	}
	if err != nil {
		s.log.Warn().Err(err).Str("t", in.T.String()).Msg("command rejected")
	}
	out.Payload = Result(err)
	return out
}

// Result converts a command outcome into the result payload.
func Result(err error) api.ResultResponse {
	if err == nil {
		return api.ResultResponse{Ok: true}
	}
	return api.ResultResponse{Code: Code(err), Error: err.Error()}
}

func Code(err error) string {
	switch {
	case err == nil:
		return api.OK
	case errors.Is(err, session.ErrNotReady):
		return api.CodeNotReady
	case errors.Is(err, session.ErrTerminated), errors.Is(err, session.ErrHostClosed):
		return api.CodeTerminated
	case errors.Is(err, session.ErrAlreadyStarted):
		return api.CodeAlreadyActive
	case errors.Is(err, session.ErrAnswerApplied):
		return api.CodeAnswerApplied
	case errors.Is(err, session.ErrCandidateRejected):
		return api.CodeRejected
	case errors.Is(err, api.ErrMalformed):
		return api.CodeMalformed
	case errors.Is(err, session.ErrUnknownCommand):
		return api.CodeUnknown
	}
	return api.CodeInternal
}
