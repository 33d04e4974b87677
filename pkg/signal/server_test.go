package signal

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/castline/screencast/pkg/api"
	"github.com/castline/screencast/pkg/capture"
	"github.com/castline/screencast/pkg/config"
	"github.com/castline/screencast/pkg/engine"
	"github.com/castline/screencast/pkg/engine/enginetest"
	"github.com/castline/screencast/pkg/logger"
	"github.com/castline/screencast/pkg/network/httpx"
	"github.com/castline/screencast/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const answer = "v=0\r\no=- 2 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\nm=video 9 UDP/TLS/RTP/SAVPF 96\r\na=recvonly\r\n"

type displays []image.Rectangle

func (d displays) Count() int                   { return len(d) }
func (d displays) Bounds(i int) image.Rectangle { return d[i] }

type fixture struct {
	fake   *enginetest.Engine
	host   *session.Host
	relay  *Relay
	server *Server
	http   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{fake: enginetest.New(), relay: NewRelay(logger.Nop())}
	acq := capture.AutoGrant{Displays: displays{image.Rect(0, 0, 1920, 1080)}}
	f.host = session.NewHost(func() *session.Session {
		return session.New(session.Options{
			Acquirer:  acq,
			Lifecycle: engine.NewManager(f.fake, capture.DefaultPolicy(), logger.Nop()),
			Events:    f.relay,
			Log:       logger.Nop(),
		})
	}, logger.Nop())
	f.host.Run()

	conf := config.Config{}
	conf.Host.CommandTimeout = time.Second
	conf.Host.OutboundBuffer = 16
	conf.Webrtc.IceServers = []config.IceServer{
		{Scheme: "stun", Host: "{server-ip}", Port: 3478},
		{Scheme: "turn", Host: "turn.example.org", Port: 3478, Username: "u", Credential: "p"},
	}
	f.server = NewServer(f.host, f.relay, conf, logger.Nop())
	f.http = httptest.NewServer(f.server.Routes(httpx.NewServeMux("")))

	t.Cleanup(func() {
		f.server.Close()
		f.http.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.host.Shutdown(ctx)
	})
	return f
}

func (f *fixture) dial(t *testing.T) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(f.http.URL, "http")+"/signal", logger.Nop())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.Eventually(t, func() bool { return f.relay.Listeners() > 0 }, time.Second, time.Millisecond)
	return c
}

func call(t *testing.T, c *Client, pt api.PT, payload any) *api.ResultResponse {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := c.Call(ctx, pt, payload)
	require.NoError(t, err)
	return res
}

// next waits for the event of the type skipping the others.
func next(t *testing.T, c *Client, pt api.PT) api.In {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case in := <-c.Events():
			if in.T == pt {
				return in
			}
		case <-timeout:
			t.Fatalf("no %v event", pt)
		}
	}
}

func waitState(t *testing.T, c *Client, state string) {
	t.Helper()
	for {
		in := next(t, c, api.StateChanged)
		ev, err := api.UnwrapChecked[api.StateChangedEvent](in.Payload)
		require.NoError(t, err)
		if ev.State == state {
			return
		}
	}
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	res := call(t, c, api.Start, nil)
	require.True(t, res.Ok, "%+v", res)

	offer := next(t, c, api.OfferGenerated)
	sdp, err := api.UnwrapChecked[api.SdpMessage](offer.Payload)
	require.NoError(t, err)
	assert.Equal(t, api.SdpOffer, sdp.Kind)
	assert.Equal(t, enginetest.FakeOffer, sdp.Body)

	res = call(t, c, api.SetRemoteDescription, api.RemoteDescriptionRequest{Sdp: answer})
	require.True(t, res.Ok, "%+v", res)
	waitState(t, c, "connected")

	res = call(t, c, api.AddIceCandidate, api.IceCandidateRequest{Mid: "0", Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host"})
	require.True(t, res.Ok, "%+v", res)
	assert.Equal(t, []engine.Candidate{{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SdpMid: "0"}},
		f.fake.Peer().Candidates())

	res = call(t, c, api.GetState, nil)
	assert.True(t, res.Ok)
	assert.Equal(t, "connected", res.State)

	res = call(t, c, api.SetRemoteDescription, api.RemoteDescriptionRequest{Sdp: answer})
	assert.Equal(t, api.CodeAnswerApplied, res.Code)

	res = call(t, c, api.Stop, nil)
	assert.True(t, res.Ok)
	waitState(t, c, "stopped")

	res = call(t, c, api.SetRemoteDescription, api.RemoteDescriptionRequest{Sdp: answer})
	assert.Equal(t, api.CodeTerminated, res.Code)
}

func TestCommandErrors(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	tests := []struct {
		name    string
		pt      api.PT
		payload any
		code    string
	}{
		{name: "answer before start", pt: api.SetRemoteDescription, payload: api.RemoteDescriptionRequest{Sdp: answer}, code: api.CodeNotReady},
		{name: "candidate before start", pt: api.AddIceCandidate, payload: api.IceCandidateRequest{Candidate: "c"}, code: api.CodeNotReady},
		{name: "no sdp", pt: api.SetRemoteDescription, payload: api.RemoteDescriptionRequest{}, code: api.CodeMalformed},
		{name: "no payload", pt: api.AddIceCandidate, code: api.CodeMalformed},
		{name: "bad payload", pt: api.AddIceCandidate, payload: "text", code: api.CodeMalformed},
		{name: "unknown", pt: api.PT(42), code: api.CodeUnknown},
		{name: "event as command", pt: api.OfferGenerated, code: api.CodeUnknown},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res := call(t, c, test.pt, test.payload)
			assert.False(t, res.Ok)
			assert.Equal(t, test.code, res.Code)
			assert.NotEmpty(t, res.Error)
		})
	}

	res := call(t, c, api.Stop, nil)
	assert.True(t, res.Ok, "stop without a session")
	res = call(t, c, api.GetState, nil)
	assert.Equal(t, "idle", res.State)
}

func TestStartTwice(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)
	require.True(t, call(t, c, api.Start, nil).Ok)
	next(t, c, api.OfferGenerated)
	assert.Equal(t, api.CodeAlreadyActive, call(t, c, api.Start, nil).Code)
}

func TestFailedEvent(t *testing.T) {
	f := newFixture(t)
	f.fake.FailOn(enginetest.OpPeer, nil)
	c := f.dial(t)

	require.True(t, call(t, c, api.Start, nil).Ok)
	in := next(t, c, api.SessionFailed)
	ev, err := api.UnwrapChecked[api.FailedEvent](in.Payload)
	require.NoError(t, err)
	assert.Equal(t, "acquire_failed", ev.Reason)
	assert.Contains(t, ev.Error, enginetest.ErrInjected.Error())
}

func TestEventsToAllIssuers(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t)
	b := f.dial(t)
	require.Eventually(t, func() bool { return f.relay.Listeners() == 2 }, time.Second, time.Millisecond)

	require.True(t, call(t, a, api.Start, nil).Ok)
	next(t, a, api.OfferGenerated)
	next(t, b, api.OfferGenerated)
}

func TestMalformedPacket(t *testing.T) {
	f := newFixture(t)
	out := f.server.handle([]byte("{not json"))
	assert.Equal(t, api.Result, out.T)
	assert.Equal(t, api.CodeMalformed, out.Payload.(api.ResultResponse).Code)
}

func TestIce(t *testing.T) {
	f := newFixture(t)
	rs, err := http.Get(f.http.URL + "/ice")
	require.NoError(t, err)
	defer func() { _ = rs.Body.Close() }()
	body, err := io.ReadAll(rs.Body)
	require.NoError(t, err)

	assert.Equal(t, "application/json", rs.Header.Get("Content-Type"))
	assert.JSONEq(t, `[
		{"urls":"stun:127.0.0.1:3478"},
		{"urls":"turn:turn.example.org:3478","username":"u","credential":"p"}
	]`, string(body))

	rs2, err := http.Post(f.http.URL+"/ice", "text/plain", nil)
	require.NoError(t, err)
	_ = rs2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, rs2.StatusCode)
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{err: nil, code: api.OK},
		{err: session.ErrNotReady, code: api.CodeNotReady},
		{err: fmt.Errorf("start: %w", session.ErrTerminated), code: api.CodeTerminated},
		{err: session.ErrHostClosed, code: api.CodeTerminated},
		{err: session.ErrAlreadyStarted, code: api.CodeAlreadyActive},
		{err: session.ErrAnswerApplied, code: api.CodeAnswerApplied},
		{err: fmt.Errorf("%w: bad", session.ErrCandidateRejected), code: api.CodeRejected},
		{err: api.ErrMalformed, code: api.CodeMalformed},
		{err: session.ErrUnknownCommand, code: api.CodeUnknown},
		{err: context.DeadlineExceeded, code: api.CodeInternal},
		{err: errors.New("?"), code: api.CodeInternal},
	}
	for _, test := range tests {
		assert.Equal(t, test.code, Code(test.err), "%v", test.err)
	}
}
