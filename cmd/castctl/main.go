// castctl is a terminal command issuer for the screencast host.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	goos "os"
	"strconv"
	"strings"
	"time"

	"github.com/castline/screencast/pkg/api"
	"github.com/castline/screencast/pkg/logger"
	"github.com/castline/screencast/pkg/network"
	"github.com/castline/screencast/pkg/os"
	"github.com/castline/screencast/pkg/signal"
	flag "github.com/spf13/pflag"
)

const usage = `commands:
  start                            start a capture session
  answer <file>                    apply the SDP answer from the file
  candidate <mid> <index> <cand>   add a remote ICE candidate
  stop                             stop the session
  state                            print the session state
  ice                              print the ICE servers
  quit`

var (
	address = flag.StringP("address", "a", "ws://localhost:8000/signal", "Signaling endpoint")
	timeout = flag.Duration("timeout", 15*time.Second, "Command timeout")
	debug   = flag.BoolP("debug", "d", false, "Enable debug logs")
)

func main() {
	flag.Parse()
	log := logger.NewConsole(*debug, "ctl", false)

	term := os.ExpectTermination()
	defer term.Stop()
	ctx, cancel := term.Context(context.Background())
	defer cancel()

	client, err := dial(ctx, *address, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer client.Close()
	log.Info().Msgf("connected to %v", *address)
	fmt.Println(usage)

	go printEvents(client)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(goos.Stdin)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			log.Warn().Msg("disconnected")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := exec(ctx, client, strings.Fields(line)); quit {
				return
			}
		}
	}
}

// dial connects to the host, retrying while it is not up.
func dial(ctx context.Context, address string, log *logger.Logger) (*signal.Client, error) {
	retry := network.NewRetry()
	for {
		dctx, cancel := context.WithTimeout(ctx, *timeout)
		client, err := signal.Dial(dctx, address, log)
		cancel()
		if err == nil {
			return client, nil
		}
		log.Warn().Err(err).Msgf("no host, retry in %v", retry.Time())
		if !retry.Fail(ctx) {
			return nil, ctx.Err()
		}
	}
}

func exec(ctx context.Context, client *signal.Client, args []string) (quit bool) {
	if len(args) == 0 {
		return
	}
	var (
		t       api.PT
		payload any
	)
	switch args[0] {
	case "start":
		t = api.Start
	case "stop":
		t = api.Stop
	case "state":
		t = api.GetState
	case "answer":
		if len(args) < 2 {
			fmt.Println("answer <file>")
			return
		}
		data, err := goos.ReadFile(args[1])
		if err != nil {
			fmt.Println(err)
			return
		}
		t, payload = api.SetRemoteDescription, api.RemoteDescriptionRequest{Sdp: string(data)}
	case "candidate":
		if len(args) < 4 {
			fmt.Println("candidate <mid> <index> <candidate>")
			return
		}
		index, err := strconv.ParseUint(args[2], 10, 16)
		if err != nil {
			fmt.Println("bad index:", err)
			return
		}
		t = api.AddIceCandidate
		payload = api.IceCandidateRequest{Mid: args[1], Index: uint16(index), Candidate: strings.Join(args[3:], " ")}
	case "ice":
		printIce(ctx)
		return
	case "quit", "exit":
		return true
	default:
		fmt.Println(usage)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	res, err := client.Call(cctx, t, payload)
	if err != nil {
		fmt.Printf("%v: %v\n", t, err)
		return
	}
	switch {
	case !res.Ok:
		fmt.Printf("%v: %v (%v)\n", t, res.Code, res.Error)
	case res.State != "":
		fmt.Printf("%v: %v\n", t, res.State)
	default:
		fmt.Printf("%v: ok\n", t)
	}
	return
}

func printEvents(client *signal.Client) {
	for {
		select {
		case in := <-client.Events():
			printEvent(in)
		case <-client.Done():
			return
		}
	}
}

func printEvent(in api.In) {
	switch in.T {
	case api.OfferGenerated:
		if sdp, err := api.UnwrapChecked[api.SdpMessage](in.Payload); err == nil {
			fmt.Printf("<< offer\n%v\n", sdp.Body)
			return
		}
	case api.CandidateGenerated:
		if c, err := api.UnwrapChecked[api.IceCandidate](in.Payload); err == nil {
			fmt.Printf("<< candidate %v %v %v\n", c.SdpMid, c.SdpMLineIndex, c.Candidate)
			return
		}
	case api.StateChanged:
		if ev, err := api.UnwrapChecked[api.StateChangedEvent](in.Payload); err == nil {
			fmt.Printf("<< state %v\n", ev.State)
			return
		}
	case api.SessionFailed:
		if ev, err := api.UnwrapChecked[api.FailedEvent](in.Payload); err == nil {
			fmt.Printf("<< failed %v %v\n", ev.Reason, ev.Error)
			return
		}
	}
	fmt.Printf("<< %v %s\n", in.T, in.Payload)
}

func printIce(ctx context.Context) {
	u, err := url.Parse(*address)
	if err != nil {
		fmt.Println(err)
		return
	}
	u.Scheme = strings.Replace(u.Scheme, "ws", "http", 1)
	u.Path = strings.TrimSuffix(u.Path, "/signal") + "/ice"

	rq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		fmt.Println(err)
		return
	}
	rs, err := http.DefaultClient.Do(rq)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer func() { _ = rs.Body.Close() }()
	data, err := io.ReadAll(rs.Body)
	if err != nil {
		fmt.Println(err)
		return
	}
	var servers []map[string]any
	if err = json.Unmarshal(data, &servers); err != nil {
		fmt.Printf("bad ICE list: %v\n", err)
		return
	}
	for _, s := range servers {
		fmt.Printf("%v\n", s["urls"])
	}
}
