package config

import (
	"fmt"
	"strconv"
)

type Webrtc struct {
	DisableDefaultInterceptors bool
	IceServers                 []IceServer
	IcePorts                   struct {
		Min uint16
		Max uint16
	}
	IceIpMap string
	LogLevel int
}

// IceServer describes one STUN or TURN relay.
// The turn and turns schemes require credentials.
type IceServer struct {
	Scheme     string
	Host       string
	Port       int
	Username   string
	Credential string
}

func (w *Webrtc) HasPortRange() bool { return w.IcePorts.Min > 0 && w.IcePorts.Max > 0 }
func (w *Webrtc) HasIceIpMap() bool  { return w.IceIpMap != "" }

// URL returns the server in the scheme:host[:port] form.
func (s IceServer) URL() string {
	url := s.Scheme + ":" + s.Host
	if s.Port > 0 {
		url += ":" + strconv.Itoa(s.Port)
	}
	return url
}

func (s IceServer) IsRelay() bool { return s.Scheme == "turn" || s.Scheme == "turns" }

func (s IceServer) Validate() error {
	switch s.Scheme {
	case "stun", "stuns", "turn", "turns":
	default:
		return fmt.Errorf("ice server %q: unsupported scheme %q", s.Host, s.Scheme)
	}
	if s.Host == "" {
		return fmt.Errorf("ice server: empty host")
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("ice server %v: bad port", s.Host)
	}
	if s.IsRelay() && (s.Username == "" || s.Credential == "") {
		return fmt.Errorf("TURN or TURNS servers should have both username and credential: %v", s.URL())
	}
	return nil
}

func (w *Webrtc) Validate() error {
	for _, s := range w.IceServers {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if w.IcePorts.Min > w.IcePorts.Max {
		return fmt.Errorf("ice port range %v-%v is inverted", w.IcePorts.Min, w.IcePorts.Max)
	}
	return nil
}
