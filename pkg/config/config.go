package config

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"
)

const (
	ConsentPrompt = "prompt"
	ConsentAuto   = "auto"

	Landscape = "landscape"
	Portrait  = "portrait"
)

type Config struct {
	Debug      bool
	Capture    Capture
	Encoder    Encoder
	Engine     Engine
	Host       Host
	Monitoring Monitoring
	Server     Server
	Webrtc     Webrtc
}

type Capture struct {
	// Display is the index of the captured display.
	Display int
	// Consent is either prompt or auto.
	Consent string `default:"prompt"`
	// MaxFailures is the number of consecutive failed grabs
	// after which the capture is treated as revoked.
	MaxFailures int `default:"30"`
	Presets     map[string]Preset
}

type Preset struct {
	Width  int
	Height int
	Fps    int
}

func (p Preset) Valid() bool { return p.Width > 0 && p.Height > 0 && p.Fps > 0 }

type Encoder struct {
	H264 H264
}

type H264 struct {
	Preset   string `default:"veryfast"`
	Profile  string `default:"baseline"`
	Tune     string `default:"zerolatency"`
	LogLevel int
}

type Engine struct {
	// Audio adds an audio section into the offer.
	Audio bool
}

type Host struct {
	LockFile       string
	CommandTimeout time.Duration `default:"10s"`
	OutboundBuffer int           `default:"64"`
}

var DefaultPresets = map[string]Preset{
	Landscape: {Width: 1280, Height: 720, Fps: 30},
	Portrait:  {Width: 720, Height: 1280, Fps: 30},
}

// allows custom config path
var configPath string

// NewConfig loads the configuration from the default locations
// or the one set with the --conf flag.
func NewConfig() (conf Config, err error) {
	if err = LoadConfig(&conf, configPath); err != nil {
		return
	}
	conf.fixValues()
	err = conf.Validate()
	return
}

func (c *Config) WithFlags(fs *pflag.FlagSet) *Config {
	c.Server.WithFlags(fs)
	fs.BoolVarP(&c.Debug, "debug", "d", c.Debug, "Enable debug logs")
	fs.IntVar(&c.Capture.Display, "display", c.Capture.Display, "Captured display index")
	fs.StringVar(&c.Capture.Consent, "consent", c.Capture.Consent, "Capture consent mode: [prompt, auto]")
	fs.BoolVar(&c.Engine.Audio, "audio", c.Engine.Audio, "Offer an audio section")
	fs.IntVar(&c.Monitoring.Port, "monitoring.port", c.Monitoring.Port, "Monitoring server port")
	fs.StringVar(&c.Host.LockFile, "lock", c.Host.LockFile, "Single instance lock file path")
	fs.StringVarP(&configPath, "conf", "c", configPath, "Set custom configuration file path")
	return c
}

// ParseFlags loads the config file, the one from --conf if set,
// and puts the command line flags over it.
func ParseFlags(name string, args []string) (conf Config, err error) {
	pre := pflag.NewFlagSet(name, pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.StringVarP(&configPath, "conf", "c", configPath, "")
	_ = pre.Parse(args)

	if err = LoadConfig(&conf, configPath); err != nil {
		return
	}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	conf.WithFlags(fs)
	if err = fs.Parse(args); err != nil {
		return
	}
	conf.fixValues()
	err = conf.Validate()
	return
}

func (c *Config) fixValues() {
	if c.Capture.Presets == nil {
		c.Capture.Presets = map[string]Preset{}
	}
	for k, v := range DefaultPresets {
		if _, ok := c.Capture.Presets[k]; !ok {
			c.Capture.Presets[k] = v
		}
	}
	for i := range c.Webrtc.IceServers {
		if c.Webrtc.IceServers[i].Scheme == "" {
			c.Webrtc.IceServers[i].Scheme = "stun"
		}
	}
	if c.Host.CommandTimeout <= 0 {
		c.Host.CommandTimeout = 10 * time.Second
	}
}

func (c *Config) Validate() error {
	switch c.Capture.Consent {
	case ConsentPrompt, ConsentAuto:
	default:
		return fmt.Errorf("unknown consent mode %q", c.Capture.Consent)
	}
	if c.Capture.Display < 0 {
		return fmt.Errorf("bad display index %v", c.Capture.Display)
	}
	for _, k := range []string{Landscape, Portrait} {
		if p := c.Capture.Presets[k]; !p.Valid() {
			return fmt.Errorf("bad %v capture preset %+v", k, p)
		}
	}
	return c.Webrtc.Validate()
}
