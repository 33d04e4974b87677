package h264

import (
	"testing"

	"github.com/castline/screencast/pkg/config"
	"github.com/gen2brain/x264-go"
)

func TestOptions(t *testing.T) {
	conf := config.H264{Preset: "veryfast", Profile: "baseline", Tune: "zerolatency", LogLevel: 1}
	o := Options(1280, 720, 30, conf)
	if o.Width != 1280 || o.Height != 720 || o.FrameRate != 30 {
		t.Errorf("wrong frame options %+v", o)
	}
	if o.Preset != "veryfast" || o.Profile != "baseline" || o.Tune != "zerolatency" {
		t.Errorf("wrong codec options %+v", o)
	}
	if o.LogLevel != x264.LogWarning {
		t.Errorf("wrong log level %v", o.LogLevel)
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		in   int
		want int32
	}{
		{in: -10, want: x264.LogNone},
		{in: -1, want: x264.LogNone},
		{in: 0, want: x264.LogError},
		{in: 3, want: x264.LogDebug},
		{in: 42, want: x264.LogDebug},
	}
	for _, test := range tests {
		if got := logLevel(test.in); got != test.want {
			t.Errorf("log level %v: got %v, want %v", test.in, got, test.want)
		}
	}
}

func TestBadSize(t *testing.T) {
	for _, size := range [][2]int{{0, 720}, {1281, 720}, {1280, 721}} {
		if _, err := NewEncoder(size[0], size[1], 30, config.H264{}); err == nil {
			t.Errorf("expected an error for %v", size)
		}
	}
}
