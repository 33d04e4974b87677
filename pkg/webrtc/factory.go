package webrtc

import (
	"github.com/castline/screencast/pkg/config"
	"github.com/castline/screencast/pkg/logger"
	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v3"
)

type ApiFactory struct {
	api  *pion.API
	conf pion.Configuration
}

type ModApiFun func(m *pion.MediaEngine, i *interceptor.Registry, s *pion.SettingEngine)

func NewApiFactory(conf config.Webrtc, audio bool, log *logger.Logger, mod ModApiFun) (api *ApiFactory, err error) {
	m := &pion.MediaEngine{}
	if err = RegisterCodecs(m, audio); err != nil {
		return
	}
	i := &interceptor.Registry{}
	if !conf.DisableDefaultInterceptors {
		if err = pion.RegisterDefaultInterceptors(m, i); err != nil {
			return
		}
	}
	customLogger := logger.NewPionLogger(log, conf.LogLevel)
	s := pion.SettingEngine{LoggerFactory: customLogger}
	if conf.HasPortRange() {
		if err = s.SetEphemeralUDPPortRange(conf.IcePorts.Min, conf.IcePorts.Max); err != nil {
			return
		}
	}
	if conf.HasIceIpMap() {
		s.SetNAT1To1IPs([]string{conf.IceIpMap}, pion.ICECandidateTypeHost)
		log.Info().Msgf("The NAT mapping is active for %v", conf.IceIpMap)
	}

	if mod != nil {
		mod(m, i, &s)
	}

	c := pion.Configuration{ICEServers: []pion.ICEServer{}}
	for _, server := range conf.IceServers {
		ice := pion.ICEServer{URLs: []string{server.URL()}}
		if server.IsRelay() {
			ice.Username = server.Username
			ice.Credential = server.Credential
			ice.CredentialType = pion.ICECredentialTypePassword
		}
		c.ICEServers = append(c.ICEServers, ice)
	}

	return &ApiFactory{
		api:  pion.NewAPI(pion.WithMediaEngine(m), pion.WithInterceptorRegistry(i), pion.WithSettingEngine(s)),
		conf: c,
	}, err
}

func (a *ApiFactory) NewPeer() (*pion.PeerConnection, error) {
	return a.api.NewPeerConnection(a.conf)
}

// RegisterCodecs registers H264 for the video and, optionally, Opus.
func RegisterCodecs(m *pion.MediaEngine, audio bool) error {
	if audio {
		opus := pion.RTPCodecParameters{
			RTPCodecCapability: pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			PayloadType:        111,
		}
		if err := m.RegisterCodec(opus, pion.RTPCodecTypeAudio); err != nil {
			return err
		}
	}

	videoRTCPFeedback := []pion.RTCPFeedback{{Type: "goog-remb"}, {Type: "ccm", Parameter: "fir"}, {Type: "nack"}, {Type: "nack", Parameter: "pli"}}
	for _, codec := range []pion.RTPCodecParameters{
		{
			RTPCodecCapability: pion.RTPCodecCapability{MimeType: pion.MimeTypeH264, ClockRate: 90000, SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f", RTCPFeedback: videoRTCPFeedback},
			PayloadType:        102,
		},
		{
			RTPCodecCapability: pion.RTPCodecCapability{MimeType: pion.MimeTypeH264, ClockRate: 90000, SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f", RTCPFeedback: videoRTCPFeedback},
			PayloadType:        125,
		},
		{
			RTPCodecCapability: pion.RTPCodecCapability{MimeType: pion.MimeTypeH264, ClockRate: 90000, SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=0;profile-level-id=42001f", RTCPFeedback: videoRTCPFeedback},
			PayloadType:        127,
		},
	} {
		if err := m.RegisterCodec(codec, pion.RTPCodecTypeVideo); err != nil {
			return err
		}
	}
	return nil
}
