package webrtc

import (
	"encoding/json"
	"strings"

	"github.com/castline/screencast/pkg/config"
)

// Replacement substitutes {From} placeholders in the ICE server hosts,
// e.g. {server-ip} with the address the client has reached us at.
type Replacement struct {
	From string
	To   string
}

type iceServer struct {
	URLs       string `json:"urls"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

// ToJson renders the ICE servers as a JS RTCIceServer list.
// Credentials go only with the relay servers.
func ToJson(iceServers []config.IceServer, replacements ...Replacement) string {
	list := make([]iceServer, 0, len(iceServers))
	for _, ice := range iceServers {
		url := ice.URL()
		for _, replacement := range replacements {
			url = strings.ReplaceAll(url, "{"+replacement.From+"}", replacement.To)
		}
		server := iceServer{URLs: url}
		if ice.IsRelay() {
			server.Username, server.Credential = ice.Username, ice.Credential
		}
		list = append(list, server)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(data)
}
