// Package api defines the signaling API between a command issuer and the session host.
//
// Each API call (command, event or result) is a JSON-encoded "packet" of the following structure:
//
//	id - (optional) a packet id, results carry the id of the command they answer;
//	 t - (required) one of the predefined unique packet types;
//	 p - (optional) packet payload with arbitrary data.
//
// Commands go from an issuer to the host and always get exactly one Result packet back.
// Events go from the host to every attached issuer without any reply.
//
// Example:
//
//	{"id":"cmh2p7rdrc3ifu3jn6bg","t":2,"p":{"sdp":"v=0\r\no=- 4611731400430051336 2 IN IP4 127.0.0.1\r\n..."}}
//	{"id":"cmh2p7rdrc3ifu3jn6bg","t":200,"p":{"ok":true}}
package api

import (
	"encoding/json"
	"errors"
)

type PT uint8

type In struct {
	Id      string          `json:"id,omitempty"`
	T       PT              `json:"t"`
	Payload json.RawMessage `json:"p,omitempty"` // should be json.RawMessage for 2-pass unmarshal
}

type Out struct {
	Id      string `json:"id,omitempty"`
	T       PT     `json:"t"`
	Payload any    `json:"p,omitempty"`
}

// Packet codes:
//
//	x - commands
//	1xx - events
//	2xx - results
const (
	Start                PT = 1
	SetRemoteDescription PT = 2
	AddIceCandidate      PT = 3
	Stop                 PT = 4
	GetState             PT = 5

	OfferGenerated     PT = 101
	CandidateGenerated PT = 102
	StateChanged       PT = 103
	SessionFailed      PT = 104

	Result PT = 200
)

func (p PT) String() string {
	switch p {
	case Start:
		return "Start"
	case SetRemoteDescription:
		return "SetRemoteDescription"
	case AddIceCandidate:
		return "AddIceCandidate"
	case Stop:
		return "Stop"
	case GetState:
		return "GetState"
	case OfferGenerated:
		return "OfferGenerated"
	case CandidateGenerated:
		return "CandidateGenerated"
	case StateChanged:
		return "StateChanged"
	case SessionFailed:
		return "SessionFailed"
	case Result:
		return "Result"
	default:
		return "Unknown"
	}
}

func (p PT) IsCommand() bool { return p > 0 && p < 100 }
func (p PT) IsEvent() bool   { return p > 100 && p < 200 }

// Result codes
const (
	OK                = "ok"
	CodeNotReady      = "not_ready"
	CodeTerminated    = "terminated"
	CodeAlreadyActive = "already_started"
	CodeAnswerApplied = "answer_applied"
	CodeRejected      = "candidate_rejected"
	CodeMalformed     = "malformed"
	CodeUnknown       = "unknown_command"
	CodeInternal      = "internal"
)

var ErrMalformed = errors.New("malformed")

type (
	// SdpMessage is a session description of the offer or answer kind.
	SdpMessage struct {
		Kind string `json:"type"`
		Body string `json:"sdp"`
	}
	RemoteDescriptionRequest struct {
		Sdp string `json:"sdp"`
	}
	IceCandidateRequest struct {
		Mid       string `json:"mid"`
		Index     uint16 `json:"index"`
		Candidate string `json:"candidate"`
	}
	IceCandidate struct {
		Candidate     string `json:"candidate"`
		SdpMid        string `json:"sdpMid"`
		SdpMLineIndex uint16 `json:"sdpMLineIndex"`
	}
	StateChangedEvent struct {
		State string `json:"state"`
	}
	FailedEvent struct {
		Reason string `json:"reason"`
		Error  string `json:"error,omitempty"`
	}
	ResultResponse struct {
		Ok    bool   `json:"ok"`
		Code  string `json:"code,omitempty"`
		Error string `json:"error,omitempty"`
		State string `json:"state,omitempty"`
	}
)

const (
	SdpOffer  = "offer"
	SdpAnswer = "answer"
)

func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}

// UnwrapChecked decodes a packet payload into T.
// Empty or broken payloads return ErrMalformed.
func UnwrapChecked[T any](data []byte) (*T, error) {
	if len(data) == 0 {
		return nil, ErrMalformed
	}
	out := Unwrap[T](data)
	if out == nil {
		return nil, ErrMalformed
	}
	return out, nil
}
