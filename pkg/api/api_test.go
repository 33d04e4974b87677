package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketKinds(t *testing.T) {
	for _, pt := range []PT{Start, SetRemoteDescription, AddIceCandidate, Stop, GetState} {
		assert.True(t, pt.IsCommand(), pt.String())
		assert.False(t, pt.IsEvent(), pt.String())
	}
	for _, pt := range []PT{OfferGenerated, CandidateGenerated, StateChanged, SessionFailed} {
		assert.True(t, pt.IsEvent(), pt.String())
		assert.False(t, pt.IsCommand(), pt.String())
	}
	assert.False(t, Result.IsCommand())
	assert.False(t, Result.IsEvent())
	assert.Equal(t, "Unknown", PT(77).String())
}

func TestTwoPassDecode(t *testing.T) {
	raw := `{"id":"x1","t":3,"p":{"mid":"0","index":0,"candidate":"candidate:1 1 udp 2130706431 10.0.0.2 50000 typ host"}}`

	var in In
	require.NoError(t, json.Unmarshal([]byte(raw), &in))
	assert.Equal(t, AddIceCandidate, in.T)
	assert.Equal(t, "x1", in.Id)

	rq, err := UnwrapChecked[IceCandidateRequest](in.Payload)
	require.NoError(t, err)
	assert.Equal(t, "0", rq.Mid)
	assert.Contains(t, rq.Candidate, "typ host")
}

func TestUnwrapCheckedMalformed(t *testing.T) {
	_, err := UnwrapChecked[RemoteDescriptionRequest](nil)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = UnwrapChecked[RemoteDescriptionRequest]([]byte(`{"sdp":`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEventFieldNames(t *testing.T) {
	data, err := json.Marshal(Out{T: CandidateGenerated, Payload: IceCandidate{Candidate: "c", SdpMid: "0", SdpMLineIndex: 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":102,"p":{"candidate":"c","sdpMid":"0","sdpMLineIndex":1}}`, string(data))

	data, err = json.Marshal(Out{T: OfferGenerated, Payload: SdpMessage{Kind: SdpOffer, Body: "v=0"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":101,"p":{"type":"offer","sdp":"v=0"}}`, string(data))
}
