package bus

import (
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/agentic-robotics/ros3/codec"
)

func sampleEnvelope() Envelope {
	return Envelope{
		Topic:       Topic("/robots/7/status"),
		Payload:     []byte{0x01, 0x02, 0x03, 0x04, 0x05},
		Format:      codec.FormatCDR,
		Sequence:    42,
		PublishedAt: time.Unix(1700000000, 123456789).UTC(),
	}
}

func TestEnvelopeWireRoundTrip(t *testing.T) {
	in := sampleEnvelope()

	data, err := in.MarshalBinary()
	require.NoError(t, err)

	// Header is fixed-size plus topic and payload bytes.
	assert.Len(t, data, envelopeHeaderMin+len(in.Topic)+len(in.Payload))

	var out Envelope
	require.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, in, out)
}

func TestEnvelopeWireLayout(t *testing.T) {
	env := sampleEnvelope()
	data, err := env.MarshalBinary()
	require.NoError(t, err)

	// Topic length leads, little-endian.
	topicLen := len(env.Topic)
	assert.Equal(t, []byte{byte(topicLen), 0, 0, 0}, data[:4])
	assert.Equal(t, string(env.Topic), string(data[4:4+topicLen]))
	// Format tag follows the topic bytes.
	assert.Equal(t, byte(codec.FormatCDR), data[4+topicLen])
}

func TestEnvelopeWireTruncated(t *testing.T) {
	env := sampleEnvelope()
	data, err := env.MarshalBinary()
	require.NoError(t, err)

	for _, cut := range []int{0, 2, 6, len(data) - len(env.Payload) - 1, len(data) - 1} {
		var out Envelope
		err := out.UnmarshalBinary(data[:cut])
		require.Error(t, err, "cut at %d", cut)

		var decErr *codec.DecodeError
		require.True(t, errors.As(err, &decErr), "cut at %d", cut)
		assert.Equal(t, codec.KindTruncated, decErr.Kind, "cut at %d", cut)
	}
}

func TestEnvelopeWireTrailingBytes(t *testing.T) {
	env := sampleEnvelope()
	data, err := env.MarshalBinary()
	require.NoError(t, err)

	var out Envelope
	err = out.UnmarshalBinary(append(data, 0xEE))
	require.Error(t, err)

	var decErr *codec.DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, codec.KindMalformed, decErr.Kind)
}

func TestEnvelopeWireBadTopic(t *testing.T) {
	bad := Envelope{Topic: Topic("/not//valid"), Payload: []byte{1}}
	data, err := bad.MarshalBinary()
	require.NoError(t, err)

	var out Envelope
	err = out.UnmarshalBinary(data)
	require.Error(t, err)

	var decErr *codec.DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, codec.KindMalformed, decErr.Kind)
}

func TestEnvelopeJSONRoundTrip(t *testing.T) {
	in := sampleEnvelope()

	data, err := json.Marshal(in)
	require.NoError(t, err)

	assert.Equal(t, "envelope", gjson.GetBytes(data, "type").String())
	assert.Equal(t, "/robots/7/status", gjson.GetBytes(data, "topic").String())
	assert.Equal(t, "cdr", gjson.GetBytes(data, "format").String())

	var out Envelope
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.Topic, out.Topic)
	assert.Equal(t, in.Format, out.Format)
	assert.Equal(t, in.Sequence, out.Sequence)
	assert.Equal(t, in.Payload, out.Payload)
	assert.True(t, in.PublishedAt.Equal(out.PublishedAt))
}

func TestEnvelopeJSONErrors(t *testing.T) {
	cases := map[string]string{
		"invalid json":  `{"type": "envelope"`,
		"wrong type":    `{"type": "robot_state"}`,
		"missing topic": `{"type": "envelope", "format": "cdr"}`,
		"bad topic":     `{"type": "envelope", "topic": "//", "format": "cdr"}`,
		"bad format":    `{"type": "envelope", "topic": "/a/b", "format": "protobuf"}`,
		"bad payload":   `{"type": "envelope", "topic": "/a/b", "format": "cdr", "payload": "!!"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var out Envelope
			assert.Error(t, out.UnmarshalJSON([]byte(raw)))
		})
	}
}
