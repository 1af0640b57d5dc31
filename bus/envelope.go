package bus

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/agentic-robotics/ros3/codec"
)

// Envelope is the unit of delivery: an encoded payload plus the
// metadata needed to route, order and decode it. Sequence numbers are
// monotonically increasing per publisher and never reused.
type Envelope struct {
	Topic       Topic
	Payload     []byte
	Format      codec.Format
	Sequence    uint64
	PublishedAt time.Time
}

// envelope wire layout, all integers little-endian:
//
//	[u32 topic_len][topic][u8 format][u64 sequence][u64 ts_nanos][u32 payload_len][payload]
const envelopeHeaderMin = 4 + 1 + 8 + 8 + 4

// MarshalBinary encodes the envelope in its CDR wire form.
func (e Envelope) MarshalBinary() ([]byte, error) {
	topic := []byte(e.Topic)
	buf := make([]byte, 0, envelopeHeaderMin+len(topic)+len(e.Payload))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(topic)))
	buf = append(buf, topic...)
	buf = append(buf, byte(e.Format))
	buf = binary.LittleEndian.AppendUint64(buf, e.Sequence)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.PublishedAt.UnixNano()))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Payload)))
	buf = append(buf, e.Payload...)
	return buf, nil
}

// UnmarshalBinary decodes the CDR wire form. Truncated buffers yield a
// codec.DecodeError with KindTruncated.
func (e *Envelope) UnmarshalBinary(data []byte) error {
	truncated := func(what string) error {
		return &codec.DecodeError{
			Format: codec.FormatCDR,
			Kind:   codec.KindTruncated,
			Reason: "envelope: " + what,
		}
	}

	if len(data) < 4 {
		return truncated("topic length")
	}
	topicLen := int(binary.LittleEndian.Uint32(data))
	data = data[4:]
	if len(data) < topicLen {
		return truncated("topic bytes")
	}
	topic, err := NewTopic(string(data[:topicLen]))
	if err != nil {
		return &codec.DecodeError{Format: codec.FormatCDR, Kind: codec.KindMalformed, Cause: err}
	}
	data = data[topicLen:]

	if len(data) < 1+8+8+4 {
		return truncated("header")
	}
	format := codec.Format(data[0])
	seq := binary.LittleEndian.Uint64(data[1:])
	nanos := binary.LittleEndian.Uint64(data[9:])
	payloadLen := int(binary.LittleEndian.Uint32(data[17:]))
	data = data[21:]
	if len(data) < payloadLen {
		return truncated("payload bytes")
	}
	if len(data) != payloadLen {
		return &codec.DecodeError{
			Format: codec.FormatCDR,
			Kind:   codec.KindMalformed,
			Reason: fmt.Sprintf("envelope: %d trailing bytes", len(data)-payloadLen),
		}
	}

	e.Topic = topic
	e.Format = format
	e.Sequence = seq
	e.PublishedAt = time.Unix(0, int64(nanos)).UTC()
	e.Payload = make([]byte, payloadLen)
	copy(e.Payload, data)
	return nil
}

var envelopeJSON = []byte(`{"type":"envelope"}`)

// MarshalJSON renders the envelope for debug and interop surfaces.
// The payload travels base64-encoded.
func (e Envelope) MarshalJSON() ([]byte, error) {
	result := envelopeJSON

	var err error
	result, err = sjson.SetBytes(result, "topic", e.Topic.String())
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "format", e.Format.String())
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "sequence", e.Sequence)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "published_at", e.PublishedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "payload", base64.StdEncoding.EncodeToString(e.Payload))
	return result, err
}

// UnmarshalJSON parses the debug/interop form produced by MarshalJSON.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != "envelope" {
		return fmt.Errorf("missing or invalid type, expected 'envelope'")
	}

	topicRes := gjson.GetBytes(data, "topic")
	if !topicRes.Exists() {
		return fmt.Errorf("missing required field 'topic'")
	}
	topic, err := NewTopic(topicRes.String())
	if err != nil {
		return fmt.Errorf("invalid topic: %w", err)
	}
	e.Topic = topic

	formatRes := gjson.GetBytes(data, "format")
	if !formatRes.Exists() {
		return fmt.Errorf("missing required field 'format'")
	}
	format, err := codec.ParseFormat(formatRes.String())
	if err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}
	e.Format = format

	e.Sequence = gjson.GetBytes(data, "sequence").Uint()

	if ts := gjson.GetBytes(data, "published_at"); ts.Exists() {
		parsed, err := time.Parse(time.RFC3339Nano, ts.String())
		if err != nil {
			return fmt.Errorf("invalid published_at: %w", err)
		}
		e.PublishedAt = parsed
	}

	if payload := gjson.GetBytes(data, "payload"); payload.Exists() {
		raw, err := base64.StdEncoding.DecodeString(payload.String())
		if err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
		e.Payload = raw
	}

	return nil
}
