package codec

import (
	json "github.com/goccy/go-json"
)

type jsonCodec struct{}

// JSON returns the codec for FormatJSON.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Format() Format { return FormatJSON }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &EncodeError{Format: FormatJSON, Reason: "marshal failed", Cause: err}
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &DecodeError{Format: FormatJSON, Kind: KindMalformed, Cause: err}
	}
	return nil
}
