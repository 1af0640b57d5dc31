package codec

import "fmt"

// RawBytes marks a payload that is already in its wire form. Decoding
// with the Raw codec aliases the envelope buffer, so the view is only
// valid as long as the envelope is and must not be mutated.
type RawBytes []byte

type rawCodec struct{}

// Raw returns the zero-copy codec for FormatRaw.
func Raw() Codec { return rawCodec{} }

func (rawCodec) Format() Format { return FormatRaw }

func (rawCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case RawBytes:
		return b, nil
	case []byte:
		return b, nil
	default:
		return nil, &EncodeError{
			Format: FormatRaw,
			Reason: fmt.Sprintf("raw codec requires []byte, got %T", v),
		}
	}
}

// Unmarshal installs data into the target without copying. The target
// holds a borrowed view of the caller's buffer.
func (rawCodec) Unmarshal(data []byte, v any) error {
	switch out := v.(type) {
	case *RawBytes:
		*out = data
		return nil
	case *[]byte:
		*out = data
		return nil
	default:
		return &DecodeError{
			Format: FormatRaw,
			Kind:   KindMalformed,
			Reason: fmt.Sprintf("raw codec requires *[]byte, got %T", v),
		}
	}
}
