package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// cdrCodec implements a compact little-endian binary layout. Struct
// fields are written in declaration order with no padding. Strings,
// byte slices and general slices carry a u32 length prefix; fixed-size
// arrays and nested structs are written inline.
type cdrCodec struct{}

// CDR returns the codec for FormatCDR.
func CDR() Codec { return cdrCodec{} }

func (cdrCodec) Format() Format { return FormatCDR }

func (cdrCodec) Marshal(v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, &EncodeError{Format: FormatCDR, Reason: "nil value"}
		}
		rv = rv.Elem()
	}
	buf := make([]byte, 0, 64)
	buf, err := cdrAppend(buf, rv)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (cdrCodec) Unmarshal(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &DecodeError{Format: FormatCDR, Kind: KindMalformed, Reason: "target must be a non-nil pointer"}
	}
	rest, err := cdrRead(data, rv.Elem())
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return &DecodeError{Format: FormatCDR, Kind: KindMalformed, Reason: fmt.Sprintf("%d trailing bytes", len(rest))}
	}
	return nil
}

func cdrAppend(buf []byte, rv reflect.Value) ([]byte, error) {
	switch rv.Kind() {
	case reflect.Bool:
		b := byte(0)
		if rv.Bool() {
			b = 1
		}
		return append(buf, b), nil
	case reflect.Int8:
		return append(buf, byte(rv.Int())), nil
	case reflect.Uint8:
		return append(buf, byte(rv.Uint())), nil
	case reflect.Int16:
		return binary.LittleEndian.AppendUint16(buf, uint16(rv.Int())), nil
	case reflect.Uint16:
		return binary.LittleEndian.AppendUint16(buf, uint16(rv.Uint())), nil
	case reflect.Int32:
		return binary.LittleEndian.AppendUint32(buf, uint32(rv.Int())), nil
	case reflect.Uint32:
		return binary.LittleEndian.AppendUint32(buf, uint32(rv.Uint())), nil
	case reflect.Int, reflect.Int64:
		return binary.LittleEndian.AppendUint64(buf, uint64(rv.Int())), nil
	case reflect.Uint, reflect.Uint64:
		return binary.LittleEndian.AppendUint64(buf, rv.Uint()), nil
	case reflect.Float32:
		return binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(rv.Float()))), nil
	case reflect.Float64:
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(rv.Float())), nil
	case reflect.String:
		s := rv.String()
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		return append(buf, s...), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := rv.Bytes()
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b)))
			return append(buf, b...), nil
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(rv.Len()))
		var err error
		for i := 0; i < rv.Len(); i++ {
			if buf, err = cdrAppend(buf, rv.Index(i)); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case reflect.Array:
		var err error
		for i := 0; i < rv.Len(); i++ {
			if buf, err = cdrAppend(buf, rv.Index(i)); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case reflect.Struct:
		t := rv.Type()
		var err error
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if buf, err = cdrAppend(buf, rv.Field(i)); err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return nil, &EncodeError{
			Format: FormatCDR,
			Reason: fmt.Sprintf("unsupported kind %s", rv.Kind()),
		}
	}
}

func cdrRead(data []byte, rv reflect.Value) ([]byte, error) {
	truncated := func(want int) *DecodeError {
		return &DecodeError{
			Format: FormatCDR,
			Kind:   KindTruncated,
			Reason: fmt.Sprintf("need %d bytes, have %d", want, len(data)),
		}
	}

	switch rv.Kind() {
	case reflect.Bool:
		if len(data) < 1 {
			return nil, truncated(1)
		}
		rv.SetBool(data[0] != 0)
		return data[1:], nil
	case reflect.Int8:
		if len(data) < 1 {
			return nil, truncated(1)
		}
		rv.SetInt(int64(int8(data[0])))
		return data[1:], nil
	case reflect.Uint8:
		if len(data) < 1 {
			return nil, truncated(1)
		}
		rv.SetUint(uint64(data[0]))
		return data[1:], nil
	case reflect.Int16:
		if len(data) < 2 {
			return nil, truncated(2)
		}
		rv.SetInt(int64(int16(binary.LittleEndian.Uint16(data))))
		return data[2:], nil
	case reflect.Uint16:
		if len(data) < 2 {
			return nil, truncated(2)
		}
		rv.SetUint(uint64(binary.LittleEndian.Uint16(data)))
		return data[2:], nil
	case reflect.Int32:
		if len(data) < 4 {
			return nil, truncated(4)
		}
		rv.SetInt(int64(int32(binary.LittleEndian.Uint32(data))))
		return data[4:], nil
	case reflect.Uint32:
		if len(data) < 4 {
			return nil, truncated(4)
		}
		rv.SetUint(uint64(binary.LittleEndian.Uint32(data)))
		return data[4:], nil
	case reflect.Int, reflect.Int64:
		if len(data) < 8 {
			return nil, truncated(8)
		}
		rv.SetInt(int64(binary.LittleEndian.Uint64(data)))
		return data[8:], nil
	case reflect.Uint, reflect.Uint64:
		if len(data) < 8 {
			return nil, truncated(8)
		}
		rv.SetUint(binary.LittleEndian.Uint64(data))
		return data[8:], nil
	case reflect.Float32:
		if len(data) < 4 {
			return nil, truncated(4)
		}
		rv.SetFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(data))))
		return data[4:], nil
	case reflect.Float64:
		if len(data) < 8 {
			return nil, truncated(8)
		}
		rv.SetFloat(math.Float64frombits(binary.LittleEndian.Uint64(data)))
		return data[8:], nil
	case reflect.String:
		if len(data) < 4 {
			return nil, truncated(4)
		}
		n := int(binary.LittleEndian.Uint32(data))
		data = data[4:]
		if len(data) < n {
			return nil, truncated(n)
		}
		rv.SetString(string(data[:n]))
		return data[n:], nil
	case reflect.Slice:
		if len(data) < 4 {
			return nil, truncated(4)
		}
		n := int(binary.LittleEndian.Uint32(data))
		data = data[4:]
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if len(data) < n {
				return nil, truncated(n)
			}
			b := make([]byte, n)
			copy(b, data[:n])
			rv.SetBytes(b)
			return data[n:], nil
		}
		out := reflect.MakeSlice(rv.Type(), n, n)
		var err error
		for i := 0; i < n; i++ {
			if data, err = cdrRead(data, out.Index(i)); err != nil {
				return nil, err
			}
		}
		rv.Set(out)
		return data, nil
	case reflect.Array:
		var err error
		for i := 0; i < rv.Len(); i++ {
			if data, err = cdrRead(data, rv.Index(i)); err != nil {
				return nil, err
			}
		}
		return data, nil
	case reflect.Struct:
		t := rv.Type()
		var err error
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if data, err = cdrRead(data, rv.Field(i)); err != nil {
				return nil, err
			}
		}
		return data, nil
	default:
		return nil, &DecodeError{
			Format: FormatCDR,
			Kind:   KindMalformed,
			Reason: fmt.Sprintf("unsupported kind %s", rv.Kind()),
		}
	}
}
