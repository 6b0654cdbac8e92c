package fieldbus

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/scythe-robotics/armctl/utils"
)

// PrimitiveType is the declared type of an endpoint value.
type PrimitiveType string

// Supported endpoint types.
const (
	TypeBool     PrimitiveType = "bool"
	TypeUint8    PrimitiveType = "uint8"
	TypeInt8     PrimitiveType = "int8"
	TypeUint16   PrimitiveType = "uint16"
	TypeInt16    PrimitiveType = "int16"
	TypeUint32   PrimitiveType = "uint32"
	TypeInt32    PrimitiveType = "int32"
	TypeUint64   PrimitiveType = "uint64"
	TypeInt64    PrimitiveType = "int64"
	TypeFloat    PrimitiveType = "float"
	TypeFunction PrimitiveType = "function"
)

// requestHeaderLen is opcode, endpoint id and one reserved byte.
const requestHeaderLen = 4

// Width is the encoded size of a value of type t.
func (t PrimitiveType) Width() (int, error) {
	switch t {
	case TypeBool, TypeUint8, TypeInt8:
		return 1, nil
	case TypeUint16, TypeInt16:
		return 2, nil
	case TypeUint32, TypeInt32, TypeFloat:
		return 4, nil
	case TypeUint64, TypeInt64:
		return 8, nil
	default:
		return 0, errors.Errorf("unsupported endpoint type %q", t)
	}
}

// EncodeValue converts any Go number or bool into the little-endian layout of t.
func EncodeValue(t PrimitiveType, value interface{}) ([]byte, error) {
	width, err := t.Width()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, width)
	le := binary.LittleEndian

	switch t {
	case TypeBool:
		v, err := cast.ToBoolE(value)
		if err != nil {
			return nil, err
		}
		if v {
			buf[0] = 1
		}
	case TypeUint8:
		v, err := toUnsigned(t, value, math.MaxUint8)
		if err != nil {
			return nil, err
		}
		buf[0] = uint8(v)
	case TypeInt8:
		v, err := toSigned(t, value, math.MinInt8, math.MaxInt8)
		if err != nil {
			return nil, err
		}
		buf[0] = byte(int8(v))
	case TypeUint16:
		v, err := toUnsigned(t, value, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		le.PutUint16(buf, uint16(v))
	case TypeInt16:
		v, err := toSigned(t, value, math.MinInt16, math.MaxInt16)
		if err != nil {
			return nil, err
		}
		le.PutUint16(buf, uint16(int16(v)))
	case TypeUint32:
		v, err := toUnsigned(t, value, math.MaxUint32)
		if err != nil {
			return nil, err
		}
		le.PutUint32(buf, uint32(v))
	case TypeInt32:
		v, err := toSigned(t, value, math.MinInt32, math.MaxInt32)
		if err != nil {
			return nil, err
		}
		le.PutUint32(buf, uint32(int32(v)))
	case TypeUint64:
		v, err := cast.ToUint64E(value)
		if err != nil {
			return nil, err
		}
		le.PutUint64(buf, v)
	case TypeInt64:
		v, err := cast.ToInt64E(value)
		if err != nil {
			return nil, err
		}
		le.PutUint64(buf, uint64(v))
	case TypeFloat:
		v, err := cast.ToFloat32E(value)
		if err != nil {
			return nil, err
		}
		le.PutUint32(buf, math.Float32bits(v))
	case TypeFunction:
	}
	return buf, nil
}

// toSigned converts value to an int64 and rejects it if it does not fit in t.
func toSigned(t PrimitiveType, value interface{}, low, high int64) (int64, error) {
	v, err := cast.ToInt64E(value)
	if err != nil {
		return 0, err
	}
	if v < low || v > high {
		return 0, utils.NewOutOfRangeError(string(t)+" value", float64(v), float64(low), float64(high))
	}
	return v, nil
}

// toUnsigned converts value to a uint64 and rejects it if it does not fit in t.
// Negative values fail in the conversion itself.
func toUnsigned(t PrimitiveType, value interface{}, high uint64) (uint64, error) {
	v, err := cast.ToUint64E(value)
	if err != nil {
		return 0, err
	}
	if v > high {
		return 0, utils.NewOutOfRangeError(string(t)+" value", float64(v), 0, float64(high))
	}
	return v, nil
}

// DecodeValue reads a value of type t from the front of b. The result has the Go
// type matching t: bool, uint8 ... int64, or float32 for TypeFloat.
func DecodeValue(t PrimitiveType, b []byte) (interface{}, error) {
	width, err := t.Width()
	if err != nil {
		return nil, err
	}
	if len(b) < width {
		return nil, errors.Wrapf(ErrMalformedReply, "%s needs %d bytes, have %d", t, width, len(b))
	}
	le := binary.LittleEndian

	switch t {
	case TypeBool:
		return b[0] != 0, nil
	case TypeUint8:
		return b[0], nil
	case TypeInt8:
		return int8(b[0]), nil
	case TypeUint16:
		return le.Uint16(b), nil
	case TypeInt16:
		return int16(le.Uint16(b)), nil
	case TypeUint32:
		return le.Uint32(b), nil
	case TypeInt32:
		return int32(le.Uint32(b)), nil
	case TypeUint64:
		return le.Uint64(b), nil
	case TypeInt64:
		return int64(le.Uint64(b)), nil
	case TypeFloat:
		return math.Float32frombits(le.Uint32(b)), nil
	default:
		return nil, errors.Errorf("unsupported endpoint type %q", t)
	}
}

// ToFloat64 converts a decoded endpoint value into a float64.
func ToFloat64(value interface{}) (float64, error) {
	return cast.ToFloat64E(value)
}

// EncodeRequest lays out an endpoint request: opcode, little-endian endpoint id, a
// reserved byte, then the optional value.
func EncodeRequest(op uint8, endpointID uint16, value []byte) ([]byte, error) {
	if requestHeaderLen+len(value) > MaxPayload {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "endpoint %d with a %d byte value", endpointID, len(value))
	}
	buf := make([]byte, requestHeaderLen, requestHeaderLen+len(value))
	buf[0] = op
	binary.LittleEndian.PutUint16(buf[1:3], endpointID)
	return append(buf, value...), nil
}

// DecodeReply splits a reply frame into its opcode, endpoint id and value bytes.
func DecodeReply(data []byte) (uint8, uint16, []byte, error) {
	if len(data) < requestHeaderLen {
		return 0, 0, nil, errors.Wrapf(ErrMalformedReply, "reply has %d bytes", len(data))
	}
	return data[0], binary.LittleEndian.Uint16(data[1:3]), data[requestHeaderLen:], nil
}
