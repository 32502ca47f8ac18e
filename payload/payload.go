// Package payload turns typed values into the opaque bytes carried by a
// framesock frame and back. Codec failures never escape the helpers: Encode
// yields nil and Decode yields the zero value.
package payload

import (
	"bytes"
	"encoding/xml"
	"reflect"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
)

// ErrNotProtoMessage is returned by Proto for values that are not protobuf messages.
var ErrNotProtoMessage = errors.New("value is not a proto.Message")

// Codec marshals values to bytes and back.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// XML encodes values with encoding/xml.
type XML struct{}

func (XML) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := xml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errors.Wrap(err, "xml marshal")
	}
	return buf.Bytes(), nil
}

func (XML) Unmarshal(data []byte, v any) error {
	return errors.Wrap(xml.Unmarshal(data, v), "xml unmarshal")
}

// Proto encodes protobuf messages in the binary wire format.
type Proto struct{}

func (Proto) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, ErrNotProtoMessage
	}
	data, err := proto.Marshal(m)
	return data, errors.Wrap(err, "proto marshal")
}

func (Proto) Unmarshal(data []byte, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return ErrNotProtoMessage
	}
	return errors.Wrap(proto.Unmarshal(data, m), "proto unmarshal")
}

// Encode marshals v with c. It returns nil when v is a nil value or c fails.
func Encode[T any](c Codec, v T) []byte {
	if isNil(v) {
		return nil
	}
	data, err := c.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// Decode unmarshals data into a new T. It returns the zero T when data is
// nil or c fails. Protobuf message pointer types get a freshly allocated
// message.
func Decode[T any](c Codec, data []byte) T {
	var zero T
	if data == nil {
		return zero
	}

	if m, ok := any(zero).(proto.Message); ok {
		fresh := m.ProtoReflect().Type().New().Interface()
		if err := c.Unmarshal(data, fresh); err != nil {
			return zero
		}
		return fresh.(T)
	}

	var v T
	if err := c.Unmarshal(data, &v); err != nil {
		return zero
	}
	return v
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
