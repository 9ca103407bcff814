package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
)

var errNullNotAllowed = errors.New("rpc: null is not assignable to a non-nilable parameter type")

// Converter lets a Peer's owner customize how specific Go types are
// marshaled/unmarshaled for method parameters and return values. Error data
// is always marshaled with encoding/json and never passes through a
// converter. Converters are never consulted for the envelope itself (jsonrpc,
// id, method, the params/result/error wrapper shape) — only for the payload
// values spliced into it, matching spec.md §4.4's envelope-immunity
// invariant.
type Converter interface {
	CanConvert(t reflect.Type) bool
	ToJSON(v any) (json.RawMessage, error)
	FromJSON(data json.RawMessage, out any) error
}

// serializer is the baseline-vs-converter-aware facade: stefanvanburen-cells
// already splices payload values into the envelope as raw json.RawMessage
// (see its response.Result field); this generalizes that splice point with
// an injectable converter lookup.
type serializer struct {
	converters []Converter
}

func newSerializer(converters []Converter) *serializer {
	return &serializer{converters: append([]Converter(nil), converters...)}
}

func (s *serializer) converterFor(t reflect.Type) Converter {
	for _, c := range s.converters {
		if c.CanConvert(t) {
			return c
		}
	}
	return nil
}

// marshalValue encodes a method's return value (or a call's outbound
// params) into the raw payload that gets spliced into the envelope.
func (s *serializer) marshalValue(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("null"), nil
	}
	t := reflect.TypeOf(v)
	if c := s.converterFor(t); c != nil {
		return c.ToJSON(v)
	}
	return json.Marshal(v)
}

// unmarshalValue decodes a payload value into out (a pointer).
func (s *serializer) unmarshalValue(data json.RawMessage, out any) error {
	t := reflect.TypeOf(out)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if c := s.converterFor(t); c != nil {
		return c.FromJSON(data, out)
	}
	return json.Unmarshal(data, out)
}

func isNullRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "null"
}

func isNilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return true
	}
	return false
}

// decodeValue binds one positional or named params value to a parameter's
// declared type, honoring the null-only-for-nilable-types rule from
// spec.md §4.3.
func (s *serializer) decodeValue(raw json.RawMessage, t reflect.Type) (reflect.Value, error) {
	if isNullRaw(raw) {
		if !isNilable(t) {
			return reflect.Value{}, errNullNotAllowed
		}
		return reflect.Zero(t), nil
	}
	ptr := reflect.New(t)
	if err := s.unmarshalValue(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}
