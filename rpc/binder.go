package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
)

var errArityMismatch = errors.New("rpc: argument count does not match candidate")

// bindResult is a methodEntry together with the reflect.Value arguments
// ready to pass to reflect.Value.Call (excluding a leading context.Context,
// which the dispatcher prepends itself).
type bindResult struct {
	entry *methodEntry
	args  []reflect.Value
}

// bind tries each candidate in registry order and returns the first one
// whose parameters the params payload can be deserialized into. This is the
// overload-disambiguation rule: no declared-type matching beyond "does
// deserialization succeed," grounded on
// other_examples/4b7009e4_..._vsrpc-handler.go's unmarshalArgs, extended here
// to try multiple candidates instead of assuming a single handler.
func bind(candidates []*methodEntry, params json.RawMessage, codec *serializer) (*bindResult, bool) {
	positional, named, ok := splitParams(params)
	if !ok {
		return nil, false
	}
	for _, entry := range candidates {
		var args []reflect.Value
		var err error
		if named != nil {
			args, err = bindNamed(entry, named, codec)
		} else {
			args, err = bindPositional(entry, positional, codec)
		}
		if err == nil {
			return &bindResult{entry: entry, args: args}, true
		}
	}
	return nil, false
}

// splitParams classifies a raw params value as positional or named. An
// absent params value means zero arguments (so a zero-arity candidate binds
// normally). An explicit JSON null params value, by contrast, is treated as
// the single-element positional list [null] — it names one argument whose
// value is null, so a zero-arity candidate correctly rejects it while a
// one-arg candidate taking a nilable type can still accept it. These two
// cases look identical in many JSON-RPC implementations but must not be
// conflated here, or a client's own no-args Invoke call (which every
// idiomatic Go caller expresses as an omitted/untyped-nil args value) would
// wrongly fail to bind against a zero-arity target method.
func splitParams(params json.RawMessage) (positional []json.RawMessage, named map[string]json.RawMessage, ok bool) {
	if len(params) == 0 {
		return []json.RawMessage{}, nil, true
	}
	trimmed := bytes.TrimSpace(params)
	if string(trimmed) == "null" {
		return []json.RawMessage{json.RawMessage("null")}, nil, true
	}
	switch trimmed[0] {
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, nil, false
		}
		return arr, nil, true
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, nil, false
		}
		return nil, obj, true
	default:
		return nil, nil, false
	}
}

func bindPositional(entry *methodEntry, positional []json.RawMessage, codec *serializer) ([]reflect.Value, error) {
	if len(positional) < entry.minArity() || len(positional) > entry.maxArity() {
		return nil, errArityMismatch
	}
	args := make([]reflect.Value, len(entry.Params))
	for i, p := range entry.Params {
		if i < len(positional) {
			v, err := codec.decodeValue(positional[i], p.Type)
			if err != nil {
				return nil, err
			}
			args[i] = v
		} else {
			args[i] = reflect.Zero(p.Type)
		}
	}
	return args, nil
}

// bindNamed supports object-shaped params for the one idiomatic Go mapping
// that doesn't require parameter names at runtime (which reflect cannot give
// us — see DESIGN.md): a candidate with exactly one parameter whose type is
// a struct or pointer-to-struct accepts the whole object directly, letting
// encoding/json's own field-name matching do what a per-parameter name table
// would otherwise have to do by hand. This is also exactly how every
// request-params type in the retrieval pack's LSP code is shaped.
func bindNamed(entry *methodEntry, named map[string]json.RawMessage, codec *serializer) ([]reflect.Value, error) {
	if len(entry.Params) != 1 {
		return nil, errArityMismatch
	}
	pt := entry.Params[0].Type
	underlying := pt
	if underlying.Kind() == reflect.Pointer {
		underlying = underlying.Elem()
	}
	if underlying.Kind() != reflect.Struct {
		return nil, errArityMismatch
	}

	raw, err := json.Marshal(named)
	if err != nil {
		return nil, err
	}
	v, err := codec.decodeValue(raw, pt)
	if err != nil {
		return nil, err
	}
	return []reflect.Value{v}, nil
}
