package rpc

import (
	"encoding/json"
	"testing"

	"github.com/nalgeon/be"
)

type overloadTarget struct{}

func (overloadTarget) Combine(a string) (string, error)         { return "one:" + a, nil }
func (overloadTarget) CombineTwo(a string, b string) (string, error) { return "two:" + a + b, nil }

type structParamTarget struct{}

type greetArgs struct {
	Name   string `json:"name"`
	Suffix string `json:"suffix"`
}

func (structParamTarget) Greet(args greetArgs) (string, error) {
	return args.Name + args.Suffix, nil
}

func TestBindPositionalArrayParams(t *testing.T) {
	codec := newSerializer(nil)
	entry := newRegistry(overloadTarget{}).candidates("CombineTwo")

	bound, ok := bind(entry, json.RawMessage(`["a","b"]`), codec)
	be.True(t, ok)
	res := bound.entry.Receiver.Call(bound.args)
	be.Equal(t, res[0].String(), "two:ab")
}

func TestBindNamedObjectParamsToSingleStructParameter(t *testing.T) {
	codec := newSerializer(nil)
	entries := newRegistry(structParamTarget{}).candidates("Greet")

	bound, ok := bind(entries, json.RawMessage(`{"name":"Ada","suffix":"!"}`), codec)
	be.True(t, ok)
	res := bound.entry.Receiver.Call(bound.args)
	be.Equal(t, res[0].String(), "Ada!")
}

func TestBindAbsentParamsTreatedAsZeroArguments(t *testing.T) {
	codec := newSerializer(nil)

	entries := newRegistry(overloadTarget{}).candidates("Combine")
	// Combine(a string) requires one argument; absent params supplies zero.
	_, ok := bind(entries, json.RawMessage(``), codec)
	be.Equal(t, ok, false)
}

func TestBindAbsentParamsBindsZeroArityCandidate(t *testing.T) {
	codec := newSerializer(nil)
	entries := newRegistry(nilaryMethodHolder{}).candidates("Nothing")

	_, ok := bind(entries, json.RawMessage(``), codec)
	be.True(t, ok)
}

type nullableArgTarget struct{}

func (nullableArgTarget) Accept(v any) (any, error) { return v, nil }

func TestBindNullAcceptedForNilableParam(t *testing.T) {
	codec := newSerializer(nil)
	entries := newRegistry(nullableArgTarget{}).candidates("Accept")

	bound, ok := bind(entries, json.RawMessage(`null`), codec)
	be.True(t, ok)
	res := bound.entry.Receiver.Call(bound.args)
	be.Equal(t, res[0].IsNil(), true)
}

func TestBindZeroArityCandidateRejectsNullParams(t *testing.T) {
	entries := newRegistry(nilaryMethodHolder{}).candidates("Nothing")
	codec := newSerializer(nil)
	_, ok := bind(entries, json.RawMessage(`null`), codec)
	be.Equal(t, ok, false)
}

type nilaryMethodHolder struct{}

func (nilaryMethodHolder) Nothing() (any, error) { return nil, nil }

func TestBindPicksFirstCandidateThatDeserializes(t *testing.T) {
	codec := newSerializer(nil)
	var candidates []*methodEntry
	candidates = append(candidates, newRegistry(overloadTarget{}).candidates("Combine")...)
	candidates = append(candidates, newRegistry(overloadTarget{}).candidates("CombineTwo")...)

	bound, ok := bind(candidates, json.RawMessage(`["x","y"]`), codec)
	be.True(t, ok)
	be.Equal(t, bound.entry.Name, "CombineTwo")
}
