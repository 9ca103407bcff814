package rpc

import (
	"context"
	"reflect"
	"strings"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// paramDescriptor describes one bindable, non-receiver, non-context
// parameter of a method entry. HasDefault marks a trailing parameter that
// may be omitted from a positional params array — Go has no language-level
// default parameter values, so an omitted trailing argument is bound to its
// declared type's zero value. Only pointer-kind parameters may carry
// HasDefault; see registry_test.go and DESIGN.md for why.
type paramDescriptor struct {
	Type       reflect.Type
	HasDefault bool
}

// methodEntry is one dispatchable method discovered on a target, or an
// Async-suffix alias of one.
type methodEntry struct {
	Name          string
	Receiver      reflect.Value
	Params        []paramDescriptor
	AcceptsCancel bool
	ReturnsValue  bool
	ReturnsError  bool
}

func (e *methodEntry) minArity() int {
	n := 0
	for _, p := range e.Params {
		if !p.HasDefault {
			n++
		}
	}
	return n
}

func (e *methodEntry) maxArity() int { return len(e.Params) }

// registry resolves external method names to every candidate methodEntry
// discovered on a target, built once by walking its reflect.Type at attach
// time (grounded on other_examples/4b7009e4_..._vsrpc-handler.go's
// NewHandler, generalized from "wrap one function" to "walk every exported
// method").
type registry struct {
	byName map[string][]*methodEntry
}

func newRegistry(target any) *registry {
	r := &registry{byName: make(map[string][]*methodEntry)}
	if target == nil {
		return r
	}

	v := reflect.ValueOf(target)
	t := v.Type()

	physical := make(map[string]bool, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		if m := t.Method(i); m.PkgPath == "" {
			physical[m.Name] = true
		}
	}

	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if m.PkgPath != "" {
			continue // unexported methods are never dispatchable
		}
		entry := buildEntry(v, m)
		if entry == nil {
			continue
		}
		r.add(m.Name, entry)

		// Name aliasing: a method ending in Async is additionally reachable
		// under its bare name, unless a method physically named that already
		// exists — in which case the physical method alone owns that name
		// and the alias is simply never created, so the two never collide.
		if alias, ok := strings.CutSuffix(m.Name, "Async"); ok && alias != "" && !physical[alias] {
			aliased := *entry
			aliased.Name = alias
			r.add(alias, &aliased)
		}
	}
	return r
}

func (r *registry) add(name string, e *methodEntry) {
	r.byName[name] = append(r.byName[name], e)
}

func (r *registry) candidates(name string) []*methodEntry {
	return r.byName[name]
}

// buildEntry inspects one method's signature. Go convention puts
// context.Context first (the CLR convention this is adapted from puts its
// cancellation-token parameter last instead — see DESIGN.md); a leading
// context.Context parameter is consumed by the dispatcher and is never part
// of the externally visible arity. The trailing return value, if present,
// must be exactly error; a method may return nothing, a single error, a
// single value, or (value, error).
func buildEntry(v reflect.Value, m reflect.Method) *methodEntry {
	bound := v.Method(m.Index)
	ft := bound.Type()
	numIn := ft.NumIn()

	acceptsCancel := numIn > 0 && ft.In(0) == contextType
	start := 0
	if acceptsCancel {
		start = 1
	}

	params := make([]paramDescriptor, 0, numIn-start)
	seenOptional := false
	for i := start; i < numIn; i++ {
		pt := ft.In(i)
		optional := pt.Kind() == reflect.Pointer
		if seenOptional && !optional {
			// A required parameter cannot follow an optional one: there
			// would be no way to express "omit only the earlier default."
			return nil
		}
		seenOptional = seenOptional || optional
		params = append(params, paramDescriptor{Type: pt, HasDefault: optional})
	}

	numOut := ft.NumOut()
	if numOut > 2 {
		return nil
	}
	var returnsValue, returnsError bool
	switch numOut {
	case 1:
		if ft.Out(0) == errorType {
			returnsError = true
		} else {
			returnsValue = true
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil
		}
		returnsValue, returnsError = true, true
	}

	return &methodEntry{
		Name:          m.Name,
		Receiver:      bound,
		Params:        params,
		AcceptsCancel: acceptsCancel,
		ReturnsValue:  returnsValue,
		ReturnsError:  returnsError,
	}
}
