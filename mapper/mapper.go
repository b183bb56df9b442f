// Package mapper implements the priority-ordered value<->string codec chain
// of TcpRest's Protocol V2: user mappers, collection-interface and
// auto-serialization mappers, and built-in primitive/string mappers.
package mapper

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/tcprest/tcprest/internal/errorutil"
	"github.com/tcprest/tcprest/internal/syncutil"
)

// Mapper converts a value to its textual wire form and back. Implementations
// must tolerate being asked to decode the empty string, and must never be
// handed a nil value directly by the codec (nil is represented by the "~"
// wire literal, handled above the mapper layer).
type Mapper interface {
	ToString(v any) (string, error)
	FromString(s string) (any, error)
}

// Func adapts a pair of plain functions to the Mapper interface.
type Func struct {
	To   func(v any) (string, error)
	From func(s string) (any, error)
}

func (f Func) ToString(v any) (string, error)   { return f.To(v) }
func (f Func) FromString(s string) (any, error) { return f.From(s) }

// ErrNoMapper is returned when no mapper in the chain, including the
// fallback-to-string tier, can handle a type. In practice this should never
// surface, since tier 6 accepts anything.
const ErrNoMapper errorutil.Error = "no mapper available"

// Registry holds user-registered mappers keyed by canonical type name, plus
// the built-in and auto-serialization tiers. Build one with NewRegistry: the
// zero value has no built-in mappers and no auto-serialization mapper.
type Registry struct {
	user    syncutil.RWMap[string, Mapper]
	auto    Mapper // tier 2/3: opaque object auto-serialization (CBOR)
	builtin syncutil.RWMap[string, Mapper]
}

// NewRegistry returns a Registry pre-populated with the built-in
// primitive/wrapper/String mappers and the CBOR-backed auto-serialization
// mapper.
func NewRegistry() *Registry {
	r := &Registry{auto: autoMapper{}}
	registerBuiltins(&r.builtin)
	return r
}

// AddMapper registers (or idempotently replaces) the user mapper for a
// canonical type name.
func (r *Registry) AddMapper(canonicalName string, m Mapper) {
	r.user.Set(canonicalName, m)
}

// DeleteMapper removes a user mapper.
func (r *Registry) DeleteMapper(canonicalName string) {
	r.user.Del(canonicalName)
}

// Resolve returns the mapper that should encode a value of canonical type
// name canonicalName and reflected type t, following §4.2's priority chain:
// user mapper, collection-interface auto-serialization, auto-serialization,
// built-in, fallback-to-string.
//
// preEncoded reports whether the mapper's ToString output is already final
// wire text (the CBOR auto-serialization mapper base64-encodes internally,
// per §4.3.1's "single Base64" rule) as opposed to raw text the codec must
// still base64-wrap itself (every other tier).
func (r *Registry) Resolve(canonicalName string, t reflect.Type) (m Mapper, preEncoded bool, err error) {
	if m, ok := r.user.Get(canonicalName); ok {
		return m, false, nil
	}
	if t != nil && isCollectionKind(t) {
		return r.auto, true, nil
	}
	if t != nil && isAutoSerializable(t) {
		return r.auto, true, nil
	}
	if m, ok := r.builtin.Get(canonicalName); ok {
		return m, false, nil
	}
	return stringFallback{}, false, nil
}

// isCollectionKind reports whether t is one of the collection-interface
// kinds of §4.2: a map, or a type implementing one of the marker interfaces
// below. Slices and arrays are not matched here.
func isCollectionKind(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Map:
		return true
	}
	if implementsAny(t, setType, queueType, dequeType, collectionType) {
		return true
	}
	return false
}

// Set, Queue, Deque and Collection are the Go-idiomatic substitutes for the
// JVM's java.util collection interfaces named in §4.2: a caller's container
// type opts into the collection-interface mapper tier by implementing one of
// them, rather than the registry hard-coding a closed list of concrete
// container types.
type Set interface{ Members() []any }
type Queue interface{ Elements() []any }
type Deque interface{ Elements() []any }
type Collection interface{ Elements() []any }

var (
	setType        = reflect.TypeOf((*Set)(nil)).Elem()
	queueType      = reflect.TypeOf((*Queue)(nil)).Elem()
	dequeType      = reflect.TypeOf((*Deque)(nil)).Elem()
	collectionType = reflect.TypeOf((*Collection)(nil)).Elem()
)

func implementsAny(t reflect.Type, ifaces ...reflect.Type) bool {
	for _, ifc := range ifaces {
		if t.Implements(ifc) {
			return true
		}
	}
	return false
}

// isAutoSerializable reports whether t is a non-String, non-array, non-
// primitive/wrapper type — i.e. an opaque struct/pointer/interface value
// that must go through the CBOR auto-serialization mapper per §4.2 tier 3.
func isAutoSerializable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.String, reflect.Array, reflect.Slice,
		reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return false
	default:
		return true
	}
}

type stringFallback struct{}

func (stringFallback) ToString(v any) (string, error) {
	return strings.TrimSpace(toText(v)), nil
}

func (stringFallback) FromString(s string) (any, error) {
	return s, nil
}

func toText(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
