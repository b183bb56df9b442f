// Package registry implements the TcpRest resource registry (§4.5): the
// mapping from a canonical class name to either a stateless class handle
// (instantiated per call) or a retained singleton instance, plus interface
// name resolution.
package registry

import (
	"log/slog"
	"reflect"

	"github.com/tcprest/tcprest/internal/errorutil"
	"github.com/tcprest/tcprest/internal/log"
	"github.com/tcprest/tcprest/internal/syncutil"
	"github.com/tcprest/tcprest/signature"
)

// ErrNotFound is returned when a class or interface name has no registered
// resource.
const ErrNotFound errorutil.Error = "registry: resource not found"

// ErrNotInterface is returned by AddResource when passed a non-struct type
// that cannot serve as a class handle.
const ErrNotInterface errorutil.Error = "registry: not a registrable type"

// Registry holds singleton and class-only resource registrations. The zero
// value is ready to use; mutation and lookup are guarded per §4.5/§5 by the
// underlying syncutil.RWMap, which exposes lookups only through copies.
type Registry struct {
	classes    syncutil.RWMap[string, reflect.Type]
	singletons syncutil.RWMap[string, any]
	interfaces syncutil.RWMap[string, reflect.Type]
	log        *slog.Logger
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{log: log.Def}
}

// SetLog overrides the registry's logger, used to warn on unmappable
// parameter/return types (§4.5) without failing registration.
func (r *Registry) SetLog(l *slog.Logger) { r.log = l }

// RegisterInterface associates a callable interface name with its Go
// interface type, so Get can resolve that name to whichever registered
// resource implements it. Go has no runtime registry of named interface
// types (unlike JVM Class.forName), so the embedding application supplies
// this mapping once per interface it exposes — typically the same
// interface type passed to client.Factory.
func (r *Registry) RegisterInterface(name string, ifaceType reflect.Type) {
	r.interfaces.Set(name, ifaceType)
}

// AddResource registers a stateless class handle: a fresh instance is
// created per invocation. v may be a struct value or pointer; its type is
// stored under its canonical name, replacing any prior class or singleton
// registration under that name.
func (r *Registry) AddResource(v any) error {
	t := reflect.TypeOf(v)
	if t == nil || (t.Kind() != reflect.Struct && t.Kind() != reflect.Ptr) {
		return errorutil.NewWrapperError(ErrNotInterface, "AddResource requires a struct or pointer value")
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := signature.CanonicalName(t)
	r.warnUnmappableMethods(t)
	r.classes.Set(name, t)
	r.singletons.Del(name)
	return nil
}

// AddSingletonResource registers a retained, stateful instance under its
// canonical class name, replacing any prior registration under that name.
func (r *Registry) AddSingletonResource(instance any) error {
	if instance == nil {
		return errorutil.NewWrapperError(ErrNotInterface, "AddSingletonResource requires a non-nil instance")
	}
	t := reflect.TypeOf(instance)
	name := signature.CanonicalName(t)
	r.warnUnmappableMethods(derefType(t))
	r.singletons.Set(name, instance)
	r.classes.Del(name)
	return nil
}

// DeleteResource removes a class-only registration by canonical name.
func (r *Registry) DeleteResource(canonicalName string) { r.classes.Del(canonicalName) }

// DeleteSingletonResource removes a singleton registration by canonical
// name.
func (r *Registry) DeleteSingletonResource(canonicalName string) { r.singletons.Del(canonicalName) }

// Resolved is the outcome of a registry lookup: either a retained singleton
// instance, or a class handle from which a fresh instance must be created
// per call.
type Resolved struct {
	Instance any          // non-nil for a singleton hit
	Type     reflect.Type // always set: the instance's (or class's) concrete type
}

// Get resolves name — a canonical class name or, failing that, an interface
// name — to a registered resource. Singleton hits take precedence over
// class-only hits (§3, §4.5); interface resolution scans registered
// resources and returns the first whose concrete type implements the named
// interface. Interface resolution is purely derived and not itself stored.
func (r *Registry) Get(name string) (Resolved, error) {
	if inst, ok := r.singletons.Get(name); ok {
		return Resolved{Instance: inst, Type: reflect.TypeOf(inst)}, nil
	}
	if t, ok := r.classes.Get(name); ok {
		return Resolved{Type: t}, nil
	}

	// name did not match a canonical class name directly; treat it as an
	// interface name and scan registered resources. Singletons are scanned
	// first to preserve the singleton > class precedence.
	iface, ok := r.interfaces.Get(name)
	if !ok {
		return Resolved{}, errorutil.NewWrapperError(ErrNotFound, name)
	}
	for _, inst := range r.singletons.All() {
		if reflect.TypeOf(inst).Implements(iface) {
			return Resolved{Instance: inst, Type: reflect.TypeOf(inst)}, nil
		}
	}
	for _, t := range r.classes.All() {
		if t.Implements(iface) || reflect.PointerTo(t).Implements(iface) {
			return Resolved{Type: t}, nil
		}
	}

	return Resolved{}, errorutil.NewWrapperError(ErrNotFound, name)
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// warnUnmappableMethods logs (but never fails) when a public method's
// parameter or return types can't be resolved by the mapper chain (§4.5).
// Mappability here just means "is a type the signature/mapper packages know
// how to name and serialize"; arbitrary struct types are always mappable
// via the auto-serialization tier, so this mainly flags channel/func/unsafe
// typed parameters that have no wire representation at all.
func (r *Registry) warnUnmappableMethods(t reflect.Type) {
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		for j := 1; j < m.Type.NumIn(); j++ {
			if !mappableKind(m.Type.In(j)) {
				r.log.Warn("resource method has unmappable parameter type",
					"class", signature.CanonicalName(t), "method", m.Name, "param", m.Type.In(j))
			}
		}
		for j := 0; j < m.Type.NumOut(); j++ {
			if !mappableKind(m.Type.Out(j)) {
				r.log.Warn("resource method has unmappable return type",
					"class", signature.CanonicalName(t), "method", m.Name, "result", m.Type.Out(j))
			}
		}
	}
}

func mappableKind(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return false
	default:
		return true
	}
}
