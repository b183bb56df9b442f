// Package signature builds and parses JVM-style method descriptors used by
// the wire protocol to disambiguate overloaded methods, and resolves a
// (name, descriptor) pair against a reflected service type.
package signature

import (
	"reflect"
	"strconv"
	"strings"

	"braces.dev/errtrace"

	"github.com/tcprest/tcprest/internal/errorutil"
)

// ErrUnknownMethod is returned when no method on a service matches a name
// and descriptor pair.
const ErrUnknownMethod errorutil.Error = "unknown method"

// ErrAmbiguousMethod is returned when more than one method on a service
// matches a name and descriptor pair; this should never happen for a
// correctly built descriptor, since the descriptor captures every
// parameter's concrete type.
const ErrAmbiguousMethod errorutil.Error = "ambiguous method"

const (
	descBool    = "Z"
	descByte    = "B"
	descChar    = "C"
	descShort   = "S"
	descInt     = "I"
	descLong    = "J"
	descFloat   = "F"
	descDouble  = "D"
	descArray   = "["
	descObjOpen = "L"
	descObjEnd  = ";"

	javaString = "java/lang/String"
)

// Of returns the descriptor "(T1T2...)" for every input type of fn, a
// reflect.Type of Kind Func. The type of a method obtained from
// reflect.Type.Method has the receiver as In(0), which Of would include;
// the type of a bound method from reflect.Value.Method has no receiver.
func Of(fn reflect.Type) string {
	n := fn.NumIn()
	types := make([]reflect.Type, n)
	for i := range n {
		types[i] = fn.In(i)
	}
	return OfTypes(types)
}

// OfTypes returns the descriptor "(T1T2...)" for an explicit parameter type
// list.
func OfTypes(params []reflect.Type) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, t := range params {
		sb.WriteString(descriptorOf(t))
	}
	sb.WriteByte(')')
	return sb.String()
}

// descriptorOf renders the JVM-style descriptor of a single Go type.
func descriptorOf(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Bool:
		return descBool
	case reflect.Int8, reflect.Uint8:
		return descByte
	case reflect.Int32:
		// rune is an alias of int32; treat it as the JVM "char" slot.
		return descChar
	case reflect.Uint16, reflect.Int16:
		return descShort
	case reflect.Int, reflect.Uint32:
		return descInt
	case reflect.Int64, reflect.Uint, reflect.Uint64:
		return descLong
	case reflect.Float32:
		return descFloat
	case reflect.Float64:
		return descDouble
	case reflect.String:
		return descObjOpen + javaString + descObjEnd
	case reflect.Array, reflect.Slice:
		return descArray + descriptorOf(t.Elem())
	case reflect.Ptr:
		return descriptorOf(t.Elem())
	default:
		return descObjOpen + strings.ReplaceAll(CanonicalName(t), ".", "/") + descObjEnd
	}
}

// CanonicalName returns a reflect.Type's fully qualified name, its import
// path plus "." plus its type name (for example
// "github.com/tcprest/tcprest/server.echoResource") — the Go analogue of a
// JVM canonical class name (§3 glossary) — used as the
// registry and mapper key space throughout the codec, resource registry,
// and mapper registry. Pointer types are dereferenced first.
func CanonicalName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		// anonymous/unnamed types (e.g. inline structs) fall back to String.
		return "java.lang.String"
	}
	pkg := t.PkgPath()
	if pkg == "" {
		return name
	}
	return pkg + "." + name
}

// ParamSignature splits a descriptor "(T1T2...)" into its component type
// descriptors, in order.
func ParamSignature(sig string) ([]string, error) {
	sig = strings.TrimSpace(sig)
	if len(sig) < 2 || sig[0] != '(' || sig[len(sig)-1] != ')' {
		return nil, errtrace.Wrap(errorutil.NewWrapperError(ErrUnknownMethod, "malformed signature "+strconv.Quote(sig)))
	}
	body := sig[1 : len(sig)-1]
	var out []string
	for i := 0; i < len(body); {
		start := i
		for body[i] == '[' {
			i++
		}
		if body[i] == 'L' {
			j := strings.IndexByte(body[i:], ';')
			if j < 0 {
				return nil, errtrace.Wrap(errorutil.NewWrapperError(ErrUnknownMethod, "malformed signature "+strconv.Quote(sig)))
			}
			i += j + 1
		} else {
			i++
		}
		out = append(out, body[start:i])
	}
	return out, nil
}

// Method finds the unique exported method on svcType (service, not
// instance) whose name and computed descriptor match name and sig.
func Method(svcType reflect.Type, name, sig string) (reflect.Method, error) {
	var (
		found reflect.Method
		hits  int
	)
	for i := range svcType.NumMethod() {
		m := svcType.Method(i)
		if m.Name != name {
			continue
		}
		// m.Type includes the receiver as In(0) for a method obtained from
		// a Type (as opposed to a bound Value); skip it.
		params := make([]reflect.Type, m.Type.NumIn()-1)
		for i := range params {
			params[i] = m.Type.In(i + 1)
		}
		if OfTypes(params) != sig {
			continue
		}
		found = m
		hits++
	}
	switch hits {
	case 0:
		return reflect.Method{}, errtrace.Wrap(errorutil.NewWrapperError(ErrUnknownMethod, name+sig))
	case 1:
		return found, nil
	default:
		return reflect.Method{}, errtrace.Wrap(errorutil.NewWrapperError(ErrAmbiguousMethod, name+sig))
	}
}
