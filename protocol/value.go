package protocol

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"strings"

	"github.com/tcprest/tcprest/internal/errorutil"
	"github.com/tcprest/tcprest/mapper"
	"github.com/tcprest/tcprest/security"
	"github.com/tcprest/tcprest/signature"
)

// MaxArrayLength and MaxArrayDepth are the size/nesting caps of §4.3.1: any
// array the codec produces or consumes must satisfy these, or the codec
// raises ErrProtocol.
const (
	MaxArrayLength = 100000
	MaxArrayDepth  = 10
)

const nullLiteral = "~"

// legacyNullLiteral is accepted on decode only, for backward compatibility
// with traces recorded before "~" replaced it (§9 open question); the
// encoder never emits it.
const legacyNullLiteral = "NULL"

// Codec holds the shared state (mapper registry, security envelope) used to
// encode and decode both requests and responses. The zero value has a
// permissive security.Config (no checksum, no whitelist) and a nil Mappers,
// so callers should always go through NewCodec.
type Codec struct {
	Mappers  *mapper.Registry
	Security security.Config
}

// NewCodec returns a Codec with a fresh mapper registry and the given
// security policy.
func NewCodec(sec security.Config) *Codec {
	return &Codec{Mappers: mapper.NewRegistry(), Security: sec}
}

// encodeValue renders v (whose static/declared type is t) as wire text per
// §4.3.1. A nil v encodes as the literal "~". The returned string is ready
// to be placed directly into a param slot or response body field.
func (c *Codec) encodeValue(v any, t reflect.Type) (string, error) {
	if isNil(v) {
		return nullLiteral, nil
	}

	if t != nil && (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
		return c.encodeArray(v, t)
	}

	canonical := canonicalNameOf(v, t)
	m, preEncoded, err := c.Mappers.Resolve(canonical, t)
	if err != nil {
		return "", errorutil.NewWrapperError(ErrProtocol, err)
	}
	text, err := m.ToString(v)
	if err != nil {
		return "", errorutil.NewWrapperError(ErrProtocol, err)
	}
	if text == "" {
		return "", nil
	}
	if preEncoded {
		return text, nil
	}
	return base64.StdEncoding.EncodeToString([]byte(text)), nil
}

// encodeArray implements the array branch of §4.3.1: primitive/String
// arrays render as a textual list (mirroring Arrays.toString) and go
// through base64-standard; arrays of any other element type auto-serialize
// whole, going through base64url-no-pad. Size and nesting caps are enforced
// recursively.
func (c *Codec) encodeArray(v any, t reflect.Type) (string, error) {
	if err := checkArrayBounds(reflect.ValueOf(v), 1); err != nil {
		return "", err
	}

	elem := t.Elem()
	if isPrimitiveArrayElem(elem) {
		text := arrayToString(reflect.ValueOf(v))
		if text == "" {
			return "", nil
		}
		return base64.StdEncoding.EncodeToString([]byte(text)), nil
	}

	auto := c.Mappers.AutoMapper()
	text, err := auto.ToString(v)
	if err != nil {
		return "", errorutil.NewWrapperError(ErrProtocol, err)
	}
	return text, nil
}

func checkArrayBounds(v reflect.Value, depth int) error {
	if depth > MaxArrayDepth {
		return errorutil.NewWrapperError(ErrProtocol, fmt.Sprintf("array nesting exceeds max depth %d", MaxArrayDepth))
	}
	if v.Len() > MaxArrayLength {
		return errorutil.NewWrapperError(ErrProtocol, fmt.Sprintf("array length %d exceeds max %d", v.Len(), MaxArrayLength))
	}
	elemKind := v.Type().Elem().Kind()
	if elemKind != reflect.Slice && elemKind != reflect.Array {
		return nil
	}
	for i := 0; i < v.Len(); i++ {
		if err := checkArrayBounds(v.Index(i), depth+1); err != nil {
			return err
		}
	}
	return nil
}

func isPrimitiveArrayElem(elem reflect.Type) bool {
	switch elem.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// arrayToString mirrors java.util.Arrays.toString: "[e0, e1, e2]".
func arrayToString(v reflect.Value) string {
	n := v.Len()
	if n == 0 {
		return "[]"
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprint(&sb, v.Index(i).Interface())
	}
	sb.WriteByte(']')
	return sb.String()
}

// decodeValue reverses encodeValue given the expected declared type t,
// following the parser's priority order P1-P6 of §4.3.3.
func (c *Codec) decodeValue(token string, t reflect.Type) (any, error) {
	if token == nullLiteral || token == legacyNullLiteral {
		return nil, nil
	}
	if token == "" {
		if t != nil && t.Kind() == reflect.String {
			return "", nil
		}
	}

	if t != nil && (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
		return c.decodeArray(token, t)
	}

	canonical := ""
	if t != nil {
		canonical = signature.CanonicalName(t)
		if isBuiltinKind(t.Kind()) {
			canonical = builtinName(t)
		}
	}
	m, preEncoded, err := c.Mappers.Resolve(canonical, t)
	if err != nil {
		return nil, errorutil.NewWrapperError(ErrProtocol, err)
	}
	if preEncoded {
		if t != nil {
			out := reflect.New(t).Interface()
			if err := c.Mappers.AutoMapper().FromStringInto(token, out); err != nil {
				return nil, errorutil.NewWrapperError(ErrProtocol, err)
			}
			return reflect.ValueOf(out).Elem().Interface(), nil
		}
		return c.Mappers.AutoMapper().FromString(token)
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		// not valid standard base64: fall back to treating the token as
		// already-decoded text (P6 String fallback tolerance).
		return m.FromString(token)
	}
	return m.FromString(string(raw))
}

func (c *Codec) decodeArray(token string, t reflect.Type) (any, error) {
	elem := t.Elem()
	if isPrimitiveArrayElem(elem) {
		raw, err := base64.StdEncoding.DecodeString(token)
		if err != nil {
			return nil, errorutil.NewWrapperError(ErrProtocol, err)
		}
		return parseArrayLiteral(string(raw), elem, c)
	}

	out := reflect.New(t).Interface()
	if err := c.Mappers.AutoMapper().FromStringInto(token, out); err != nil {
		return nil, errorutil.NewWrapperError(ErrProtocol, err)
	}
	v := reflect.ValueOf(out).Elem()
	if err := checkArrayBounds(v, 1); err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// parseArrayLiteral parses the "[e0, e1, e2]" textual form produced by
// arrayToString back into a slice of elem's type.
func parseArrayLiteral(text string, elem reflect.Type, c *Codec) (any, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "[")
	text = strings.TrimSuffix(text, "]")
	slice := reflect.MakeSlice(reflect.SliceOf(elem), 0, 0)
	if text == "" {
		return slice.Interface(), nil
	}
	parts := strings.Split(text, ", ")
	if len(parts) > MaxArrayLength {
		return nil, errorutil.NewWrapperError(ErrProtocol, "array length exceeds max")
	}
	for _, p := range parts {
		v, err := c.decodeScalar(strings.TrimSpace(p), elem)
		if err != nil {
			return nil, err
		}
		slice = reflect.Append(slice, reflect.ValueOf(v))
	}
	return slice.Interface(), nil
}

func (c *Codec) decodeScalar(text string, t reflect.Type) (any, error) {
	name := builtinName(t)
	m, _, err := c.Mappers.Resolve(name, t)
	if err != nil {
		return nil, errorutil.NewWrapperError(ErrProtocol, err)
	}
	return m.FromString(text)
}

func isBuiltinKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// builtinName maps a reflect.Type to the mapper registry key for its kind.
// Int32 is special-cased to "rune": Go has no reflect.Kind distinct from
// int32 for rune, and signature.descriptorOf already assigns int32-kind
// params the JVM char descriptor, so the two must agree on a single,
// char-semantics builtin mapper entry (mapper.Rune) rather than registering
// an unreachable plain-integer "int32" entry alongside it.
func builtinName(t reflect.Type) string {
	if t.Kind() == reflect.Int32 {
		return mapper.Rune
	}
	return t.Kind().String()
}

func canonicalNameOf(v any, t reflect.Type) string {
	rt := reflect.TypeOf(v)
	if rt == nil {
		rt = t
	}
	if isBuiltinKind(rt.Kind()) {
		return builtinName(rt)
	}
	return signature.CanonicalName(rt)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
