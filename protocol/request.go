package protocol

import (
	"encoding/base64"
	"reflect"
	"strconv"
	"strings"

	"github.com/tcprest/tcprest/internal/errorutil"
	"github.com/tcprest/tcprest/registry"
	"github.com/tcprest/tcprest/security"
	"github.com/tcprest/tcprest/signature"
)

// Context is the per-request invocation context produced by ParseRequest
// (§3): the resolved target and decoded, ready-to-call parameter values.
type Context struct {
	ClassName  string
	MethodName string
	Signature  string
	Target     registry.Resolved
	Method     reflect.Method
	Params     []any
}

// EncodeRequest builds a Protocol V2 request line (§4.3.2) for a call to
// className.methodName with the given declared parameter types and values.
// className and methodName are validated against the identifier grammar and
// the codec's whitelist before any other work happens, so a malformed or
// disallowed call never produces wire bytes.
func (c *Codec) EncodeRequest(className, methodName string, paramTypes []reflect.Type, params []any) (string, error) {
	if !security.ValidClassName(className) || !security.ValidMethodName(methodName) {
		return "", wrapSecurity("invalid class or method identifier: " + className + "/" + methodName)
	}
	if !c.Security.IsWhitelisted(className) {
		return "", wrapSecurity("class not whitelisted: " + className)
	}

	sig := signature.OfTypes(paramTypes)
	meta := className + "/" + methodName + sig
	metaEnc := base64.StdEncoding.EncodeToString([]byte(meta))

	parts := make([]string, len(params))
	for i, p := range params {
		var t reflect.Type
		if i < len(paramTypes) {
			t = paramTypes[i]
		}
		s, err := c.encodeValue(p, t)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}

	line := "V2|0|" + metaEnc + "|[" + strings.Join(parts, ",") + "]"
	return c.appendEnvelope(line), nil
}

// ParseRequest decodes a raw wire line into an invocation Context (§4.3.3):
// it verifies the envelope, validates identifiers and the whitelist,
// resolves the target resource and overload, and decodes every parameter
// against the resolved method's declared parameter type.
func (c *Codec) ParseRequest(line string, reg *registry.Registry) (*Context, error) {
	fields, err := c.stripEnvelope(line)
	if err != nil {
		return nil, err
	}
	if len(fields) != 4 {
		return nil, errorutil.NewWrapperError(ErrProtocol, "expected 4 fields, got "+strconv.Itoa(len(fields)))
	}
	if fields[0] != Version {
		return nil, errorutil.NewWrapperError(ErrProtocol, "missing V2 prefix")
	}

	metaRaw, err := base64.StdEncoding.DecodeString(fields[2])
	if err != nil {
		return nil, errorutil.NewWrapperError(ErrProtocol, err)
	}
	meta := string(metaRaw)

	// The descriptor may itself contain '/' (e.g. "Ljava/lang/String;"), so
	// the class/method split is the last '/' before the descriptor's '('.
	paren := strings.IndexByte(meta, '(')
	if paren < 0 {
		return nil, errorutil.NewWrapperError(ErrProtocol, "malformed meta: "+meta)
	}
	slash := strings.LastIndexByte(meta[:paren], '/')
	if slash < 0 {
		return nil, errorutil.NewWrapperError(ErrProtocol, "malformed meta: "+meta)
	}
	className := meta[:slash]
	methodName := meta[slash+1 : paren]
	sig := meta[paren:]

	if !security.ValidClassName(className) || !security.ValidMethodName(methodName) {
		return nil, wrapSecurity("invalid class or method identifier: " + className + "/" + methodName)
	}
	if !c.Security.IsWhitelisted(className) {
		return nil, wrapSecurity("class not whitelisted: " + className)
	}

	resolved, err := reg.Get(className)
	if err != nil {
		return nil, errorutil.NewWrapperError(ErrProtocol, err)
	}
	method, err := signature.Method(resolved.Type, methodName, sig)
	if err != nil {
		return nil, errorutil.NewWrapperError(ErrProtocol, err)
	}

	paramDescs, err := signature.ParamSignature(sig)
	if err != nil {
		return nil, err
	}
	tokens, err := splitParamList(fields[3], len(paramDescs))
	if err != nil {
		return nil, err
	}
	if len(tokens) != len(paramDescs) {
		return nil, errorutil.NewWrapperError(ErrProtocol, "parameter count mismatch")
	}

	params := make([]any, len(tokens))
	for i, tok := range tokens {
		paramType := method.Type.In(i + 1) // index 0 is the receiver
		v, err := c.decodeValue(tok, paramType)
		if err != nil {
			return nil, err
		}
		params[i] = v
	}

	return &Context{
		ClassName:  className,
		MethodName: methodName,
		Signature:  sig,
		Target:     resolved,
		Method:     method,
		Params:     params,
	}, nil
}

// splitParamList parses the "[p0,p1,...]" top-level parameter list of
// §4.3.3 step 5. Top-level commas are unambiguous because every encoded
// param form — "~", empty, standard Base64, or URL-safe Base64 — excludes
// the comma character.
//
// An empty inner list ("[]") is ambiguous on its own: it is both the
// zero-parameter encoding and the encoding of a single empty-string
// parameter (encodeValue("") is itself ""). wantParams, the arity the
// resolved method signature declares, breaks the tie: a declared arity of
// exactly one turns "[]" into a single empty token instead of zero tokens,
// so an empty string argument round-trips rather than being confused with
// "no arguments".
func splitParamList(field string, wantParams int) ([]string, error) {
	field = strings.TrimSpace(field)
	if len(field) < 2 || field[0] != '[' || field[len(field)-1] != ']' {
		return nil, errorutil.NewWrapperError(ErrProtocol, "malformed parameter list: "+field)
	}
	inner := field[1 : len(field)-1]
	if inner == "" {
		if wantParams == 1 {
			return []string{""}, nil
		}
		return nil, nil
	}
	return strings.Split(inner, ","), nil
}
