package protocol

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/tcprest/tcprest/internal/errorutil"
)

const nullBody = "null"

// EncodeSuccess builds a status-0 response line (§4.3.4) for a successful
// invocation that returned value, whose declared return type is declaredType
// (nil for a void/no-return method). A nil value encodes as the literal
// body "null", distinct from the "~" parameter null literal.
func (c *Codec) EncodeSuccess(value any, declaredType reflect.Type) (string, error) {
	body := nullBody
	if !isNil(value) {
		s, err := c.encodeValue(value, declaredType)
		if err != nil {
			return "", err
		}
		body = s
	}
	return c.appendEnvelope(fmt.Sprintf("V2|0|%d|%s", int(StatusSuccess), body)), nil
}

// EncodeException builds a non-success response line (§4.3.4) for a thrown
// exception: status must be StatusBusiness, StatusServer, or
// StatusProtocol. The body encodes as the String "<className>: <message>".
func (c *Codec) EncodeException(status Status, className, message string) (string, error) {
	text := className + ": " + message
	body, err := c.encodeValue(text, reflect.TypeOf(""))
	if err != nil {
		return "", err
	}
	return c.appendEnvelope(fmt.Sprintf("V2|0|%d|%s", int(status), body)), nil
}

// ExceptionInfo is the parsed "<className>: <message>" body of a
// non-success response (§4.3.5 step 4).
type ExceptionInfo struct {
	ClassName string
	Message   string
}

// Result is the decoded outcome of a response line.
type Result struct {
	Status    Status
	Value     any            // populated on StatusSuccess
	Exception *ExceptionInfo // populated otherwise
}

// DecodeResponse parses a raw response line (§4.3.5): it verifies the
// envelope, splits the status/body head, and on success decodes the body
// into declaredType (the invoking method's declared return type); on any
// other status it decodes and splits the "<className>: <message>" body,
// leaving reconstruction of a typed exception to an ExceptionRegistry.
func (c *Codec) DecodeResponse(line string, declaredType reflect.Type) (*Result, error) {
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

	statusNum, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, errorutil.NewWrapperError(ErrProtocol, "malformed status: "+fields[2])
	}
	status := Status(statusNum)
	bodyField := fields[3]

	if status == StatusSuccess {
		if bodyField == nullBody {
			return &Result{Status: status}, nil
		}
		v, err := c.decodeValue(bodyField, declaredType)
		if err != nil {
			return nil, err
		}
		return &Result{Status: status, Value: v}, nil
	}

	raw, err := c.decodeValue(bodyField, reflect.TypeOf(""))
	if err != nil {
		return nil, err
	}
	text, _ := raw.(string)
	className, message := splitExceptionText(text)
	return &Result{Status: status, Exception: &ExceptionInfo{ClassName: className, Message: message}}, nil
}

func splitExceptionText(s string) (className, message string) {
	if idx := strings.Index(s, ": "); idx >= 0 {
		return s[:idx], s[idx+2:]
	}
	return s, ""
}
