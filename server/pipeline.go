// Package server implements the TcpRest transport-agnostic request
// pipeline (§4.6): parse -> resolve -> invoke -> encode, shared by every
// transport backend, plus the server lifecycle, graceful shutdown, and
// request metrics/correlation IDs.
package server

import (
	"errors"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/tcprest/tcprest/invoke"
	"github.com/tcprest/tcprest/protocol"
	"github.com/tcprest/tcprest/registry"
	"github.com/tcprest/tcprest/security"
	"github.com/tcprest/tcprest/signature"
)

// Pipeline is the single-source request handler every transport backend
// delegates to: given one request line, it returns exactly one response
// line, never panicking and never leaving a request scope half-handled
// (§4.6 step 5, §7 policy).
type Pipeline struct {
	Codec      *protocol.Codec
	Registry   *registry.Registry
	Exceptions *protocol.ExceptionRegistry
	Log        *slog.Logger
	metrics    *metrics
}

// Handle runs one request line R through parse -> invoke -> encode (§4.6
// steps 1-4) and returns the response line to write back, with a trailing
// newline already stripped from both sides — callers own framing.
func (p *Pipeline) Handle(line string) string {
	start := time.Now()
	correlationID := uuid.NewString()
	log := p.Log.With("correlation_id", correlationID)

	ctx, err := p.Codec.ParseRequest(line, p.Registry)
	if err != nil {
		log.Warn("request parse failed", "error", err)
		return p.recordAndEncodeFault(protocol.StatusProtocol, err, start)
	}

	outcome := invoke.Call(ctx)
	switch outcome.Status {
	case protocol.StatusSuccess:
		resp, err := p.Codec.EncodeSuccess(outcome.Value, returnType(ctx))
		if err != nil {
			log.Error("response encode failed", "error", err)
			return p.recordAndEncodeFault(protocol.StatusProtocol, err, start)
		}
		p.record(protocol.StatusSuccess, start)
		return resp

	case protocol.StatusBusiness, protocol.StatusServer:
		log.Info("invocation raised an error", "status", outcome.Status, "error", outcome.Err)
		resp, err := p.Codec.EncodeException(outcome.Status, exceptionClassName(outcome.Err), outcome.Err.Error())
		if err != nil {
			log.Error("exception encode failed", "error", err)
			return p.recordAndEncodeFault(protocol.StatusProtocol, err, start)
		}
		p.record(outcome.Status, start)
		return resp

	default: // protocol.StatusProtocol: target instantiation failed
		log.Warn("invocation could not be dispatched", "error", outcome.Err)
		return p.recordAndEncodeFault(protocol.StatusProtocol, outcome.Err, start)
	}
}

func (p *Pipeline) recordAndEncodeFault(status protocol.Status, err error, start time.Time) string {
	p.record(status, start)
	resp, encErr := p.Codec.EncodeException(status, faultClassName(err), err.Error())
	if encErr != nil {
		// Even the fallback encode failed (e.g. a misconfigured mapper
		// registry); fall back to a literal line that still satisfies the
		// four-field wire shape so the client's parser doesn't choke.
		return "V2|0|3|"
	}
	return resp
}

// faultClassName picks the status-3 exception class name a ParseRequest
// fault is reported under (§7): a checksum/whitelist failure from the
// security layer is reported as a SecurityError so the client reconstructs
// the right framework exception, rather than the generic ProtocolError every
// other malformed-request fault falls back to.
func faultClassName(err error) string {
	if errors.Is(err, security.ErrSecurity) {
		return "tcprest.SecurityError"
	}
	return "tcprest.ProtocolError"
}

func (p *Pipeline) record(status protocol.Status, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.observe(status.String(), time.Since(start).Seconds())
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// returnType derives the declared (non-error) return type of the invoked
// method, following the common Go (value, error) / (error) / (value)
// result shapes, so the codec knows which mapper tier to encode the
// success value through.
func returnType(ctx *protocol.Context) reflect.Type {
	out := ctx.Method.Type.NumOut()
	if out == 0 {
		return nil
	}
	last := ctx.Method.Type.Out(out - 1)
	if last.Implements(errorType) {
		if out == 1 {
			return nil
		}
		return ctx.Method.Type.Out(0)
	}
	return last
}

// exceptionClassName returns the canonical name under which a
// server-thrown error is reported on the wire (§4.3.4): the Go type's own
// canonical name, unless the error carries an explicit one.
func exceptionClassName(err error) string {
	if named, ok := err.(interface{ ClassName() string }); ok {
		return named.ClassName()
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "error"
	}
	return signature.CanonicalName(t)
}
