package server

import (
	"reflect"
	"strings"
	"testing"

	"github.com/tcprest/tcprest/internal/log"
	"github.com/tcprest/tcprest/protocol"
	"github.com/tcprest/tcprest/registry"
	"github.com/tcprest/tcprest/security"
)

type calculator struct{}

func (calculator) Add(a, b int) int { return a + b }

func (calculator) Validate(age int) error {
	if age < 0 {
		return protocol.NewBusinessError("age must not be negative")
	}
	return nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *protocol.Codec) {
	t.Helper()
	reg := registry.New()
	if err := reg.AddResource(calculator{}); err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	codec := protocol.NewCodec(security.Config{})
	return &Pipeline{
		Codec:      codec,
		Registry:   reg,
		Exceptions: protocol.NewExceptionRegistry(),
		Log:        log.Noop,
	}, codec
}

func TestPipelineSuccess(t *testing.T) {
	t.Parallel()

	p, codec := newTestPipeline(t)
	intType := reflect.TypeOf(0)
	req, err := codec.EncodeRequest("github.com/tcprest/tcprest/server.calculator", "Add",
		[]reflect.Type{intType, intType}, []any{5, 3})
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	resp := p.Handle(req)
	res, err := codec.DecodeResponse(resp, intType)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if res.Status != protocol.StatusSuccess || res.Value != 8 {
		t.Errorf("res = %+v, want Status=0 Value=8", res)
	}
}

func TestPipelineBusinessException(t *testing.T) {
	t.Parallel()

	p, codec := newTestPipeline(t)
	intType := reflect.TypeOf(0)
	req, err := codec.EncodeRequest("github.com/tcprest/tcprest/server.calculator", "Validate",
		[]reflect.Type{intType}, []any{-1})
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	resp := p.Handle(req)
	res, err := codec.DecodeResponse(resp, nil)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if res.Status != protocol.StatusBusiness {
		t.Fatalf("Status = %v, want BUSINESS", res.Status)
	}
	if res.Exception.Message != "age must not be negative" {
		t.Errorf("Message = %q", res.Exception.Message)
	}
}

func TestPipelineMalformedRequest(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(t)
	resp := p.Handle("not a valid request line")
	if !strings.Contains(resp, "|3|") {
		t.Errorf("resp = %q, want status 3", resp)
	}
}

func TestPipelineUnknownClass(t *testing.T) {
	t.Parallel()

	p, codec := newTestPipeline(t)
	req, err := codec.EncodeRequest("does.not.Exist", "Foo", nil, nil)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	resp := p.Handle(req)
	if !strings.Contains(resp, "|3|") {
		t.Errorf("resp = %q, want status 3", resp)
	}
}
