package invoke_test

import (
	"reflect"
	"testing"

	"github.com/tcprest/tcprest/invoke"
	"github.com/tcprest/tcprest/protocol"
	"github.com/tcprest/tcprest/registry"
	"github.com/tcprest/tcprest/signature"
)

type Calculator struct{}

func (Calculator) Add(a, b int) int { return a + b }

func (Calculator) Validate(age int) error {
	if age < 0 {
		return protocol.NewBusinessError("age must not be negative")
	}
	return nil
}

func (Calculator) Boom() error { panic("target method panicked") }

type Counter struct{ n int }

func (c *Counter) Increment() int {
	c.n++
	return c.n
}

func contextFor(t *testing.T, target registry.Resolved, methodName string, paramTypes []reflect.Type, params []any) *protocol.Context {
	t.Helper()
	m, err := signature.Method(target.Type, methodName, signature.OfTypes(paramTypes))
	if err != nil {
		t.Fatalf("signature.Method: %v", err)
	}
	return &protocol.Context{
		MethodName: methodName,
		Target:     target,
		Method:     m,
		Params:     params,
	}
}

func TestCallSuccess(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.AddResource(Calculator{})
	target, err := reg.Get(signature.CanonicalName(reflect.TypeOf(Calculator{})))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	intType := reflect.TypeOf(0)
	ctx := contextFor(t, target, "Add", []reflect.Type{intType, intType}, []any{5, 3})

	out := invoke.Call(ctx)
	if out.Status != protocol.StatusSuccess {
		t.Fatalf("Status = %v, want SUCCESS; err=%v", out.Status, out.Err)
	}
	if out.Value != 8 {
		t.Errorf("Value = %v, want 8", out.Value)
	}
}

func TestCallBusinessException(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.AddResource(Calculator{})
	target, _ := reg.Get(signature.CanonicalName(reflect.TypeOf(Calculator{})))

	ctx := contextFor(t, target, "Validate", []reflect.Type{reflect.TypeOf(0)}, []any{-1})

	out := invoke.Call(ctx)
	if out.Status != protocol.StatusBusiness {
		t.Fatalf("Status = %v, want BUSINESS", out.Status)
	}
	if out.Err == nil || out.Err.Error() != "age must not be negative" {
		t.Errorf("Err = %v, want business message", out.Err)
	}
}

func TestCallPanicClassifiedAsServerError(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.AddResource(Calculator{})
	target, _ := reg.Get(signature.CanonicalName(reflect.TypeOf(Calculator{})))

	ctx := contextFor(t, target, "Boom", nil, nil)

	out := invoke.Call(ctx)
	if out.Status != protocol.StatusServer {
		t.Fatalf("Status = %v, want SERVER", out.Status)
	}
}

func TestCallSingletonRetainsState(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.AddSingletonResource(&Counter{})
	target, err := reg.Get(signature.CanonicalName(reflect.TypeOf(&Counter{})))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	ctx := contextFor(t, target, "Increment", nil, nil)

	first := invoke.Call(ctx)
	second := invoke.Call(ctx)
	if first.Value != 1 || second.Value != 2 {
		t.Errorf("Values = %v, %v, want 1, 2 (singleton state retained)", first.Value, second.Value)
	}
}
