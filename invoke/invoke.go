// Package invoke implements the TcpRest Invoker (§4.4): per-request target
// instantiation and reflective method invocation, with classification of a
// thrown error into a business or server fault for response status
// routing.
package invoke

import (
	"reflect"

	"github.com/tcprest/tcprest/internal/errorutil"
	"github.com/tcprest/tcprest/protocol"
)

// ErrInstantiate wraps a failure to build a fresh instance of a
// class-registered (non-singleton) resource.
const ErrInstantiate errorutil.Error = "invoke: failed to instantiate resource"

// Outcome is the result of Call: exactly one of Value or Err is
// meaningful, distinguished by Status.
type Outcome struct {
	Status protocol.Status
	Value  any
	Err    error
}

// Call resolves ctx's target instance (the registry's singleton, or a
// fresh value built from its class per call, per §4.4) and invokes the
// selected method with ctx's already-decoded parameters.
//
// A nil return is legal and reported as StatusSuccess with a nil Value. An
// error returned or panicked by the target method is classified: a
// protocol.Business implementation is reported as StatusBusiness, anything
// else as StatusServer. Call itself never returns a non-nil error; failures
// are always carried in Outcome so the server pipeline can route them to a
// response status uniformly.
func Call(ctx *protocol.Context) Outcome {
	instance, err := target(ctx)
	if err != nil {
		return Outcome{Status: protocol.StatusProtocol, Err: err}
	}

	return invoke(instance, ctx.Method, ctx.Params)
}

// target returns the reflect.Value the method should be called on: the
// registry's retained singleton if one resolved, otherwise a fresh
// zero-value instance of the registered class (the Go analogue of a
// no-argument constructor; Go has no user-defined constructors to fail, so
// this step cannot itself error for any type AddResource already accepted).
func target(ctx *protocol.Context) (reflect.Value, error) {
	if ctx.Target.Instance != nil {
		return reflect.ValueOf(ctx.Target.Instance), nil
	}
	if ctx.Target.Type == nil {
		return reflect.Value{}, errorutil.NewWrapperError(ErrInstantiate, "no resolved target type")
	}
	return reflect.New(ctx.Target.Type), nil
}

// invoke calls method on instance with params, recovering a panicking
// target method the same way a reflective call wrapper would unwrap a
// runtime invocation exception, and classifies any resulting error.
func invoke(instance reflect.Value, method reflect.Method, params []any) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = classify(panicError(r))
		}
	}()

	// ctx.Method was resolved by signature.Method against the registry's
	// stored (always non-pointer) class type, so its Index is only valid
	// against that type's method set, not necessarily against instance's
	// (instance may be a *T produced by reflect.New, whose method set
	// includes T's value-receiver methods at different indices once any
	// pointer-receiver methods interleave alphabetically). Looking the
	// bound method up by name on the instantiated value sidesteps that.
	fn := instance.MethodByName(method.Name)
	if !fn.IsValid() || fn.Type().NumIn() != len(params) {
		return Outcome{Status: protocol.StatusProtocol, Err: errorutil.NewWrapperError(
			ErrInstantiate, "method arity mismatch on bound target")}
	}

	in := make([]reflect.Value, len(params))
	for i, p := range params {
		if p == nil {
			in[i] = reflect.Zero(fn.Type().In(i))
			continue
		}
		in[i] = reflect.ValueOf(p)
	}

	out := fn.Call(in)
	return classifyResult(out)
}

// classifyResult splits a method's reflected return values into its value
// result and a trailing error result, per the common Go idiom of a method
// returning (T, error) or just error or just T.
func classifyResult(out []reflect.Value) Outcome {
	if len(out) == 0 {
		return Outcome{Status: protocol.StatusSuccess}
	}

	last := out[len(out)-1]
	if isErrorType(last.Type()) {
		if !last.IsNil() {
			return classify(last.Interface().(error))
		}
		if len(out) == 1 {
			return Outcome{Status: protocol.StatusSuccess}
		}
		return Outcome{Status: protocol.StatusSuccess, Value: out[0].Interface()}
	}

	return Outcome{Status: protocol.StatusSuccess, Value: last.Interface()}
}

// classify maps a non-nil error returned or panicked by a target method to
// its response status: Business implementations route to StatusBusiness,
// everything else to StatusServer (§4.4, §7).
func classify(err error) Outcome {
	if _, ok := err.(protocol.Business); ok {
		return Outcome{Status: protocol.StatusBusiness, Err: err}
	}
	return Outcome{Status: protocol.StatusServer, Err: err}
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errorutil.Errorf("invoke: target method panicked: %v", r)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func isErrorType(t reflect.Type) bool {
	return t.Implements(errorType)
}
