package protocol

import (
	"github.com/tcprest/tcprest/internal/syncutil"
)

// Business is implemented by application exception types that should be
// reported to the caller as a business fault (status 1) rather than a
// server fault (status 2): a thrown error the invoker classifies by
// checking for this marker method (§4.3.4, §7, §8 invariant #2).
type Business interface {
	error
	Business()
}

// BusinessError is the base a resource method's business exceptions can
// embed to satisfy Business with no further boilerplate, the Go analogue of
// the framework's BusinessException base class.
type BusinessError struct {
	Message string
}

func NewBusinessError(message string) *BusinessError {
	return &BusinessError{Message: message}
}

func (e *BusinessError) Error() string { return e.Message }
func (e *BusinessError) Business()     {}

// RemoteException is the base of the reconstructed exception types a
// client raises when a response carries a non-success status and the
// original exception class is not registered locally (§4.3.5 step 4).
type RemoteException struct {
	ClassName string
	Message   string
}

func (e *RemoteException) Error() string {
	if e.Message == "" {
		return e.ClassName
	}
	return e.ClassName + ": " + e.Message
}

// RemoteBusinessException is the client-side fallback for a status-1
// response whose exception class has no registered factory.
type RemoteBusinessException struct{ RemoteException }

func (e *RemoteBusinessException) Business() {}

// RemoteServerException is the client-side fallback for a status-2 or
// status-3 response whose exception class has no registered factory.
type RemoteServerException struct{ RemoteException }

// ExceptionFactory builds a typed error from a reconstructed exception's
// message. Registries use this in place of the JVM's
// Class.forName+single-string-constructor reconstruction, which Go has no
// runtime equivalent of.
type ExceptionFactory func(message string) error

// ExceptionRegistry maps a canonical exception class name to a factory
// that reconstructs the client's own matching error type, so callers can
// type-assert or errors.As against their own exception types instead of
// always receiving a Remote*Exception. Unregistered names fall back to
// RemoteBusinessException or RemoteServerException, keyed by response
// status.
type ExceptionRegistry struct {
	factories syncutil.RWMap[string, ExceptionFactory]
}

func NewExceptionRegistry() *ExceptionRegistry {
	return &ExceptionRegistry{}
}

// Register associates canonicalName with factory, replacing any prior
// registration.
func (r *ExceptionRegistry) Register(canonicalName string, factory ExceptionFactory) {
	r.factories.Set(canonicalName, factory)
}

// Reconstruct builds the error a client call should return for a decoded,
// non-success Result's exception info, per §4.3.5 step 4.
func (r *ExceptionRegistry) Reconstruct(status Status, info *ExceptionInfo) error {
	if factory, ok := r.factories.Get(info.ClassName); ok {
		return factory(info.Message)
	}
	if status == StatusBusiness {
		return &RemoteBusinessException{RemoteException{ClassName: info.ClassName, Message: info.Message}}
	}
	return &RemoteServerException{RemoteException{ClassName: info.ClassName, Message: info.Message}}
}
