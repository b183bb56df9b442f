package mapper

import (
	"encoding/base64"

	"github.com/fxamacker/cbor/v2"

	"github.com/tcprest/tcprest/internal/errorutil"
)

// ErrSerialize wraps a CBOR marshal/unmarshal failure in the
// auto-serialization mapper.
const ErrSerialize errorutil.Error = "mapper: auto-serialization failed"

// autoMapper is the §4.2 tier-2/3 "auto-serialization" mapper. The teacher
// language's native object serialization has no Go equivalent, so this
// substitutes a schema-first, reflection-capable binary codec (CBOR) per the
// spec's design note in §9: encode to CBOR bytes, then base64 (the codec
// layer picks standard or URL-safe alphabet per §4.3.1; ToString/FromString
// here always use URL-safe-no-pad, matching how object/collection bodies are
// transmitted).
type autoMapper struct{}

func (autoMapper) ToString(v any) (string, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return "", errorutil.NewWrapperError(ErrSerialize, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// FromString decodes into a generic CBOR value (map[string]any / []any /
// scalars). Callers that need a concrete Go type should use FromStringInto.
func (a autoMapper) FromString(s string) (any, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errorutil.NewWrapperError(ErrSerialize, err)
	}
	var v any
	if err := cbor.Unmarshal(b, &v); err != nil {
		return nil, errorutil.NewWrapperError(ErrSerialize, err)
	}
	return v, nil
}

// FromStringInto decodes s into the value that out (a pointer) points to,
// used by the protocol decoder once the target parameter/return type is
// known from the method signature.
func (autoMapper) FromStringInto(s string, out any) error {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return errorutil.NewWrapperError(ErrSerialize, err)
	}
	if err := cbor.Unmarshal(b, out); err != nil {
		return errorutil.NewWrapperError(ErrSerialize, err)
	}
	return nil
}

// AutoMapper exposes the registry's CBOR auto-serialization mapper so the
// protocol codec can call FromStringInto with a concrete target type.
func (r *Registry) AutoMapper() interface {
	Mapper
	FromStringInto(s string, out any) error
} {
	return r.auto.(autoMapper)
}
