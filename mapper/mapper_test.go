package mapper_test

import (
	"reflect"
	"testing"

	"github.com/tcprest/tcprest/mapper"
)

func TestBuiltinRoundTrip(t *testing.T) {
	t.Parallel()

	reg := mapper.NewRegistry()

	cases := []struct {
		name string
		v    any
	}{
		{mapper.Int, 42},
		{mapper.Float64, 8.8},
		{mapper.Bool, true},
		{mapper.String, "hello"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			m, _, err := reg.Resolve(c.name, reflect.TypeOf(c.v))
			if err != nil {
				t.Fatalf("Resolve error = %v", err)
			}
			s, err := m.ToString(c.v)
			if err != nil {
				t.Fatalf("ToString error = %v", err)
			}
			got, err := m.FromString(s)
			if err != nil {
				t.Fatalf("FromString error = %v", err)
			}
			if got != c.v {
				t.Errorf("round trip = %v, want %v", got, c.v)
			}
		})
	}
}

func TestEmptyStringNotConfusedWithNull(t *testing.T) {
	t.Parallel()

	reg := mapper.NewRegistry()
	m, _, err := reg.Resolve(mapper.String, reflect.TypeOf(""))
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	s, err := m.ToString("")
	if err != nil {
		t.Fatalf("ToString error = %v", err)
	}
	if s != "" {
		t.Fatalf("ToString(\"\") = %q, want empty", s)
	}
	got, err := m.FromString(s)
	if err != nil {
		t.Fatalf("FromString error = %v", err)
	}
	if got != "" {
		t.Errorf("FromString(\"\") = %v, want empty string", got)
	}
}

type point struct {
	X, Y int
}

func TestAutoSerializationRoundTrip(t *testing.T) {
	t.Parallel()

	reg := mapper.NewRegistry()
	p := point{X: 1, Y: 2}
	m, _, err := reg.Resolve("mapper_test.point", reflect.TypeOf(p))
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	s, err := m.ToString(p)
	if err != nil {
		t.Fatalf("ToString error = %v", err)
	}

	var out point
	if err := reg.AutoMapper().FromStringInto(s, &out); err != nil {
		t.Fatalf("FromStringInto error = %v", err)
	}
	if out != p {
		t.Errorf("round trip = %+v, want %+v", out, p)
	}
}

func TestUserMapperOverridesBuiltin(t *testing.T) {
	t.Parallel()

	reg := mapper.NewRegistry()
	reg.AddMapper(mapper.Int, mapper.Func{
		To:   func(v any) (string, error) { return "custom", nil },
		From: func(s string) (any, error) { return 99, nil },
	})

	m, _, err := reg.Resolve(mapper.Int, reflect.TypeOf(1))
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	s, err := m.ToString(1)
	if err != nil {
		t.Fatalf("ToString error = %v", err)
	}
	if s != "custom" {
		t.Errorf("ToString = %q, want %q (user mapper should win)", s, "custom")
	}
}
