package client_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/tcprest/tcprest/client"
	"github.com/tcprest/tcprest/protocol"
	"github.com/tcprest/tcprest/security"
	"github.com/tcprest/tcprest/server"
)

type echoResource struct{}

func (echoResource) Echo(s string) string { return s }

func (echoResource) Fail(msg string) error { return protocol.NewBusinessError(msg) }

// Greeter is the caller-side interface a hand-written stub wraps Call
// with, standing in for the generated typed client a real application
// would declare (§4.7's "dynamic stub" reinterpreted per the package doc).
type Greeter interface {
	Echo(s string) (string, error)
	Fail(msg string) error
}

type greeterStub struct{ *client.Stub }

func (g greeterStub) Echo(s string) (string, error) {
	v, err := g.Call("Echo", []reflect.Type{reflect.TypeOf("")}, []any{s}, reflect.TypeOf(""))
	if err != nil {
		return "", err
	}
	s2, _ := v.(string)
	return s2, nil
}

func (g greeterStub) Fail(msg string) error {
	_, err := g.Call("Fail", []reflect.Type{reflect.TypeOf("")}, []any{msg}, nil)
	return err
}

func startTestServer(t *testing.T) *server.Server {
	t.Helper()
	s := server.New(server.Config{Addr: "127.0.0.1:0"})
	if err := s.AddResource(echoResource{}); err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	if err := s.Up(); err != nil {
		t.Fatalf("Up: %v", err)
	}
	t.Cleanup(func() { s.Down() })
	return s
}

func greeterClient(t *testing.T, s *server.Server, cfg client.Config) Greeter {
	t.Helper()
	cfg.Host = "127.0.0.1"
	cfg.Port = s.ServerPort()
	f := client.NewFactory(cfg)
	var greeter Greeter
	ifaceType := reflect.TypeOf(&greeter).Elem()
	stub, err := f.Get(ifaceType, "github.com/tcprest/tcprest/client_test.echoResource")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return greeterStub{stub}
}

func TestClientEchoRoundTrip(t *testing.T) {
	t.Parallel()

	s := startTestServer(t)
	g := greeterClient(t, s, client.Config{})

	got, err := g.Echo("hello")
	if err != nil {
		t.Fatalf("Echo: %v", err)
	}
	if got != "hello" {
		t.Errorf("Echo = %q, want %q", got, "hello")
	}
}

func TestClientBusinessExceptionReconstruction(t *testing.T) {
	t.Parallel()

	s := startTestServer(t)
	g := greeterClient(t, s, client.Config{})

	err := g.Fail("insufficient funds")
	if err == nil {
		t.Fatal("Fail: want error, got nil")
	}
	rbe, ok := err.(*protocol.RemoteBusinessException)
	if !ok {
		t.Fatalf("err type = %T, want *RemoteBusinessException", err)
	}
	if rbe.Message != "insufficient funds" {
		t.Errorf("Message = %q", rbe.Message)
	}
}

func TestClientGetRejectsConcreteType(t *testing.T) {
	t.Parallel()

	f := client.NewFactory(client.Config{Host: "127.0.0.1", Port: 1})
	_, err := f.Get(reflect.TypeOf(echoResource{}), "x.Y")
	if err == nil {
		t.Fatal("Get: want error for concrete type, got nil")
	}
}

func TestClientWhitelistRejection(t *testing.T) {
	t.Parallel()

	s := startTestServer(t)
	g := greeterClient(t, s, client.Config{
		Security: security.Config{WhitelistEnabled: true, AllowedClasses: []string{"other.pkg.*"}},
	})

	_, err := g.Echo("hello")
	if err == nil {
		t.Fatal("Echo: want whitelist rejection error, got nil")
	}
}

func TestClientDialFailure(t *testing.T) {
	t.Parallel()

	// Call a port nothing is listening on: the dial itself is refused, so
	// Call returns a connection error instead of hanging the test.
	f := client.NewFactory(client.Config{Host: "127.0.0.1", Port: 1, DefaultTimeout: 200 * time.Millisecond})
	stub, err := f.Get(reflect.TypeOf((*Greeter)(nil)).Elem(), "x.Y")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	_, err = stub.Call("Echo", []reflect.Type{reflect.TypeOf("")}, []any{"hi"}, reflect.TypeOf(""))
	if err == nil {
		t.Fatal("Call: want connection error, got nil")
	}
}
