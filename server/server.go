package server

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tcprest/tcprest/internal/errorutil"
	"github.com/tcprest/tcprest/internal/log"
	"github.com/tcprest/tcprest/mapper"
	"github.com/tcprest/tcprest/protocol"
	"github.com/tcprest/tcprest/registry"
	"github.com/tcprest/tcprest/security"
)

// ErrLifecycle is wrapped when Up or Down is called from a state that
// forbids the requested transition (e.g. Up while already RUNNING).
const ErrLifecycle errorutil.Error = "server: invalid lifecycle transition"

// shutdownJoinTimeout is the "join workers up to 5 seconds" ceiling of
// §4.6's graceful shutdown contract.
const shutdownJoinTimeout = 5 * time.Second

// Network selects the transport backend a Server binds (§4.6).
type Network string

const (
	NetworkTCP Network = "tcp"
	NetworkUDP Network = "udp"
)

// Config configures a Server before Up.
type Config struct {
	Network Network // default NetworkTCP
	Addr    string  // host:port; port 0 binds an ephemeral port

	// Concurrency selects the TCP backend's dispatch discipline: 0 or 1
	// serves connections sequentially on the accept goroutine (blocking
	// single-thread); any higher value dispatches to that many concurrent
	// workers (selector/worker-pool). Ignored for NetworkUDP, which always
	// handles datagrams concurrently (§4.6).
	Concurrency int

	Security security.Config
	TLS      *tls.Config // nil disables TLS; server TLS per §6 needs a cert

	Log       *slog.Logger
	Metrics   prometheus.Registerer // nil disables metrics registration
	Namespace string                // metrics namespace, default "tcprest"
}

// Server owns the resource/mapper registries, the request pipeline, and
// the bound transport, and drives the CLOSED/RUNNING/CLOSING lifecycle of
// §4.6.
type Server struct {
	cfg Config

	Registry   *registry.Registry
	Mappers    *mapper.Registry
	Exceptions *protocol.ExceptionRegistry

	mu        sync.Mutex
	lifecycle *lifecycle
	tcp       *tcpTransport
	udp       *udpTransport
	port      int
}

// New returns a Server in the CLOSED state, ready for resource
// registration and Up.
func New(cfg Config) *Server {
	if cfg.Network == "" {
		cfg.Network = NetworkTCP
	}
	if cfg.Log == nil {
		cfg.Log = log.Def
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "tcprest"
	}
	return &Server{
		cfg:        cfg,
		Registry:   registry.New(),
		Mappers:    mapper.NewRegistry(),
		Exceptions: protocol.NewExceptionRegistry(),
		lifecycle:  newLifecycle(),
	}
}

// AddResource registers a stateless class handle (§4.5, §6).
func (s *Server) AddResource(v any) error { return s.Registry.AddResource(v) }

// AddSingletonResource registers a retained instance (§4.5, §6).
func (s *Server) AddSingletonResource(v any) error { return s.Registry.AddSingletonResource(v) }

// DeleteResource removes a class-only registration by canonical name.
func (s *Server) DeleteResource(canonicalName string) { s.Registry.DeleteResource(canonicalName) }

// DeleteSingletonResource removes a singleton registration by canonical
// name.
func (s *Server) DeleteSingletonResource(canonicalName string) {
	s.Registry.DeleteSingletonResource(canonicalName)
}

// AddMapper registers a user mapper, taking precedence over the built-in
// and auto-serialization tiers for canonicalName (§4.2, §6).
func (s *Server) AddMapper(canonicalName string, m mapper.Mapper) { s.Mappers.AddMapper(canonicalName, m) }

// SetSecurityConfig replaces the server's security policy. It is safe to
// call while RUNNING, but the policy is copied into the request pipeline by
// Up: a running server keeps the policy it was started with, and the new
// one takes effect at the next Up.
func (s *Server) SetSecurityConfig(cfg security.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Security = cfg
}

// Status returns the current lifecycle state: CLOSED, RUNNING or CLOSING.
func (s *Server) Status() State { return s.lifecycle.state() }

// ServerPort returns the bound TCP/UDP port, valid only while RUNNING.
func (s *Server) ServerPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Up binds the configured network/address and starts serving in the
// background; it returns once the listener is bound, not once serving has
// finished. Calling Up while already RUNNING or CLOSING is an error.
func (s *Server) Up() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lifecycle.fire(context.Background(), triggerUp); err != nil {
		return errorutil.NewWrapperError(ErrLifecycle, err)
	}
	// A failed bind returns the lifecycle to CLOSED so Up can be retried.
	bindFailed := func(err error) error {
		s.lifecycle.fire(context.Background(), triggerClose)
		s.lifecycle.fire(context.Background(), triggerDown)
		return errorutil.NewWrapperError(ErrBind, err)
	}

	pipeline := &Pipeline{
		Codec:      &protocol.Codec{Mappers: s.Mappers, Security: s.cfg.Security},
		Registry:   s.Registry,
		Exceptions: s.Exceptions,
		Log:        s.cfg.Log,
		metrics:    newMetrics(s.cfg.Metrics, s.cfg.Namespace),
	}

	switch s.cfg.Network {
	case NetworkUDP:
		addr, err := net.ResolveUDPAddr("udp", s.cfg.Addr)
		if err != nil {
			return bindFailed(err)
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return bindFailed(err)
		}
		s.udp = newUDPTransport(conn, pipeline)
		s.port = conn.LocalAddr().(*net.UDPAddr).Port
		go s.udp.run()

	default:
		var ln net.Listener
		var err error
		if s.cfg.TLS != nil {
			ln, err = tls.Listen("tcp", s.cfg.Addr, s.cfg.TLS)
		} else {
			ln, err = net.Listen("tcp", s.cfg.Addr)
		}
		if err != nil {
			return bindFailed(err)
		}
		s.tcp = newTCPTransport(ln, s.cfg.Concurrency, pipeline)
		s.port = ln.Addr().(*net.TCPAddr).Port
		go s.tcp.run()
	}

	s.cfg.Log.Info("server up", "network", s.cfg.Network, "addr", net.JoinHostPort("", strconv.Itoa(s.port)))
	return nil
}

// Down performs a graceful shutdown: it moves to CLOSING, closes the
// listener (or UDP socket) so no new requests are accepted, waits up to 5
// seconds for requests already being handled to finish, then moves to
// CLOSED. TCP connections already being served are neither interrupted nor
// closed by Down; they end when their own request completes.
// Down is idempotent: calling it while already CLOSED is a no-op.
func (s *Server) Down() error {
	s.mu.Lock()
	if s.lifecycle.state() == StateClosed {
		s.mu.Unlock()
		return nil
	}
	if err := s.lifecycle.fire(context.Background(), triggerClose); err != nil {
		s.mu.Unlock()
		return errorutil.NewWrapperError(ErrLifecycle, err)
	}
	tcp, udp := s.tcp, s.udp
	s.mu.Unlock()

	if tcp != nil {
		tcp.close()
	}
	if udp != nil {
		udp.close()
	}

	joinCtx, cancel := context.WithTimeout(context.Background(), shutdownJoinTimeout)
	defer cancel()
	if tcp != nil {
		tcp.wait(joinCtx)
	}
	if udp != nil {
		udp.wait(joinCtx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tcp, s.udp, s.port = nil, nil, 0
	return s.lifecycle.fire(context.Background(), triggerDown)
}
