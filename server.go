package framesock

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Handler serves one accepted connection. It owns conn until it returns.
type Handler interface {
	Handle(conn *net.TCPConn)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(conn *net.TCPConn)

// Handle calls f(conn).
func (f HandlerFunc) Handle(conn *net.TCPConn) {
	f(conn)
}

// Server accepts frame peers and hands each connection to a Handler.
// The echo command and the tests use it as the far end of a Client.
type Server struct {
	listener *net.TCPListener
	logger   Logger
	grace    time.Duration

	mu      sync.Mutex
	closing bool
	// closeNow cuts the grace period short.
	closeNow chan struct{}
	conns    map[*net.TCPConn]struct{}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the server logger. The default is slog.Default().
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerShutdownTimeoutOption keeps accepting for up to timeout after the
// Serve context is canceled. Close ends the wait early. Zero stops at once.
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.grace = timeout
	}
}

// New listens on addr.
func New(addr *net.TCPAddr, opts ...ServerOption) (*Server, error) {
	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}

	s := &Server{
		listener: listener,
		logger:   slog.Default(),
		closeNow: make(chan struct{}),
		conns:    make(map[*net.TCPConn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Serve accepts connections and runs handler for each on its own goroutine.
// It returns ctx.Err() once ctx is canceled and the grace period ends, or
// the accept error that stopped it.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("server started", "addr", s.listener.Addr())
	go s.watch(ctx)

	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			if s.isClosing() {
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		s.logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		_ = conn.SetNoDelay(true)
		s.track(conn)
		go func() {
			defer s.untrack(conn)
			handler.Handle(conn)
		}()
	}
}

// watch unblocks Accept once ctx is done and the grace period is over.
func (s *Server) watch(ctx context.Context) {
	<-ctx.Done()

	if s.grace > 0 {
		s.logger.Info("draining before shutdown", "grace", s.grace)
		select {
		case <-time.After(s.grace):
		case <-s.closeNow:
			s.logger.Debug("grace period cut short by Close")
		}
	}

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	_ = s.listener.SetDeadline(time.Now())
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) track(conn *net.TCPConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn *net.TCPConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Close closes the listener and every connection still being handled,
// ending any grace period in progress.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*net.TCPConn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	select {
	case s.closeNow <- struct{}{}:
	default:
	}

	err := s.listener.Close()
	for _, conn := range conns {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	return err
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
