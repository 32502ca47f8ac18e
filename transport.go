package framesock

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors reported through transport completions.
var (
	// ErrTransportClosed is reported for operations on a closed transport.
	ErrTransportClosed = errors.New("transport closed")
	// ErrSendQueueFull is reported when the write queue cannot accept a frame.
	ErrSendQueueFull = errors.New("send queue full")
	// ErrPeerClosed is reported when a receive completes with zero bytes.
	ErrPeerClosed = errors.New("peer closed connection")
	// ErrReceivePending is reported when a receive is issued while another
	// one is still outstanding.
	ErrReceivePending = errors.New("receive already pending")
)

// CompletionFunc receives the outcome of an asynchronous send or receive.
type CompletionFunc func(n int, err error)

// Transport is an asynchronous socket handle. Every operation reports its
// outcome through a completion callback, which may run inline on the calling
// goroutine or later on a transport goroutine. Implementations must be safe
// for concurrent use.
type Transport interface {
	// ConnectAsync starts connecting to addr and calls done once.
	ConnectAsync(ctx context.Context, addr string, done func(error))
	// SendAsync writes b and calls done once. Sends complete in the order
	// they were issued by a single goroutine.
	SendAsync(b []byte, done CompletionFunc)
	// ReceiveAsync reads into b and calls done once with the bytes read.
	ReceiveAsync(b []byte, done CompletionFunc)
	// Close releases the socket. Pending operations complete with an error
	// or are abandoned.
	Close() error
}

// TransportFactory creates a fresh, unconnected transport for each connect.
type TransportFactory func() Transport

// TCPTransportFactory returns a factory of TCP transports whose write queue
// holds up to queueSize frames.
func TCPTransportFactory(queueSize int, logger Logger) TransportFactory {
	return func() Transport {
		return newTCPTransport(queueSize, logger)
	}
}

type ioRequest struct {
	buf  []byte
	done CompletionFunc
}

// tcpTransport drives a TCP connection with one write loop and one read loop.
type tcpTransport struct {
	dialer net.Dialer
	logger Logger

	mu     sync.Mutex
	conn   net.Conn
	cancel context.CancelFunc

	sendQ  chan ioRequest
	recvQ  chan ioRequest
	closed atomic.Bool
}

func newTCPTransport(queueSize int, logger Logger) *tcpTransport {
	if queueSize <= 0 {
		queueSize = defaultPoolCapacity
	}
	return &tcpTransport{
		logger: logger,
		sendQ:  make(chan ioRequest, queueSize),
		recvQ:  make(chan ioRequest, 1),
	}
}

func (t *tcpTransport) ConnectAsync(ctx context.Context, addr string, done func(error)) {
	go func() {
		conn, err := t.dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			done(errors.Wrapf(err, "dial %s", addr))
			return
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		t.mu.Lock()
		if t.closed.Load() {
			t.mu.Unlock()
			conn.Close()
			done(ErrTransportClosed)
			return
		}
		t.conn = conn
		t.start()
		t.mu.Unlock()

		done(nil)
	}()
}

// start runs the read and write loops; t.mu must be held.
func (t *tcpTransport) start() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return t.readLoop(child)
	})

	group.Go(func() error {
		return t.writeLoop(child)
	})

	go func() {
		err := group.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Debug("transport loops stopped", "addr", t.conn.RemoteAddr(), "error", err)
		}
	}()
}

func (t *tcpTransport) SendAsync(b []byte, done CompletionFunc) {
	if t.closed.Load() {
		done(0, ErrTransportClosed)
		return
	}

	select {
	case t.sendQ <- ioRequest{buf: b, done: done}:
	default:
		done(0, ErrSendQueueFull)
	}
}

func (t *tcpTransport) ReceiveAsync(b []byte, done CompletionFunc) {
	if t.closed.Load() {
		done(0, ErrTransportClosed)
		return
	}

	select {
	case t.recvQ <- ioRequest{buf: b, done: done}:
	default:
		done(0, ErrReceivePending)
	}
}

// Close cancels both loops and closes the connection, which unblocks a
// pending read. Safe to call multiple times and from completion callbacks.
func (t *tcpTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

// readLoop serves receive requests one at a time.
func (t *tcpTransport) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-t.recvQ:
			n, err := t.conn.Read(req.buf)
			if err == nil && n == 0 {
				err = ErrPeerClosed
			}
			req.done(n, err)
			if err != nil {
				return err
			}
		}
	}
}

// writeLoop writes queued frames in issue order.
func (t *tcpTransport) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-t.sendQ:
			n, err := t.conn.Write(req.buf)
			req.done(n, err)
			if err != nil {
				return err
			}
		}
	}
}
