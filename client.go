// Package framesock provides a persistent TCP client for length-prefixed
// messages. A Client owns one outbound connection: it connects with a bounded
// wait, sends frames without blocking through a bounded pool of send contexts,
// reassembles the inbound byte stream into frames and reports connect,
// disconnect and data events to registered observers.
package framesock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrConnectTimeout is reported when the handshake does not finish in time.
var ErrConnectTimeout = errors.New("connect timeout")

// defaultConnectTimeout bounds Connect when no positive timeout is given.
const defaultConnectTimeout = 5 * time.Second

// State is the lifecycle state of a Client.
type State int32

const (
	// StateIdle is the state of a client that never connected.
	StateIdle State = iota
	// StateConnecting is held while Connect waits for the handshake.
	StateConnecting
	// StateConnected means frames can be sent and received.
	StateConnected
	// StateDisconnected follows a failed connect, Disconnect or an I/O error.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// session holds the socket-level resources of one successful connect.
// Every connect builds a new session; a detached session ignores late
// completions.
type session struct {
	id        uuid.UUID
	addr      string
	transport Transport
	pool      *sendPool
	asm       *reassembler
	recvBuf   []byte
	onReceive CompletionFunc
	detached  atomic.Bool
}

// Stats is a snapshot of the current session's buffers.
type Stats struct {
	// Session identifies the live connection; it changes on every connect.
	Session uuid.UUID
	// SendContexts is the number of send contexts allocated.
	SendContexts int
	// IdleSendContexts is the number of allocated contexts not in flight.
	IdleSendContexts int
	// Buffered is the number of received bytes not yet forming a frame.
	Buffered int
}

// Client is a length-prefixed message client over a single connection.
// It is safe for concurrent use.
type Client struct {
	opts   options
	logger Logger

	connectMu sync.Mutex
	state     atomic.Int32
	sess      atomic.Pointer[session]
}

// NewClient creates an idle client configured by opt.
func NewClient(opt ...Option) *Client {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	return &Client{
		opts:   opts,
		logger: opts.logger,
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connected reports whether the client currently holds a live connection.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// Addr returns the remote address of the live connection, or "".
func (c *Client) Addr() string {
	if s := c.sess.Load(); s != nil {
		return s.addr
	}
	return ""
}

// Session returns the identifier of the live connection, or uuid.Nil.
func (c *Client) Session() uuid.UUID {
	if s := c.sess.Load(); s != nil {
		return s.id
	}
	return uuid.Nil
}

// Stats returns buffer occupancy of the live connection.
func (c *Client) Stats() Stats {
	s := c.sess.Load()
	if s == nil {
		return Stats{}
	}
	allocated, idle := s.pool.Stats()
	return Stats{
		Session:          s.id,
		SendContexts:     allocated,
		IdleSendContexts: idle,
		Buffered:         s.asm.buffered(),
	}
}

// Connect opens a connection to addr and blocks for at most timeout waiting
// for the handshake. A non-positive timeout means five seconds. Connect is a
// no-op returning true while connected. Connect observers are notified with
// the outcome either way; a failed or timed-out attempt leaves the client
// disconnected and is not retried. Observers run without internal locks
// held, so they may call Connect again.
func (c *Client) Connect(addr string, timeout time.Duration) bool {
	s, ok, attempted := c.connect(addr, timeout)
	if !attempted {
		return ok
	}

	c.notifyConnect(ok)
	if ok {
		// armed after notifying so no data callback precedes the connect callback
		c.receive(s)
	}
	return ok
}

// connect performs one attempt under connectMu. attempted is false when the
// client was already connected.
func (c *Client) connect(addr string, timeout time.Duration) (s *session, ok, attempted bool) {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.Connected() {
		return nil, true, false
	}
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	s = &session{
		id:        uuid.New(),
		addr:      addr,
		transport: c.opts.transport(),
	}
	c.state.Store(int32(StateConnecting))
	c.logger.Debug("connecting", "addr", addr, "session", s.id, "timeout", timeout)

	err := c.await(s, timeout)
	c.opts.metrics.connected(err == nil)
	if err != nil {
		_ = s.transport.Close()
		c.state.Store(int32(StateDisconnected))
		c.logger.Info("connect failed", "addr", addr, "session", s.id, "error", err)
		return s, false, true
	}

	s.pool = newSendPool(c.opts.poolCapacity, func(ctx *sendContext) {
		ctx.complete = func(n int, err error) {
			c.sendCompleted(s, ctx, n, err)
		}
	})
	s.asm = newReassembler(c.opts.maxFrameSize)
	s.recvBuf = make([]byte, c.opts.receiveBufferSize)
	s.onReceive = func(n int, err error) {
		c.receiveCompleted(s, n, err)
	}

	c.sess.Store(s)
	c.state.Store(int32(StateConnected))
	c.logger.Info("connected", "addr", addr, "session", s.id)
	return s, true, true
}

// await starts the asynchronous connect and waits for it or the timeout.
func (c *Client) await(s *session, timeout time.Duration) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result := make(chan error, 1)
	s.transport.ConnectAsync(ctx, s.addr, func(err error) {
		result <- err
	})

	timer := c.opts.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-timer.C:
		return errors.Wrapf(ErrConnectTimeout, "after %s", timeout)
	}
}

// Send frames payload and hands it to the transport without blocking.
// It is a silent no-op when the client is not connected or payload is
// empty. When every send context is in flight and the pool is at its
// ceiling, the payload is dropped.
func (c *Client) Send(payload []byte) {
	if len(payload) == 0 {
		return
	}
	s := c.sess.Load()
	if s == nil || s.detached.Load() {
		return
	}

	ctx, ok := s.pool.Acquire()
	if !ok {
		c.opts.metrics.dropped()
		c.logger.Debug("send dropped", "session", s.id, "bytes", len(payload))
		return
	}
	c.opts.metrics.contexts(s.pool)

	ctx.buf = AppendFrame(ctx.buf[:0], payload)
	s.transport.SendAsync(ctx.buf, ctx.complete)
}

func (c *Client) sendCompleted(s *session, ctx *sendContext, n int, err error) {
	if s.detached.Load() {
		return
	}
	if err != nil {
		c.fail(s, "send", err)
		return
	}
	c.opts.metrics.sent(n)
	s.pool.Release(ctx)
}

// receive arms the next read into the session's receive buffer.
func (c *Client) receive(s *session) {
	if s.detached.Load() {
		return
	}
	s.transport.ReceiveAsync(s.recvBuf, s.onReceive)
}

// receiveCompleted feeds the read bytes to the reassembler, delivers every
// complete frame in order and re-arms the read.
func (c *Client) receiveCompleted(s *session, n int, err error) {
	if s.detached.Load() {
		return
	}
	if err == nil && n == 0 {
		err = ErrPeerClosed
	}
	if err != nil {
		c.fail(s, "receive", err)
		return
	}

	frames, err := s.asm.feed(s.recvBuf[:n])
	c.opts.metrics.received(n, len(frames))
	for _, frame := range frames {
		if s.detached.Load() {
			return
		}
		c.notifyData(frame)
	}
	if err != nil {
		c.fail(s, "receive", err)
		return
	}

	c.receive(s)
}

// fail handles an I/O error on s by disconnecting it.
func (c *Client) fail(s *session, op string, err error) {
	c.logger.Debug(op+" error", "addr", s.addr, "session", s.id, "error", err)
	c.disconnect(s)
}

// Disconnect closes the live connection and notifies disconnect observers.
// It does nothing when not connected, so concurrent and repeated calls
// notify at most once per connection.
func (c *Client) Disconnect() {
	if s := c.sess.Load(); s != nil {
		c.disconnect(s)
	}
}

func (c *Client) disconnect(s *session) {
	if !c.sess.CompareAndSwap(s, nil) {
		return
	}
	s.detached.Store(true)
	c.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected))

	if err := s.transport.Close(); err != nil {
		c.logger.Debug("close transport", "session", s.id, "error", err)
	}

	c.opts.metrics.disconnected()
	c.logger.Info("disconnected", "addr", s.addr, "session", s.id)
	for _, cb := range c.opts.onDisconnect {
		cb()
	}
}

func (c *Client) notifyConnect(ok bool) {
	for _, cb := range c.opts.onConnectResult {
		cb(ok)
	}
}

func (c *Client) notifyData(payload []byte) {
	for _, cb := range c.opts.onDataReceive {
		cb(payload)
	}
}
