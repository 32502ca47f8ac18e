// Package host is the application side of a framesock connection: it
// validates the endpoint, owns one client, queues decoded messages for the
// application's update loop to drain and keeps the link alive with a
// heartbeat.
package host

import (
	"net"
	"strconv"
	"sync"

	"github.com/Zereker/framesock"
	"github.com/Zereker/framesock/payload"
	"github.com/pkg/errors"
)

// Errors returned by Manager.
var (
	// ErrInvalidEndpoint is returned for a non-IP address or out-of-range port.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	// ErrOffline is returned when sending without a connection.
	ErrOffline = errors.New("offline")
	// ErrEncode is returned when the codec cannot encode a value.
	ErrEncode = errors.New("encode failed")
)

// Manager connects one framesock client and buffers what it receives.
type Manager struct {
	opts      options
	logger    framesock.Logger
	client    *framesock.Client
	heartbeat *Heartbeat

	mu    sync.Mutex
	inbox [][]byte
}

// New creates a disconnected manager.
func New(opt ...Option) *Manager {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	m := &Manager{
		opts:   opts,
		logger: opts.logger,
	}
	m.heartbeat = NewHeartbeat(opts.clock, opts.heartbeatInterval, m.beat)

	clientOpts := []framesock.Option{
		framesock.LoggerOption(opts.logger),
		framesock.ClockOption(opts.clock),
		framesock.OnConnectResultOption(m.onConnectResult),
		framesock.OnDisconnectOption(m.onDisconnect),
		framesock.OnDataReceiveOption(m.onDataReceive),
	}
	m.client = framesock.NewClient(append(clientOpts, opts.clientOpts...)...)
	return m
}

// Client returns the underlying client.
func (m *Manager) Client() *framesock.Client {
	return m.client
}

// Connected reports whether the client is connected.
func (m *Manager) Connected() bool {
	return m.client.Connected()
}

// Connect validates ip and port, then connects with the configured timeout.
// It reports the connect outcome; the error is only for invalid endpoints.
func (m *Manager) Connect(ip string, port int) (bool, error) {
	if net.ParseIP(ip) == nil || port < 0 || port > 65535 {
		m.logger.Error("invalid endpoint", "ip", ip, "port", port)
		return false, errors.Wrapf(ErrInvalidEndpoint, "%s:%d", ip, port)
	}
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	return m.client.Connect(addr, m.opts.connectTimeout), nil
}

// Disconnect closes the connection if there is one.
func (m *Manager) Disconnect() {
	m.client.Disconnect()
}

// Close stops the heartbeat and disconnects.
func (m *Manager) Close() {
	m.heartbeat.Stop()
	m.client.Disconnect()
}

// Send writes msg as one frame.
func (m *Manager) Send(msg Message) error {
	if !m.client.Connected() {
		m.logger.Debug("offline, message not sent", "type", msg.Type, "request", msg.Request)
		return ErrOffline
	}
	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	m.client.Send(data)
	return nil
}

// SendValue encodes v with the manager's codec and sends it as the body of
// a message with the given type and request codes.
func SendValue[T any](m *Manager, typ, request byte, v T) error {
	body := payload.Encode(m.opts.codec, v)
	if body == nil {
		return errors.Wrapf(ErrEncode, "type %d request %d", typ, request)
	}
	return m.Send(Message{Type: typ, Request: request, Body: body})
}

// DecodeValue decodes the body of msg with the manager's codec. It returns
// the zero T when the body cannot be decoded.
func DecodeValue[T any](m *Manager, msg Message) T {
	return payload.Decode[T](m.opts.codec, msg.Body)
}

// Pending returns the number of received payloads not yet drained.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inbox)
}

// Drain removes and returns every received message in arrival order.
// Payloads too short to hold a message header are logged and skipped.
func (m *Manager) Drain() []Message {
	m.mu.Lock()
	inbox := m.inbox
	m.inbox = nil
	m.mu.Unlock()

	msgs := make([]Message, 0, len(inbox))
	for _, data := range inbox {
		var msg Message
		if err := msg.UnmarshalBinary(data); err != nil {
			m.logger.Warn("dropping message", "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func (m *Manager) onConnectResult(ok bool) {
	m.logger.Info("connect result", "ok", ok)
	if ok {
		m.heartbeat.Start()
	}
}

func (m *Manager) onDisconnect() {
	m.heartbeat.Stop()
	m.logger.Info("connection lost")
}

func (m *Manager) onDataReceive(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox = append(m.inbox, data)
}

// beat sends an empty message while connected.
func (m *Manager) beat() {
	if !m.client.Connected() {
		m.heartbeat.Stop()
		return
	}
	_ = m.Send(Message{})
}
