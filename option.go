package framesock

import (
	"github.com/benbjohnson/clock"
)

// Default configuration values.
const (
	// defaultReceiveBufferSize is the size of the region each receive reads into.
	defaultReceiveBufferSize = 1024
)

// options holds the configuration for a client.
type options struct {
	transport TransportFactory
	logger    Logger
	clock     clock.Clock
	metrics   *Metrics

	onConnectResult []func(ok bool)
	onDisconnect    []func()
	onDataReceive   []func(payload []byte)

	poolCapacity      int // ceiling on allocated send contexts
	receiveBufferSize int // bytes requested per receive
	maxFrameSize      int // largest accepted payload, 0 for no limit
}

// Option is a function that configures client options.
type Option func(*options)

// checkOptions sets default values for unset options.
func checkOptions(opts *options) {
	if opts.poolCapacity <= 0 {
		opts.poolCapacity = defaultPoolCapacity
	}

	if opts.receiveBufferSize <= 0 {
		opts.receiveBufferSize = defaultReceiveBufferSize
	}

	if opts.maxFrameSize < 0 {
		opts.maxFrameSize = 0
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.clock == nil {
		opts.clock = clock.New()
	}

	if opts.transport == nil {
		opts.transport = TCPTransportFactory(opts.poolCapacity, opts.logger)
	}
}

// TransportOption returns an Option that sets the transport factory.
// A new transport is created for every connect. Defaults to TCP.
func TransportOption(factory TransportFactory) Option {
	return func(o *options) {
		o.transport = factory
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// ClockOption returns an Option that sets the clock used for the connect timeout.
func ClockOption(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// MetricsOption returns an Option that records client activity in m.
func MetricsOption(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// PoolCapacityOption returns an Option that sets the maximum number of send
// contexts a session may allocate. Sends beyond it are dropped while every
// context is in flight.
func PoolCapacityOption(capacity int) Option {
	return func(o *options) {
		o.poolCapacity = capacity
	}
}

// ReceiveBufferSizeOption returns an Option that sets how many bytes each
// receive operation may read.
func ReceiveBufferSizeOption(size int) Option {
	return func(o *options) {
		o.receiveBufferSize = size
	}
}

// MaxFrameSizeOption returns an Option that limits the payload length a peer
// may declare. A larger frame disconnects the client. Zero disables the limit.
func MaxFrameSizeOption(size int) Option {
	return func(o *options) {
		o.maxFrameSize = size
	}
}

// OnConnectResultOption registers an observer for the outcome of Connect.
// Observers run on the connecting goroutine.
func OnConnectResultOption(cb func(ok bool)) Option {
	return func(o *options) {
		o.onConnectResult = append(o.onConnectResult, cb)
	}
}

// OnDisconnectOption registers an observer called once per disconnect.
func OnDisconnectOption(cb func()) Option {
	return func(o *options) {
		o.onDisconnect = append(o.onDisconnect, cb)
	}
}

// OnDataReceiveOption registers an observer for each decoded payload.
// It runs on the receive completion path and must not block.
func OnDataReceiveOption(cb func(payload []byte)) Option {
	return func(o *options) {
		o.onDataReceive = append(o.onDataReceive, cb)
	}
}
