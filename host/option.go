package host

import (
	"log/slog"
	"time"

	"github.com/Zereker/framesock"
	"github.com/Zereker/framesock/payload"
	"github.com/benbjohnson/clock"
)

// Default configuration values.
const (
	defaultConnectTimeout    = 5 * time.Second
	defaultHeartbeatInterval = 5 * time.Second
)

type options struct {
	connectTimeout    time.Duration
	heartbeatInterval time.Duration
	codec             payload.Codec
	logger            framesock.Logger
	clock             clock.Clock
	clientOpts        []framesock.Option
}

// Option is a function that configures a Manager.
type Option func(*options)

func checkOptions(opts *options) {
	if opts.connectTimeout <= 0 {
		opts.connectTimeout = defaultConnectTimeout
	}
	if opts.heartbeatInterval <= 0 {
		opts.heartbeatInterval = defaultHeartbeatInterval
	}
	if opts.codec == nil {
		opts.codec = payload.XML{}
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.clock == nil {
		opts.clock = clock.New()
	}
}

// ConnectTimeoutOption sets how long Connect waits for the handshake.
func ConnectTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = d
	}
}

// HeartbeatIntervalOption sets the period of heartbeat messages.
func HeartbeatIntervalOption(d time.Duration) Option {
	return func(o *options) {
		o.heartbeatInterval = d
	}
}

// CodecOption sets the codec used by SendValue and DecodeValue. Defaults to XML.
func CodecOption(c payload.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// LoggerOption sets the logger shared by the manager and its client.
func LoggerOption(l framesock.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// ClockOption sets the clock driving the heartbeat and the connect timeout.
func ClockOption(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// ClientOptions appends options for the underlying client. They are applied
// after the manager's own, so they may override its logger or clock.
func ClientOptions(opt ...framesock.Option) Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, opt...)
	}
}
