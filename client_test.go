package framesock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorder collects observer notifications.
type recorder struct {
	mu          sync.Mutex
	results     []bool
	disconnects int
	payloads    [][]byte
}

func (r *recorder) options() []Option {
	return []Option{
		OnConnectResultOption(func(ok bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.results = append(r.results, ok)
		}),
		OnDisconnectOption(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.disconnects++
		}),
		OnDataReceiveOption(func(p []byte) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.payloads = append(r.payloads, p)
		}),
	}
}

func (r *recorder) connectResults() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.results...)
}

func (r *recorder) disconnectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnects
}

func (r *recorder) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.payloads))
	for i, p := range r.payloads {
		out[i] = string(p)
	}
	return out
}

func newTestClient(t *testing.T, d *fakeDialer, extra ...Option) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts := append([]Option{TransportOption(d.factory), LoggerOption(NewZapLogger(zap.NewNop()))}, rec.options()...)
	return NewClient(append(opts, extra...)...), rec
}

func connectTestClient(t *testing.T, d *fakeDialer, extra ...Option) (*Client, *recorder, *fakeTransport) {
	t.Helper()
	c, rec := newTestClient(t, d, extra...)
	require.True(t, c.Connect("127.0.0.1:9000", time.Second))
	return c, rec, d.last()
}

func TestClient_InitialState(t *testing.T) {
	c, _ := newTestClient(t, &fakeDialer{})
	assert.Equal(t, StateIdle, c.State())
	assert.False(t, c.Connected())
	assert.Empty(t, c.Addr())
	assert.Equal(t, Stats{}, c.Stats())
}

func TestClient_Connect(t *testing.T) {
	c, rec, tr := connectTestClient(t, &fakeDialer{})

	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, "127.0.0.1:9000", c.Addr())
	assert.Equal(t, []bool{true}, rec.connectResults())
	assert.True(t, tr.armed(), "receive should be armed")
}

func TestClient_ConnectWhileConnectedIsNoop(t *testing.T) {
	d := &fakeDialer{}
	c, rec, _ := connectTestClient(t, d)

	assert.True(t, c.Connect("127.0.0.1:9001", time.Second))
	assert.Equal(t, 1, d.count())
	assert.Equal(t, []bool{true}, rec.connectResults())
	assert.Equal(t, "127.0.0.1:9000", c.Addr())
}

func TestClient_ConnectFailure(t *testing.T) {
	d := &fakeDialer{configure: func(f *fakeTransport) {
		f.connectErr = errors.New("connection refused")
	}}
	c, rec := newTestClient(t, d)

	assert.False(t, c.Connect("127.0.0.1:9000", time.Second))
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, []bool{false}, rec.connectResults())
	assert.Equal(t, 1, d.last().closeCount())
	assert.Zero(t, rec.disconnectCount())
}

func TestClient_ConnectTimeout(t *testing.T) {
	d := &fakeDialer{configure: func(f *fakeTransport) { f.hang = true }}
	c, rec := newTestClient(t, d)

	start := time.Now()
	assert.False(t, c.Connect("10.0.0.1:9000", 50*time.Millisecond))
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, []bool{false}, rec.connectResults())
	assert.Equal(t, 1, d.last().closeCount())
}

func TestClient_ConnectRetryFromObserver(t *testing.T) {
	var attempts atomic.Int32
	d := &fakeDialer{configure: func(f *fakeTransport) {
		if attempts.Add(1) == 1 {
			f.connectErr = errors.New("connection refused")
		}
	}}

	var c *Client
	var results []bool
	retried := make(chan bool, 1)
	c = NewClient(
		TransportOption(d.factory),
		LoggerOption(NewZapLogger(zap.NewNop())),
		OnConnectResultOption(func(ok bool) {
			results = append(results, ok)
			if !ok {
				retried <- c.Connect("127.0.0.1:9000", time.Second)
			}
		}),
	)

	done := make(chan bool, 1)
	go func() { done <- c.Connect("127.0.0.1:9000", time.Second) }()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("Connect blocked when an observer reconnected")
	}

	assert.True(t, <-retried)
	assert.Equal(t, []bool{false, true}, results)
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, 2, d.count())
	assert.True(t, d.last().armed())
}

func TestClient_Send(t *testing.T) {
	c, _, tr := connectTestClient(t, &fakeDialer{})

	c.Send([]byte("hello"))
	c.Send([]byte("world"))

	sent := tr.sentFrames()
	require.Len(t, sent, 2)
	assert.Equal(t, Encode([]byte("hello")), sent[0])
	assert.Equal(t, Encode([]byte("world")), sent[1])

	stats := c.Stats()
	assert.Equal(t, 1, stats.SendContexts, "synchronous completion returns the context")
	assert.Equal(t, 1, stats.IdleSendContexts)
}

func TestClient_SendNoop(t *testing.T) {
	d := &fakeDialer{}
	c, _ := newTestClient(t, d)

	c.Send([]byte("offline"))

	require.True(t, c.Connect("127.0.0.1:9000", time.Second))
	c.Send(nil)
	c.Send([]byte{})
	assert.Empty(t, d.last().sentFrames())
}

func TestClient_PoolCeilingDropsExcess(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics("test", reg)
	d := &fakeDialer{configure: func(f *fakeTransport) { f.holdSends = true }}
	c, rec, tr := connectTestClient(t, d, PoolCapacityOption(3), MetricsOption(metrics))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			c.Send([]byte{byte(i)})
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Send blocked")
	}

	assert.Len(t, tr.sentFrames(), 3)
	assert.Equal(t, 3, c.Stats().SendContexts)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.sendsDropped))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.sendContexts))

	tr.completeSends(nil)
	stats := c.Stats()
	assert.Equal(t, 3, stats.SendContexts)
	assert.Equal(t, 3, stats.IdleSendContexts)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.framesSent))

	c.Send([]byte("again"))
	assert.Len(t, tr.sentFrames(), 4)
	assert.Equal(t, 3, c.Stats().SendContexts)
	assert.True(t, c.Connected())
	assert.Zero(t, rec.disconnectCount())
}

func TestClient_ReceiveMultipleFrames(t *testing.T) {
	c, rec, tr := connectTestClient(t, &fakeDialer{})

	var chunk []byte
	for _, p := range []string{"p1", "p2", "p3"} {
		chunk = append(chunk, Encode([]byte(p))...)
	}
	require.True(t, tr.deliver(chunk))

	assert.Equal(t, []string{"p1", "p2", "p3"}, rec.received())
	assert.True(t, tr.armed())
	assert.Zero(t, c.Stats().Buffered)
}

func TestClient_ReceivePartialFrame(t *testing.T) {
	frame := Encode([]byte("partial frame"))

	for k := 1; k < len(frame); k++ {
		c, rec, tr := connectTestClient(t, &fakeDialer{})

		require.True(t, tr.deliver(frame[:k]))
		assert.Empty(t, rec.received(), "split %d", k)
		assert.Equal(t, k, c.Stats().Buffered)

		require.True(t, tr.deliver(frame[k:]))
		assert.Equal(t, []string{"partial frame"}, rec.received(), "split %d", k)
	}
}

func TestClient_ReceiveShortPrefix(t *testing.T) {
	for n := 1; n < PrefixSize; n++ {
		c, rec, tr := connectTestClient(t, &fakeDialer{})

		require.True(t, tr.deliver(make([]byte, n)))
		assert.Empty(t, rec.received())
		assert.Equal(t, n, c.Stats().Buffered)
		assert.True(t, c.Connected())
	}
}

func TestClient_ReceiveLargerThanBuffer(t *testing.T) {
	c, rec, tr := connectTestClient(t, &fakeDialer{}, ReceiveBufferSizeOption(16))

	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.True(t, tr.deliver(Encode(payload)))

	got := rec.received()
	require.Len(t, got, 1)
	assert.Equal(t, string(payload), got[0])
	assert.True(t, c.Connected())
}

func TestClient_ReceiveErrorDisconnects(t *testing.T) {
	c, rec, tr := connectTestClient(t, &fakeDialer{})

	tr.failReceive(errors.New("connection reset"))

	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, rec.disconnectCount())
	assert.Equal(t, 1, tr.closeCount())
}

func TestClient_ZeroByteReceiveDisconnects(t *testing.T) {
	c, rec, tr := connectTestClient(t, &fakeDialer{})

	tr.mu.Lock()
	done := tr.recv
	tr.mu.Unlock()
	done(0, nil)

	assert.False(t, c.Connected())
	assert.Equal(t, 1, rec.disconnectCount())
}

func TestClient_SendErrorDisconnects(t *testing.T) {
	d := &fakeDialer{configure: func(f *fakeTransport) { f.sendErr = errors.New("broken pipe") }}
	c, rec, _ := connectTestClient(t, d)

	c.Send([]byte("boom"))

	assert.False(t, c.Connected())
	assert.Equal(t, 1, rec.disconnectCount())
}

func TestClient_OversizedFrameDisconnects(t *testing.T) {
	c, rec, tr := connectTestClient(t, &fakeDialer{}, MaxFrameSizeOption(8))

	require.True(t, tr.deliver(append(Encode([]byte("ok")), 9, 0, 0, 0)))

	assert.Equal(t, []string{"ok"}, rec.received())
	assert.False(t, c.Connected())
	assert.Equal(t, 1, rec.disconnectCount())
}

func TestClient_DisconnectIdempotent(t *testing.T) {
	c, rec, tr := connectTestClient(t, &fakeDialer{})

	c.Disconnect()
	c.Disconnect()

	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, rec.disconnectCount())
	assert.Equal(t, 1, tr.closeCount())

	tr.failReceive(errors.New("late error"))
	assert.Equal(t, 1, rec.disconnectCount())
}

func TestClient_DisconnectRace(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := &fakeDialer{configure: func(f *fakeTransport) { f.holdSends = true }}
		c, rec, tr := connectTestClient(t, d)
		c.Send([]byte("in flight"))

		var wg sync.WaitGroup
		var start sync.WaitGroup
		start.Add(1)
		for _, fn := range []func(){
			c.Disconnect,
			c.Disconnect,
			func() { tr.failReceive(errors.New("reset")) },
			func() { tr.completeSends(errors.New("broken pipe")) },
		} {
			wg.Add(1)
			go func(fn func()) {
				defer wg.Done()
				start.Wait()
				fn()
			}(fn)
		}
		start.Done()
		wg.Wait()

		assert.Equal(t, 1, rec.disconnectCount())
		assert.Equal(t, StateDisconnected, c.State())
	}
}

func TestClient_LateSendCompletionIgnored(t *testing.T) {
	d := &fakeDialer{configure: func(f *fakeTransport) { f.holdSends = true }}
	c, rec, tr := connectTestClient(t, d)

	c.Send([]byte("pending"))
	c.Disconnect()
	tr.completeSends(errors.New("closed"))

	assert.Equal(t, 1, rec.disconnectCount())
}

func TestClient_ReconnectUsesFreshResources(t *testing.T) {
	d := &fakeDialer{configure: func(f *fakeTransport) { f.holdSends = true }}
	c, rec, first := connectTestClient(t, d)

	c.Send([]byte("a"))
	require.True(t, first.deliver([]byte{1, 0}))
	require.Equal(t, 1, c.Stats().SendContexts)
	require.Equal(t, 2, c.Stats().Buffered)
	firstSession := c.Session()
	require.NotEqual(t, uuid.Nil, firstSession)

	c.Disconnect()
	assert.Equal(t, uuid.Nil, c.Session())
	require.True(t, c.Connect("127.0.0.1:9000", time.Second))

	second := d.last()
	assert.NotSame(t, first, second)
	stats := c.Stats()
	assert.NotEqual(t, firstSession, stats.Session)
	assert.Equal(t, c.Session(), stats.Session)
	assert.Zero(t, stats.SendContexts)
	assert.Zero(t, stats.Buffered)
	assert.Equal(t, []bool{true, true}, rec.connectResults())

	// old transport's completions no longer reach the client
	first.failReceive(errors.New("stale"))
	assert.True(t, c.Connected())
	assert.Equal(t, 1, rec.disconnectCount())
}

func TestClient_DisconnectFromObserver(t *testing.T) {
	d := &fakeDialer{}
	var c *Client
	var delivered atomic.Int32
	c, rec := newTestClient(t, d, OnDataReceiveOption(func([]byte) {
		delivered.Add(1)
		c.Disconnect()
	}))
	require.True(t, c.Connect("127.0.0.1:9000", time.Second))

	tr := d.last()
	tr.deliver(append(Encode([]byte("1")), Encode([]byte("2"))...))

	assert.Equal(t, int32(1), delivered.Load())
	assert.Equal(t, 1, rec.disconnectCount())
	assert.False(t, tr.armed())
}

func TestClient_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics("test", reg)
	d := &fakeDialer{}
	c, _, tr := connectTestClient(t, d, MetricsOption(metrics))

	c.Send([]byte("abc"))
	tr.deliver(append(Encode([]byte("x")), Encode([]byte("y"))...))
	c.Disconnect()

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.framesSent))
	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.bytesSent))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.framesReceived))
	assert.Equal(t, 10.0, testutil.ToFloat64(metrics.bytesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.connects.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.disconnects))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.sendContexts))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.sent(1)
	m.received(4, 1)
	m.dropped()
	m.connected(true)
	m.disconnected()
	m.contexts(newSendPool(1, nil))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "unknown", State(42).String())
}
