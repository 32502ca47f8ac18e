package framesock

import (
	"context"
	"sync"
)

// fakeTransport is an in-memory Transport. Connects complete inline with
// connectErr unless hang is set, sends complete inline unless holdSends is
// set, and receives complete when the test calls deliver or failReceive.
type fakeTransport struct {
	mu         sync.Mutex
	connectErr error
	hang       bool
	holdSends  bool
	sendErr    error

	sent    [][]byte
	held    []pendingSend
	recvBuf []byte
	recv    CompletionFunc
	closed  int
}

type pendingSend struct {
	n    int
	done CompletionFunc
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (f *fakeTransport) ConnectAsync(_ context.Context, _ string, done func(error)) {
	f.mu.Lock()
	hang, err := f.hang, f.connectErr
	f.mu.Unlock()

	if hang {
		return
	}
	done(err)
}

func (f *fakeTransport) SendAsync(b []byte, done CompletionFunc) {
	f.mu.Lock()
	if f.closed > 0 {
		f.mu.Unlock()
		done(0, ErrTransportClosed)
		return
	}
	f.sent = append(f.sent, append([]byte(nil), b...))
	if f.holdSends {
		f.held = append(f.held, pendingSend{n: len(b), done: done})
		f.mu.Unlock()
		return
	}
	err := f.sendErr
	f.mu.Unlock()

	if err != nil {
		done(0, err)
		return
	}
	done(len(b), nil)
}

func (f *fakeTransport) ReceiveAsync(b []byte, done CompletionFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recvBuf = b
	f.recv = done
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// deliver completes the armed receive with chunk, splitting it to the size
// of the receive buffer. It reports false if no receive was armed.
func (f *fakeTransport) deliver(chunk []byte) bool {
	for len(chunk) > 0 {
		f.mu.Lock()
		done, buf := f.recv, f.recvBuf
		f.recv = nil
		f.mu.Unlock()

		if done == nil {
			return false
		}
		n := copy(buf, chunk)
		chunk = chunk[n:]
		done(n, nil)
	}
	return true
}

func (f *fakeTransport) failReceive(err error) {
	f.mu.Lock()
	done := f.recv
	f.recv = nil
	f.mu.Unlock()

	if done != nil {
		done(0, err)
	}
}

// completeSends finishes every held send with err.
func (f *fakeTransport) completeSends(err error) {
	f.mu.Lock()
	held := f.held
	f.held = nil
	f.mu.Unlock()

	for _, p := range held {
		if err != nil {
			p.done(0, err)
			continue
		}
		p.done(p.n, nil)
	}
}

func (f *fakeTransport) armed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recv != nil
}

func (f *fakeTransport) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeDialer hands out fake transports and remembers them.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	configure  func(*fakeTransport)
}

func (d *fakeDialer) factory() Transport {
	t := newFakeTransport()
	if d.configure != nil {
		d.configure(t)
	}
	d.mu.Lock()
	d.transports = append(d.transports, t)
	d.mu.Unlock()
	return t
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[len(d.transports)-1]
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}
