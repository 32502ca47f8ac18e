package framesock

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrFrameTooLarge is returned when a peer declares a frame longer than the
// configured maximum.
var ErrFrameTooLarge = errors.New("frame too large")

// reassembler owns the receive accumulator of one session: bytes received
// but not yet consumed into complete frames.
type reassembler struct {
	mu      sync.Mutex
	acc     []byte
	maxSize int
}

func newReassembler(maxSize int) *reassembler {
	return &reassembler{maxSize: maxSize}
}

// feed appends chunk to the accumulator and returns every frame now
// complete, in arrival order. Returned payloads are owned by the caller.
// Partial frames stay buffered until later chunks complete them.
func (r *reassembler) feed(chunk []byte) ([][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.acc = append(r.acc, chunk...)
	frames, rest := DecodeAll(r.acc)

	out := make([][]byte, 0, len(frames))
	for _, f := range frames {
		if err := r.checkSize(len(f)); err != nil {
			r.acc = r.acc[:0]
			return out, err
		}
		out = append(out, append([]byte(nil), f...))
	}
	r.acc = append(r.acc[:0], rest...)

	if n, ok := declaredLength(r.acc); ok {
		if err := r.checkSize(int(n)); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (r *reassembler) checkSize(n int) error {
	if r.maxSize > 0 && n > r.maxSize {
		return errors.Wrapf(ErrFrameTooLarge, "declared %d bytes, limit %d", n, r.maxSize)
	}
	return nil
}

// buffered returns the number of accumulated, unconsumed bytes.
func (r *reassembler) buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.acc)
}
