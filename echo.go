package framesock

import (
	"io"
	"net"

	"github.com/pkg/errors"
)

// EchoHandler writes every frame it receives back to the sender.
type EchoHandler struct {
	// Logger receives connection events. Defaults to slog.Default().
	Logger Logger
	// MaxFrameSize limits accepted payloads; zero means unlimited.
	MaxFrameSize int
}

// Handle serves conn until the peer disconnects or sends an oversized frame.
func (h *EchoHandler) Handle(conn *net.TCPConn) {
	logger := h.Logger
	if logger == nil {
		logger = defaultLogger()
	}
	defer conn.Close()

	asm := newReassembler(h.MaxFrameSize)
	buf := make([]byte, defaultReceiveBufferSize)
	out := make([]byte, 0, defaultReceiveBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			frames, ferr := asm.feed(buf[:n])
			out = out[:0]
			for _, frame := range frames {
				out = AppendFrame(out, frame)
			}
			if len(out) > 0 {
				if _, werr := conn.Write(out); werr != nil {
					logger.Debug("echo write error", "addr", conn.RemoteAddr(), "error", werr)
					return
				}
			}
			if ferr != nil {
				logger.Warn("echo frame rejected", "addr", conn.RemoteAddr(), "error", ferr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("echo read error", "addr", conn.RemoteAddr(), "error", err)
			}
			return
		}
	}
}
