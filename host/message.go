package host

import "github.com/pkg/errors"

// ErrMalformedMessage is returned when a payload is too short for a header.
var ErrMalformedMessage = errors.New("malformed message")

// headerSize is the type byte plus the request byte.
const headerSize = 2

// Message is the application envelope carried inside one frame:
// [type][request][body...].
type Message struct {
	Type    byte
	Request byte
	Body    []byte
}

// MarshalBinary returns the wire form of m.
func (m Message) MarshalBinary() ([]byte, error) {
	b := make([]byte, headerSize, headerSize+len(m.Body))
	b[0] = m.Type
	b[1] = m.Request
	return append(b, m.Body...), nil
}

// UnmarshalBinary parses data into m. The body aliases data.
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return errors.Wrapf(ErrMalformedMessage, "%d bytes", len(data))
	}
	m.Type = data[0]
	m.Request = data[1]
	m.Body = data[headerSize:]
	return nil
}
