package framesock

import "encoding/binary"

// PrefixSize is the size of the length prefix in front of every frame.
const PrefixSize = 4

// Encode returns payload framed as [4-byte little-endian length][payload].
// An empty payload yields a frame with a zero length prefix.
func Encode(payload []byte) []byte {
	return AppendFrame(make([]byte, 0, PrefixSize+len(payload)), payload)
}

// AppendFrame appends the framed payload to dst and returns the extended slice.
func AppendFrame(dst, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// TryDecodeOne extracts the first complete frame from acc.
// It reports ok=false and consumed=0 while acc holds fewer than PrefixSize
// bytes or a payload shorter than the declared length. The returned frame
// aliases acc.
func TryDecodeOne(acc []byte) (frame []byte, consumed int, ok bool) {
	if len(acc) < PrefixSize {
		return nil, 0, false
	}

	n := uint64(binary.LittleEndian.Uint32(acc))
	if uint64(len(acc)-PrefixSize) < n {
		return nil, 0, false
	}

	end := PrefixSize + int(n)
	return acc[PrefixSize:end:end], end, true
}

// DecodeAll extracts every complete frame from acc in arrival order and
// returns the unconsumed remainder. Frames and remainder alias acc.
func DecodeAll(acc []byte) (frames [][]byte, remainder []byte) {
	for {
		frame, consumed, ok := TryDecodeOne(acc)
		if !ok {
			return frames, acc
		}
		frames = append(frames, frame)
		acc = acc[consumed:]
	}
}

// declaredLength returns the length prefix at the head of acc, if complete.
func declaredLength(acc []byte) (uint32, bool) {
	if len(acc) < PrefixSize {
		return 0, false
	}
	return binary.LittleEndian.Uint32(acc), true
}
