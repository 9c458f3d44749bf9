package dns

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Name-coding limits (RFC 1035 Section 3.1).
const (
	maxLabelLength = 63  // Maximum bytes per label
	maxNameLength  = 255 // Maximum total encoded name length
	maxPointerHops = 32  // Maximum compression pointer indirections per name
)

// ReadBuffer is a positioned, bounds-checked reader over an immutable
// byte slice holding one DNS message. Every read advances the cursor;
// reads past the end fail with ErrEndOfBuffer.
//
// ReadName understands message compression (RFC 1035 Section 4.1.4) and
// therefore needs access to the whole message, which is why name decoding
// lives here rather than on the record parsers.
type ReadBuffer struct {
	data []byte
	off  int
}

// NewReadBuffer wraps a message for reading. The slice is not copied;
// callers must not mutate it while the buffer is in use.
func NewReadBuffer(data []byte) *ReadBuffer {
	return &ReadBuffer{data: data}
}

// Len returns the total message length.
func (b *ReadBuffer) Len() int { return len(b.data) }

// Position returns the current cursor offset.
func (b *ReadBuffer) Position() int { return b.off }

// Seek moves the cursor to off. Seeking past the end of the message fails.
func (b *ReadBuffer) Seek(off int) error {
	if off < 0 || off > len(b.data) {
		return fmt.Errorf("%w: seek to %d in %d-byte message", ErrEndOfBuffer, off, len(b.data))
	}
	b.off = off
	return nil
}

// ReadUint8 reads one byte.
func (b *ReadBuffer) ReadUint8() (uint8, error) {
	if b.off+1 > len(b.data) {
		return 0, fmt.Errorf("%w: reading u8 at %d", ErrEndOfBuffer, b.off)
	}
	v := b.data[b.off]
	b.off++
	return v, nil
}

// ReadUint16 reads a big-endian 16-bit value.
func (b *ReadBuffer) ReadUint16() (uint16, error) {
	if b.off+2 > len(b.data) {
		return 0, fmt.Errorf("%w: reading u16 at %d", ErrEndOfBuffer, b.off)
	}
	v := binary.BigEndian.Uint16(b.data[b.off : b.off+2])
	b.off += 2
	return v, nil
}

// ReadUint32 reads a big-endian 32-bit value.
func (b *ReadBuffer) ReadUint32() (uint32, error) {
	if b.off+4 > len(b.data) {
		return 0, fmt.Errorf("%w: reading u32 at %d", ErrEndOfBuffer, b.off)
	}
	v := binary.BigEndian.Uint32(b.data[b.off : b.off+4])
	b.off += 4
	return v, nil
}

// ReadSlice reads exactly n bytes into a fresh slice.
func (b *ReadBuffer) ReadSlice(n int) ([]byte, error) {
	if n < 0 || b.off+n > len(b.data) {
		return nil, fmt.Errorf("%w: reading %d bytes at %d", ErrEndOfBuffer, n, b.off)
	}
	out := make([]byte, n)
	copy(out, b.data[b.off:b.off+n])
	b.off += n
	return out, nil
}

// ReadName decodes a possibly-compressed DNS name starting at the cursor.
//
// Compression pointers (high 2 bits = 11) redirect decoding to an earlier
// offset in the message:
//
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	| 1  1|                OFFSET                   |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//
// A pointer terminates the name as far as the cursor is concerned: after
// decoding, the cursor sits immediately past the first pointer if one was
// followed, or past the terminating zero octet otherwise.
//
// Decoding is a flat loop with a visited-offset set rather than recursion,
// so adversarial pointer chains cannot grow the stack. Pointer loops,
// out-of-range targets, reserved label bits (01/10) and labels that are not
// valid UTF-8 all fail with ErrInvalidName.
//
// The root name (a lone zero octet) decodes to ".".
func (b *ReadBuffer) ReadName() (string, error) {
	var (
		labels  = make([]string, 0, 6)
		visited map[int]struct{}
		pos     = b.off
		resume  = -1 // cursor to restore after the first pointer, if any
		total   = 0
		hops    = 0
	)

	for {
		if pos >= len(b.data) {
			return "", fmt.Errorf("%w: name runs past end of message", ErrEndOfBuffer)
		}
		l := b.data[pos]

		switch {
		case l == 0:
			pos++
			if resume >= 0 {
				b.off = resume
			} else {
				b.off = pos
			}
			return joinLabels(labels), nil

		case l&0xC0 == 0xC0:
			if pos+2 > len(b.data) {
				return "", fmt.Errorf("%w: truncated compression pointer", ErrEndOfBuffer)
			}
			target := int(l&0x3F)<<8 | int(b.data[pos+1])
			if resume < 0 {
				resume = pos + 2
			}
			if target >= len(b.data) {
				return "", fmt.Errorf("%w: compression pointer target %d out of range", ErrInvalidName, target)
			}
			if visited == nil {
				visited = make(map[int]struct{}, 4)
			}
			if _, ok := visited[target]; ok {
				return "", fmt.Errorf("%w: compression pointer loop via offset %d", ErrInvalidName, target)
			}
			visited[target] = struct{}{}
			hops++
			if hops > maxPointerHops {
				return "", fmt.Errorf("%w: too many compression pointer indirections", ErrInvalidName)
			}
			pos = target

		case l&0xC0 != 0:
			// 01 and 10 label types are reserved (RFC 1035 Section 4.1.4).
			return "", fmt.Errorf("%w: reserved label bits 0x%02x", ErrInvalidName, l&0xC0)

		default:
			end := pos + 1 + int(l)
			if end > len(b.data) {
				return "", fmt.Errorf("%w: label runs past end of message", ErrEndOfBuffer)
			}
			label := b.data[pos+1 : end]
			if !utf8.Valid(label) {
				return "", fmt.Errorf("%w: label is not valid UTF-8", ErrInvalidName)
			}
			total += int(l) + 1
			if total > maxNameLength {
				return "", fmt.Errorf("%w: name exceeds %d bytes", ErrInvalidName, maxNameLength)
			}
			labels = append(labels, string(label))
			pos = end
		}
	}
}

// joinLabels concatenates labels with dots. No labels means the root name.
func joinLabels(labels []string) string {
	if len(labels) == 0 {
		return "."
	}
	return strings.Join(labels, ".")
}

// WriteBuffer is an append-only builder for one outgoing DNS message.
// Writes never fail except for name constraint violations.
type WriteBuffer struct {
	data []byte
}

// NewWriteBuffer creates a builder with the given initial capacity.
func NewWriteBuffer(capacity int) *WriteBuffer {
	return &WriteBuffer{data: make([]byte, 0, capacity)}
}

// Len returns the number of bytes written so far.
func (w *WriteBuffer) Len() int { return len(w.data) }

// Bytes returns the accumulated message. The slice aliases the builder's
// storage; callers should not keep writing after reading it.
func (w *WriteBuffer) Bytes() []byte { return w.data }

// WriteUint8 appends one byte.
func (w *WriteBuffer) WriteUint8(v uint8) {
	w.data = append(w.data, v)
}

// WriteUint16 appends a big-endian 16-bit value.
func (w *WriteBuffer) WriteUint16(v uint16) {
	w.data = binary.BigEndian.AppendUint16(w.data, v)
}

// WriteUint32 appends a big-endian 32-bit value.
func (w *WriteBuffer) WriteUint32(v uint32) {
	w.data = binary.BigEndian.AppendUint32(w.data, v)
}

// WriteBytes appends raw bytes.
func (w *WriteBuffer) WriteBytes(p []byte) {
	w.data = append(w.data, p...)
}

// WriteName appends a domain name in wire format: each non-empty label
// preceded by its length, then a terminating zero octet. Both "" and "."
// encode to a single zero (the root name). Compression is never emitted;
// the protocol permits uncompressed names everywhere.
func (w *WriteBuffer) WriteName(name string) error {
	start := len(w.data)
	for len(name) > 0 {
		label := name
		if i := strings.IndexByte(name, '.'); i >= 0 {
			label = name[:i]
			name = name[i+1:]
		} else {
			name = ""
		}
		if label == "" {
			continue
		}
		if len(label) > maxLabelLength {
			w.data = w.data[:start]
			return fmt.Errorf("%w: %q is %d bytes", ErrLabelTooLong, label, len(label))
		}
		w.data = append(w.data, byte(len(label)))
		w.data = append(w.data, label...)
	}
	w.data = append(w.data, 0)
	if len(w.data)-start > maxNameLength {
		encoded := len(w.data) - start
		w.data = w.data[:start]
		return fmt.Errorf("%w: encoded name is %d bytes", ErrInvalidName, encoded)
	}
	return nil
}
