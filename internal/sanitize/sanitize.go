// Package sanitize provides streaming reader wrappers that clean up the
// byte-level mess common in uploaded delimited files before a parser sees it:
// UTF-8 byte order marks and invalid UTF-8 sequences. The wrappers work in
// O(buffer) memory so arbitrarily large files can be cleaned on the fly.
package sanitize

import (
	"io"
	"unicode/utf8"
)

// Reader wraps r so downstream parsers see clean UTF-8. A leading byte order
// mark is dropped first, then invalid sequences are replaced.
func Reader(r io.Reader) io.Reader {
	return NewUTF8Reader(NewBOMReader(r))
}

// UTF8Reader wraps an io.Reader and replaces invalid UTF-8 bytes with '?' on
// the fly. Multi-byte sequences split across reads are carried over to the
// next call rather than flagged as invalid.
type UTF8Reader struct {
	r io.Reader

	// carry holds a partial sequence from the tail of the previous read.
	carry []byte
}

// NewUTF8Reader creates a streaming UTF-8 sanitizer over r.
func NewUTF8Reader(r io.Reader) *UTF8Reader {
	return &UTF8Reader{
		r:     r,
		carry: make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (s *UTF8Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	off := copy(p, s.carry)
	s.carry = s.carry[:copy(s.carry, s.carry[off:])]

	n, err := s.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}

	// Most delimited data is plain ASCII; skip the scan when it is.
	if ascii(p[:n]) {
		return n, err
	}
	return s.clean(p[:n], err == io.EOF), err
}

// clean sanitizes data in place and returns the number of bytes kept. Unless
// the stream is exhausted, a partial sequence at the tail moves to carry so
// the next read can complete it.
func (s *UTF8Reader) clean(data []byte, atEOF bool) int {
	if !atEOF {
		if t := partialTail(data); t > 0 {
			s.carry = append(s.carry, data[len(data)-t:]...)
			data = data[:len(data)-t]
		}
	}
	if utf8.Valid(data) {
		return len(data)
	}

	w := 0
	for i := 0; i < len(data); {
		c, size := utf8.DecodeRune(data[i:])
		if c == utf8.RuneError && size == 1 {
			// '?' keeps the output the same length as the input;
			// U+FFFD is three bytes and would outgrow the buffer.
			data[w] = '?'
			w++
			i++
			continue
		}
		copy(data[w:], data[i:i+size])
		w += size
		i += size
	}
	return w
}

// ascii reports whether every byte is below 0x80.
func ascii(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// partialTail returns how many bytes at the end of data form the start of an
// unfinished multi-byte sequence, or 0 when the tail is complete.
func partialTail(data []byte) int {
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if seqLen(b) > i {
				return i
			}
			return 0
		}
		if b&0xC0 != 0x80 {
			// Not a continuation byte, so nothing is pending.
			return 0
		}
	}
	return 0
}

// seqLen returns the expected byte length of a UTF-8 sequence starting with b.
func seqLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// BOMReader wraps an io.Reader and skips a leading UTF-8 byte order mark
// (0xEF 0xBB 0xBF), which Windows spreadsheet exports routinely prepend.
type BOMReader struct {
	r       io.Reader
	checked bool
	rest    []byte
	buf     [3]byte
}

// NewBOMReader creates a BOM-skipping reader over r.
func NewBOMReader(r io.Reader) *BOMReader {
	return &BOMReader{r: r}
}

// Read implements io.Reader. The first call inspects the leading bytes and
// drops them when they are a BOM.
func (b *BOMReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true

		n, err := io.ReadFull(b.r, b.buf[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}

		head := b.buf[:n]
		if n == 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
			head = nil
		}
		b.rest = head
	}

	if len(b.rest) > 0 {
		n := copy(p, b.rest)
		b.rest = b.rest[n:]
		return n, nil
	}
	return b.r.Read(p)
}

// CountingReader wraps an io.Reader and tracks how many bytes have been read,
// for size reporting after a streaming pass.
type CountingReader struct {
	r io.Reader
	n int64
}

// NewCountingReader creates a counting reader over r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Bytes returns the number of bytes read so far.
func (c *CountingReader) Bytes() int64 {
	return c.n
}
