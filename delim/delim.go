// Package delim adapts delimited text such as CSV and TSV into table sets.
//
// The field separator is sniffed from a leading byte sample unless set with
// [Delimiter]. Input bytes pass through BOM stripping and UTF-8 repair before
// parsing, and can be decoded from a legacy character set first.
//
// When the reader is an io.ReadSeeker the table can be iterated any number of
// times. A plain stream is buffered up to the sample window instead, so the
// usual sample-then-full-pass flow still works, but only one pass may read
// past the window.
package delim

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/encoding"

	"github.com/timClicks/messytables"
	"github.com/timClicks/messytables/internal/sanitize"
)

// ErrStreamConsumed reports a repeated full pass over a reader that cannot
// seek. Wrap the input in a bytes.Reader or hand over an open file to allow
// re-iteration.
var ErrStreamConsumed = errors.New("delim: stream already consumed")

// sniffLen bounds the byte sample used for delimiter detection.
const sniffLen = 8 << 10

type options struct {
	name      string
	delimiter rune
	window    int
	enc       encoding.Encoding
}

// Option configures the adapter.
type Option func(*options)

// Delimiter sets the field separator, skipping detection.
func Delimiter(d rune) Option {
	return func(o *options) { o.delimiter = d }
}

// Name sets the table name. The default is "table".
func Name(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// Window sets the sample window of the table's row set.
func Window(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.window = n
		}
	}
}

// Encoding decodes the input from a legacy character set before parsing, for
// example charmap.Windows1252.
func Encoding(enc encoding.Encoding) Option {
	return func(o *options) { o.enc = enc }
}

// New builds a single-table TableSet over delimited text read from r.
func New(r io.Reader, opts ...Option) (messytables.TableSet, error) {
	o := options{name: "table", window: messytables.DefaultWindow}
	for _, opt := range opts {
		opt(&o)
	}

	src := &source{opts: o}
	if sk, ok := r.(io.ReadSeeker); ok {
		src.seeker = sk
	} else {
		src.stream = clean(r, o.enc)
	}

	if o.delimiter == 0 {
		d, err := src.sniff()
		if err != nil {
			return nil, err
		}
		src.opts.delimiter = d
	}

	rs := messytables.NewRowSet(o.name, src.rows, messytables.WithWindow(o.window))
	return &tableSet{rs: rs}, nil
}

type tableSet struct {
	rs *messytables.RowSet
}

// Tables returns the single delimited table.
func (t *tableSet) Tables() []*messytables.RowSet {
	return []*messytables.RowSet{t.rs}
}

// Close is a no-op; the caller owns the reader passed to New.
func (t *tableSet) Close() error { return nil }

// clean layers the decode and sanitize wrappers over r.
func clean(r io.Reader, enc encoding.Encoding) io.Reader {
	if enc != nil {
		r = enc.NewDecoder().Reader(r)
	}
	return sanitize.Reader(r)
}

// source feeds rows to the RowSet. Seekable input is re-read from the start
// on every pass; streaming input fills a bounded replay buffer instead.
type source struct {
	opts   options
	seeker io.ReadSeeker

	// Streaming state, used only when the input cannot seek.
	mu          sync.Mutex
	stream      io.Reader
	cr          *csv.Reader
	buf         []messytables.Row
	done        bool // stream ended inside the buffer, buf holds the whole table
	tailClaimed bool // a pass went past the buffer and owns the remainder
}

// sniff reads a leading sample, detects the delimiter, and puts the bytes
// back: by rewinding the seeker or by stitching them onto the stream.
func (s *source) sniff() (rune, error) {
	var in io.Reader
	if s.seeker != nil {
		in = clean(s.seeker, s.opts.enc)
	} else {
		in = s.stream
	}

	sample := make([]byte, sniffLen)
	n, err := io.ReadFull(in, sample)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("sample input: %w", err)
	}
	sample = sample[:n]

	if s.seeker != nil {
		if _, err := s.seeker.Seek(0, io.SeekStart); err != nil {
			return 0, fmt.Errorf("rewind input: %w", err)
		}
	} else {
		s.stream = io.MultiReader(bytes.NewReader(sample), s.stream)
	}
	return sniffDelimiter(sample), nil
}

func (s *source) newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = s.opts.delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

func (s *source) rows(yield func(messytables.Row, error) bool) {
	if s.seeker == nil {
		s.streamRows(yield)
		return
	}

	if _, err := s.seeker.Seek(0, io.SeekStart); err != nil {
		yield(nil, fmt.Errorf("rewind input: %w", err))
		return
	}
	cr := s.newCSVReader(clean(s.seeker, s.opts.enc))
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("read record: %w", err))
			return
		}
		if !yield(messytables.RowFromStrings(rec), nil) {
			return
		}
	}
}

// streamRows serves a forward-only stream. The first window rows are kept in
// a replay buffer so sampling and one later full pass both work; rows past
// the window exist only in the stream and go to whichever pass claims them
// first.
func (s *source) streamRows(yield func(messytables.Row, error) bool) {
	for i := 0; ; i++ {
		s.mu.Lock()

		if i < len(s.buf) {
			row := slices.Clone(s.buf[i])
			s.mu.Unlock()
			if !yield(row, nil) {
				return
			}
			continue
		}

		if s.done {
			s.mu.Unlock()
			return
		}
		if s.tailClaimed {
			s.mu.Unlock()
			yield(nil, ErrStreamConsumed)
			return
		}
		if s.cr == nil {
			s.cr = s.newCSVReader(s.stream)
		}

		if i < s.opts.window {
			rec, err := s.cr.Read()
			if errors.Is(err, io.EOF) {
				s.done = true
				s.mu.Unlock()
				return
			}
			if err != nil {
				s.mu.Unlock()
				yield(nil, fmt.Errorf("read record: %w", err))
				return
			}
			row := messytables.RowFromStrings(rec)
			s.buf = append(s.buf, slices.Clone(row))
			s.mu.Unlock()
			if !yield(row, nil) {
				return
			}
			continue
		}

		s.tailClaimed = true
		cr := s.cr
		s.mu.Unlock()
		s.drainTail(cr, yield)
		return
	}
}

// drainTail reads the stream past the replay buffer. If the stream turns out
// to end exactly at the window, the buffer holds the whole table after all
// and the claim is released.
func (s *source) drainTail(cr *csv.Reader, yield func(messytables.Row, error) bool) {
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			if first {
				s.mu.Lock()
				s.done = true
				s.tailClaimed = false
				s.mu.Unlock()
			}
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("read record: %w", err))
			return
		}
		first = false
		if !yield(messytables.RowFromStrings(rec), nil) {
			return
		}
	}
}

// sniffCandidates in priority order; ties go to the earlier candidate.
var sniffCandidates = []rune{',', '\t', ';', '|'}

// sniffDelimiter picks the candidate with the best worst-case line count:
// for each candidate, the minimum occurrences across the leading non-empty
// lines, highest minimum wins. Scoring the minimum rather than the total
// keeps one field full of pipes from outvoting the real separator. Comma wins
// when nothing scores.
func sniffDelimiter(sample []byte) rune {
	// Drop a cut-off trailing line so it cannot skew the counts.
	if i := bytes.LastIndexByte(sample, '\n'); i >= 0 {
		sample = sample[:i]
	}

	var lines []string
	for _, line := range strings.Split(string(sample), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == 10 {
			break
		}
	}
	if len(lines) == 0 {
		return ','
	}

	best, bestScore := ',', 0
	for _, cand := range sniffCandidates {
		score := -1
		for _, line := range lines {
			n := strings.Count(line, string(cand))
			if score < 0 || n < score {
				score = n
			}
		}
		if score > bestScore {
			best, bestScore = cand, score
		}
	}
	return best
}
