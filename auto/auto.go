// Package auto detects what kind of tabular file a stream holds and opens it
// with the right adapter.
//
// Detection looks at leading magic bytes: compressed streams (gzip, zstd, xz,
// bzip2) are unwrapped and examined again, zip containers split into either
// an XLSX workbook or per-member tables, Parquet and HTML are recognized
// directly, and anything else is treated as delimited text. A filename hint
// refines the text cases (tab separation, HTML without a markup prologue)
// and names the resulting tables.
//
// Formats that need random access (zip, Parquet) are buffered in memory;
// compressed delimited text stays streaming.
package auto

import (
	"archive/zip"
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/timClicks/messytables"
	"github.com/timClicks/messytables/delim"
	"github.com/timClicks/messytables/htmltable"
	"github.com/timClicks/messytables/parquet"
	"github.com/timClicks/messytables/xlsx"
)

// maxDepth bounds how many container or compression layers are unwrapped.
const maxDepth = 4

// peekLen is how many leading bytes detection examines.
const peekLen = 512

var (
	magicGzip    = []byte{0x1f, 0x8b}
	magicZstd    = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicXz      = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicBzip2   = []byte("BZh")
	magicZip     = []byte("PK\x03\x04")
	magicParquet = []byte("PAR1")
)

type formatHint int

const (
	hintNone formatHint = iota
	hintDelim
	hintTSV
	hintHTML
	hintBinary
)

type options struct {
	filename string
	name     string
	window   int
}

// Option configures detection.
type Option func(*options)

// Filename supplies the original file name. The extension refines text
// format handling and the base name becomes the table name unless [Name]
// overrides it.
func Filename(name string) Option {
	return func(o *options) { o.filename = name }
}

// Name sets the table name for single-table sources.
func Name(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// Window sets the sample window of the resulting row sets.
func Window(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.window = n
		}
	}
}

// New sniffs r and opens it with the adapter its content calls for.
func New(r io.Reader, opts ...Option) (messytables.TableSet, error) {
	o := options{window: messytables.DefaultWindow}
	for _, opt := range opts {
		opt(&o)
	}

	hint := hintNone
	if o.filename != "" {
		base, h := splitFilename(o.filename)
		hint = h
		if o.name == "" {
			o.name = base
		}
	}
	return dispatch(r, hint, o, 0)
}

func dispatch(r io.Reader, hint formatHint, o options, depth int) (messytables.TableSet, error) {
	if depth > maxDepth {
		return nil, errors.New("auto: container nesting too deep")
	}

	br := bufio.NewReader(r)
	head, err := br.Peek(peekLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("peek input: %w", err)
	}

	switch {
	case bytes.HasPrefix(head, magicGzip):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		ts, err := dispatch(zr, hint, o, depth+1)
		if err != nil {
			zr.Close()
			return nil, err
		}
		return wrap(ts, zr.Close), nil

	case bytes.HasPrefix(head, magicZstd):
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open zstd: %w", err)
		}
		ts, err := dispatch(dec, hint, o, depth+1)
		if err != nil {
			dec.Close()
			return nil, err
		}
		return wrap(ts, func() error { dec.Close(); return nil }), nil

	case bytes.HasPrefix(head, magicXz):
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open xz: %w", err)
		}
		return dispatch(xr, hint, o, depth+1)

	case bytes.HasPrefix(head, magicBzip2):
		return dispatch(bzip2.NewReader(br), hint, o, depth+1)

	case bytes.HasPrefix(head, magicZip):
		data, err := io.ReadAll(br)
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
		return openZip(data, o, depth)

	case bytes.HasPrefix(head, magicParquet):
		data, err := io.ReadAll(br)
		if err != nil {
			return nil, fmt.Errorf("read parquet: %w", err)
		}
		return parquet.New(bytes.NewReader(data), parquet.Name(o.name), parquet.Window(o.window))

	case looksHTML(head) && hint != hintDelim && hint != hintTSV:
		return htmltable.New(br, htmltable.Window(o.window))

	case hint == hintHTML:
		return htmltable.New(br, htmltable.Window(o.window))

	case hint == hintTSV:
		return delim.New(br, delim.Name(o.name), delim.Window(o.window), delim.Delimiter('\t'))

	default:
		return delim.New(br, delim.Name(o.name), delim.Window(o.window))
	}
}

// openZip splits an archive: a workbook layout opens as XLSX, anything else
// becomes one table per recognizable member. Workbook members inside a plain
// archive keep their own sheet names.
func openZip(data []byte, o options, depth int) (messytables.TableSet, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	if isWorkbook(zr) {
		return xlsx.New(bytes.NewReader(data), xlsx.Window(o.window))
	}

	agg := &tableSet{}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || skipMember(f.Name) {
			continue
		}
		base, hint := splitFilename(f.Name)
		if hint == hintNone {
			continue
		}

		member, err := readMember(f)
		if err != nil {
			return nil, fmt.Errorf("read archive member %s: %w", f.Name, err)
		}

		mo := options{name: base, window: o.window}
		ts, err := dispatch(bytes.NewReader(member), hint, mo, depth+1)
		if err != nil {
			return nil, fmt.Errorf("open archive member %s: %w", f.Name, err)
		}
		agg.tables = append(agg.tables, ts.Tables()...)
		agg.closers = append(agg.closers, ts.Close)
	}

	if len(agg.tables) == 0 {
		return nil, errors.New("auto: no tables found in archive")
	}
	return agg, nil
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// isWorkbook reports whether the archive has XLSX structure rather than being
// a plain collection of files.
func isWorkbook(zr *zip.Reader) bool {
	var hasTypes, hasXl bool
	for _, f := range zr.File {
		if f.Name == "[Content_Types].xml" {
			hasTypes = true
		}
		if strings.HasPrefix(f.Name, "xl/") {
			hasXl = true
		}
	}
	return hasTypes && hasXl
}

func skipMember(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	return strings.HasPrefix(path.Base(name), ".")
}

// looksHTML reports whether the head bytes open with markup.
func looksHTML(head []byte) bool {
	head = bytes.TrimPrefix(head, []byte{0xEF, 0xBB, 0xBF})
	head = bytes.TrimSpace(head)
	return len(head) > 0 && head[0] == '<'
}

// splitFilename strips compression suffixes, then maps the remaining
// extension to a format hint and returns the bare base name.
func splitFilename(filename string) (string, formatHint) {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	for {
		switch strings.ToLower(path.Ext(base)) {
		case ".gz", ".bz2", ".xz", ".zst", ".zstd":
			base = strings.TrimSuffix(base, path.Ext(base))
			continue
		}
		break
	}

	ext := strings.ToLower(path.Ext(base))
	base = strings.TrimSuffix(base, path.Ext(base))
	switch ext {
	case ".csv", ".txt":
		return base, hintDelim
	case ".tsv", ".tab":
		return base, hintTSV
	case ".xlsx", ".xlsm", ".parquet", ".pq":
		return base, hintBinary
	case ".html", ".htm":
		return base, hintHTML
	}
	return base, hintNone
}

// tableSet aggregates tables from nested sources and closes them together.
type tableSet struct {
	tables  []*messytables.RowSet
	closers []func() error
}

// Tables returns the collected row sets in discovery order.
func (t *tableSet) Tables() []*messytables.RowSet {
	return t.tables
}

// Close closes every nested source, returning the first error.
func (t *tableSet) Close() error {
	var first error
	for _, c := range t.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// wrap ties a decompressor's lifetime to the table set built over it.
func wrap(ts messytables.TableSet, closers ...func() error) messytables.TableSet {
	return &tableSet{
		tables:  ts.Tables(),
		closers: append([]func() error{ts.Close}, closers...),
	}
}
