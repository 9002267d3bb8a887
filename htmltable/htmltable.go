// Package htmltable extracts the <table> elements of an HTML document as
// table sets.
//
// Tables surface in document order, named by their id attribute when present
// and "Table N" otherwise. Header and data cells both become row cells, a
// colspan repeats its value across the spanned columns so later columns stay
// aligned, and nested tables surface as their own row sets rather than as
// text of the outer cell. The document is parsed up front; rows can be
// iterated any number of times.
package htmltable

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/timClicks/messytables"
)

// maxSpan bounds how far a colspan attribute can stretch one value.
const maxSpan = 1000

type options struct {
	window int
}

// Option configures the adapter.
type Option func(*options)

// Window sets the sample window of every table's row set.
func Window(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.window = n
		}
	}
}

// New parses an HTML document and exposes its tables. Close is a no-op; the
// caller owns the reader.
func New(r io.Reader, opts ...Option) (messytables.TableSet, error) {
	o := options{window: messytables.DefaultWindow}
	for _, opt := range opts {
		opt(&o)
	}

	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	ts := &tableSet{}
	for i, tbl := range findTables(doc) {
		name := attr(tbl, "id")
		if name == "" {
			name = fmt.Sprintf("Table %d", i+1)
		}
		rows := tableRows(tbl)
		rs := messytables.NewRowSet(name, messytables.Rows(rows...), messytables.WithWindow(o.window))
		ts.tables = append(ts.tables, rs)
	}
	return ts, nil
}

type tableSet struct {
	tables []*messytables.RowSet
}

// Tables returns the document's tables in document order.
func (t *tableSet) Tables() []*messytables.RowSet {
	return t.tables
}

// Close is a no-op.
func (t *tableSet) Close() error { return nil }

// findTables collects every table element in document order, nested ones
// included.
func findTables(doc *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// tableRows gathers the rows of one table, stopping at nested tables.
func tableRows(tbl *html.Node) []messytables.Row {
	var rows []messytables.Row
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				// belongs to the nested table's own row set
			case atom.Tr:
				rows = append(rows, rowCells(c))
			default:
				walk(c)
			}
		}
	}
	walk(tbl)
	return rows
}

// rowCells converts the th and td elements of one tr into cells.
func rowCells(tr *html.Node) messytables.Row {
	var row messytables.Row
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
			case atom.Th, atom.Td:
				value := cellText(c)
				for i := 0; i < colspan(c); i++ {
					row = append(row, messytables.NewCell(value))
				}
			default:
				walk(c)
			}
		}
	}
	walk(tr)
	return row
}

func colspan(n *html.Node) int {
	s := attr(n, "colspan")
	if s == "" {
		return 1
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 || v > maxSpan {
		return 1
	}
	return v
}

// cellText joins the text content of a cell with whitespace runs collapsed,
// skipping nested tables.
func cellText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode:
				b.WriteString(c.Data)
				b.WriteByte(' ')
			case c.Type == html.ElementNode && c.DataAtom == atom.Table:
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
