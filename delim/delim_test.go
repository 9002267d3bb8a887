package delim

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"github.com/timClicks/messytables"
)

// streamOnly hides the Seek method of the wrapped reader so tests can force
// the forward-only code path.
type streamOnly struct {
	io.Reader
}

func collect(t *testing.T, rows func() iter.Seq2[messytables.Row, error]) [][]string {
	t.Helper()
	var out [][]string
	for row, err := range rows() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var rec []string
		for _, cell := range row {
			rec = append(rec, fmt.Sprint(cell.Value))
		}
		out = append(out, rec)
	}
	return out
}

func allRows(t *testing.T, ts messytables.TableSet) [][]string {
	t.Helper()
	return collect(t, ts.Tables()[0].All)
}

// ----------------------------------------------------------------------------
// Delimiter Sniffing Tests
// ----------------------------------------------------------------------------

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name   string
		sample string
		want   rune
	}{
		{
			name:   "comma",
			sample: "id,name,amount\n1,a,2\n",
			want:   ',',
		},
		{
			name:   "tab",
			sample: "id\tname\tamount\n1\ta\t2\n",
			want:   '\t',
		},
		{
			name:   "semicolon",
			sample: "id;name;amount\n1;a;2\n",
			want:   ';',
		},
		{
			name:   "pipe",
			sample: "id|name|amount\n1|a|2\n",
			want:   '|',
		},
		{
			name:   "pipe heavy field does not outvote comma",
			sample: "id,flags\n1,a|b|c|d|e\n2,x\n",
			want:   ',',
		},
		{
			name:   "truncated last line ignored",
			sample: "a;b;c\n1;2;3\n4;5;6;7;8,,,,,,",
			want:   ';',
		},
		{
			name:   "no delimiters defaults to comma",
			sample: "justoneword\n",
			want:   ',',
		},
		{
			name:   "empty sample defaults to comma",
			sample: "",
			want:   ',',
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniffDelimiter([]byte(tt.sample)); got != tt.want {
				t.Errorf("sniffDelimiter(%q) = %q, want %q", tt.sample, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Table Reading Tests
// ----------------------------------------------------------------------------

func TestNewReadsTable(t *testing.T) {
	ts, err := New(strings.NewReader("id,name\n1,alice\n2,bob\n"))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer ts.Close()

	tables := ts.Tables()
	if len(tables) != 1 || tables[0].Name() != "table" {
		t.Fatalf("Tables() = %v, want one table named %q", tables, "table")
	}

	got := allRows(t, ts)
	want := [][]string{{"id", "name"}, {"1", "alice"}, {"2", "bob"}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestNewSniffsTabs(t *testing.T) {
	ts, err := New(strings.NewReader("id\tname\n1\talice\n"))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer ts.Close()

	got := allRows(t, ts)
	want := [][]string{{"id", "name"}, {"1", "alice"}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestExplicitDelimiter(t *testing.T) {
	// A comma-heavy body would out-sniff the colon; the option must win.
	ts, err := New(strings.NewReader("a:b,c\n1:2,3\n"), Delimiter(':'))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer ts.Close()

	got := allRows(t, ts)
	want := [][]string{{"a", "b,c"}, {"1", "2,3"}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestNameAndWindowOptions(t *testing.T) {
	ts, err := New(strings.NewReader("a\nb\nc\nd\n"), Name("ledger"), Window(2))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer ts.Close()

	rs := ts.Tables()[0]
	if rs.Name() != "ledger" {
		t.Errorf("Name() = %q, want %q", rs.Name(), "ledger")
	}
	if rs.Window() != 2 {
		t.Errorf("Window() = %d, want 2", rs.Window())
	}

	sampled := collect(t, rs.Sample)
	if len(sampled) != 2 {
		t.Errorf("Sample yielded %d rows, want 2", len(sampled))
	}
}

func TestQuotedFieldsAndRaggedRows(t *testing.T) {
	input := "name,note\n\"smith, jr\",\"said \"\"hi\"\"\"\nshort\n1,2,3\n"
	ts, err := New(strings.NewReader(input))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer ts.Close()

	got := allRows(t, ts)
	want := [][]string{
		{"name", "note"},
		{"smith, jr", `said "hi"`},
		{"short"},
		{"1", "2", "3"},
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestStripsBOMAndRepairsUTF8(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("id,name\n1,al\x80ce\n")...)
	ts, err := New(strings.NewReader(string(input)))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer ts.Close()

	got := allRows(t, ts)
	want := [][]string{{"id", "name"}, {"1", "al?ce"}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestEncodingOption(t *testing.T) {
	// "café" in Windows-1252: é is a single 0xE9 byte.
	input := "name\ncaf\xe9\n"
	ts, err := New(strings.NewReader(input), Encoding(charmap.Windows1252))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer ts.Close()

	got := allRows(t, ts)
	want := [][]string{{"name"}, {"café"}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

// ----------------------------------------------------------------------------
// Restartability Tests
// ----------------------------------------------------------------------------

func TestSeekableRestarts(t *testing.T) {
	ts, err := New(strings.NewReader("a,b\n1,2\n3,4\n"))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer ts.Close()

	first := allRows(t, ts)
	second := allRows(t, ts)
	if fmt.Sprint(first) != fmt.Sprint(second) {
		t.Errorf("second pass = %v, want %v", second, first)
	}
}

func TestStreamSampleThenFullPass(t *testing.T) {
	input := "n\n1\n2\n3\n4\n5\n"
	ts, err := New(streamOnly{strings.NewReader(input)}, Window(3))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer ts.Close()

	rs := ts.Tables()[0]
	sampled := collect(t, rs.Sample)
	if len(sampled) != 3 {
		t.Fatalf("Sample yielded %d rows, want 3", len(sampled))
	}

	// The full pass replays the buffered prefix, then drains the stream.
	got := collect(t, rs.All)
	want := [][]string{{"n"}, {"1"}, {"2"}, {"3"}, {"4"}, {"5"}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestStreamSecondFullPassFails(t *testing.T) {
	ts, err := New(streamOnly{strings.NewReader("n\n1\n2\n3\n4\n")}, Window(2))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer ts.Close()

	rs := ts.Tables()[0]
	collect(t, rs.All)

	var passErr error
	var replayed int
	for _, err := range rs.All() {
		if err != nil {
			passErr = err
			break
		}
		replayed++
	}
	if !errors.Is(passErr, ErrStreamConsumed) {
		t.Fatalf("second pass error = %v, want ErrStreamConsumed", passErr)
	}
	if replayed != 2 {
		t.Errorf("second pass replayed %d rows before failing, want 2", replayed)
	}
}

func TestStreamSmallTableRestarts(t *testing.T) {
	// The whole table fits in the window, so it never leaves the buffer.
	ts, err := New(streamOnly{strings.NewReader("a,b\n1,2\n")}, Window(10))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer ts.Close()

	rs := ts.Tables()[0]
	first := collect(t, rs.All)
	second := collect(t, rs.All)
	if len(first) != 2 || fmt.Sprint(first) != fmt.Sprint(second) {
		t.Errorf("passes differ: %v then %v", first, second)
	}
}

func TestStreamExactWindowRestarts(t *testing.T) {
	// Table length equals the window; the first full pass finds the stream
	// empty past the buffer and the table stays replayable.
	ts, err := New(streamOnly{strings.NewReader("a\nb\nc\n")}, Window(3))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer ts.Close()

	rs := ts.Tables()[0]
	first := collect(t, rs.All)
	second := collect(t, rs.All)
	if len(first) != 3 || fmt.Sprint(first) != fmt.Sprint(second) {
		t.Errorf("passes differ: %v then %v", first, second)
	}
}

func TestStreamBufferStaysRaw(t *testing.T) {
	// Casting a sampled pass must not leak typed values into the replay
	// buffer.
	ts, err := New(streamOnly{strings.NewReader("1\n2\n")}, Window(10))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer ts.Close()

	rs := ts.Tables()[0]
	rs.Register(messytables.TypesProcessor([]messytables.CellType{messytables.IntegerType{}}))
	for row, err := range rs.Sample() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := row[0].Value.(int64); !ok {
			t.Fatalf("sampled cell = %#v, want int64", row[0].Value)
		}
	}

	for row, err := range rs.Raw() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := row[0].Value.(string); !ok {
			t.Errorf("raw cell = %#v, want untouched string", row[0].Value)
		}
	}
}

// ----------------------------------------------------------------------------
// Inference Flow Tests
// ----------------------------------------------------------------------------

func TestGuessOverDelimitedSample(t *testing.T) {
	input := "id,amount,when\n1,2.5,2020-01-01\n2,3.5,2020-01-02\n"
	ts, err := New(strings.NewReader(input))
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	defer ts.Close()

	rs := ts.Tables()[0]
	offset, headers, err := messytables.HeadersGuess(rs.Sample(), 1)
	if err != nil {
		t.Fatalf("HeadersGuess error = %v", err)
	}
	if offset != 0 || fmt.Sprint(headers) != fmt.Sprint([]string{"id", "amount", "when"}) {
		t.Fatalf("headers = %d %v", offset, headers)
	}

	rs.Register(messytables.OffsetProcessor(offset + 1))
	types, err := messytables.TypeGuess(rs.Sample())
	if err != nil {
		t.Fatalf("TypeGuess error = %v", err)
	}

	want := []messytables.CellType{
		messytables.IntegerType{},
		messytables.FloatType{},
		messytables.DateType{Format: "2006-01-02"},
	}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Errorf("types = %v, want %v", types, want)
	}
}
