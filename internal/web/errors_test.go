package web

import (
	"errors"
	"strings"
	"testing"
)

func TestMapErrorPatterns(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"body too large", errors.New("http: request body too large"), "REQ001"},
		{"no file", errors.New("no file provided"), "REQ002"},
		{"replayed stream", errors.New("delim: stream already consumed"), "REQ003"},
		{"deep nesting", errors.New("auto: nesting too deep"), "REQ004"},
		{"no tables", errors.New("auto: no tables found in archive"), "REQ005"},
		{"duplicate key", errors.New(`ERROR: duplicate key value violates unique constraint "accounts_pkey"`), "DB001"},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), "DB002"},
		{"no database", errors.New("no database configured"), "DB003"},
		{"timeout", errors.New("context deadline exceeded"), "SYS001"},
		{"unknown", errors.New("something odd happened"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			if got.Code != tt.code {
				t.Errorf("mapError(%q).Code = %q, want %q", tt.err, got.Code, tt.code)
			}
			if got.Message == "" {
				t.Error("message is empty")
			}
		})
	}
}

func TestMapErrorNil(t *testing.T) {
	got := mapError(nil)
	if got.Code != "" {
		t.Errorf("mapError(nil).Code = %q, want empty", got.Code)
	}
}

func TestMapErrorMasksConnectionStrings(t *testing.T) {
	err := errors.New("connect to postgres://user:secret@db:5432/app was rejected")

	got := mapError(err)

	if strings.Contains(got.Message, "secret") {
		t.Errorf("message leaked credentials: %q", got.Message)
	}
	if !strings.Contains(got.Message, "[connection string]") {
		t.Errorf("message = %q, want the DSN masked", got.Message)
	}
}

func TestSanitizeErrorMessageCapsLength(t *testing.T) {
	got := sanitizeErrorMessage(strings.Repeat("x", 500))

	if len(got) != 203 {
		t.Errorf("len = %d, want 203", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("got %q, want a ... suffix", got[len(got)-6:])
	}
}
