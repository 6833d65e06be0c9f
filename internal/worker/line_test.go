package worker

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantP   int
		wantVal string
		wantErr bool
	}{
		{name: "json", line: `{"p":5,"perfect":"496"}`, wantP: 5, wantVal: "496"},
		{name: "json number", line: `{"p":7,"perfect":8128}`, wantP: 7, wantVal: "8128"},
		{name: "json padded", line: "  {\"p\":2,\"perfect\":\"6\"}\r", wantP: 2, wantVal: "6"},
		{name: "bare", line: "33550336", wantP: 13, wantVal: "33550336"},
		{name: "bare large", line: "2658455991569831744654692615953842176", wantP: 61, wantVal: "2658455991569831744654692615953842176"},
		{name: "empty", line: "   ", wantErr: true},
		{name: "text", line: "hello", wantErr: true},
		{name: "bare not perfect shape", line: "100", wantErr: true},
		{name: "json mismatched exponent", line: `{"p":7,"perfect":"496"}`, wantErr: true},
		{name: "json bad exponent", line: `{"p":0,"perfect":"6"}`, wantErr: true},
		{name: "json bad value", line: `{"p":3,"perfect":"twenty-eight"}`, wantErr: true},
		{name: "broken json", line: `{"p":3,`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseLine([]byte(tt.line))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantP, r.P)
			assert.Equal(t, tt.wantVal, r.Value.String())
		})
	}
}

func TestLineLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newLineLogger(slog.New(slog.NewTextHandler(&buf, nil)), "worker stderr")

	n, err := l.Write([]byte("first\nsec"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	_, _ = l.Write([]byte("ond\r\n\npartial"))

	out := buf.String()
	assert.Contains(t, out, "line=first")
	assert.Contains(t, out, "line=second")
	assert.NotContains(t, out, "partial")

	l.Flush()
	assert.Contains(t, buf.String(), "line=partial")
}
