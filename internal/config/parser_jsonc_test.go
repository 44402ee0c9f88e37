package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONC(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "line comment",
			in:   "{\"a\": 1 // one\n}",
			want: "{\"a\": 1       \n}",
		},
		{
			name: "block comment keeps newlines",
			in:   "{/* x\ny */\"a\": 1}",
			want: "{    \n    \"a\": 1}",
		},
		{
			name: "trailing comma before brace",
			in:   `{"a": [1, 2,], }`,
			want: `{"a": [1, 2 ]  }`,
		},
		{
			name: "trailing comma before comment then bracket",
			in:   "[1, // last\n]",
			want: "[1         \n]",
		},
		{
			name: "comment markers inside strings",
			in:   `{"url": "http://host/*x*/", "s": "a,}"}`,
			want: `{"url": "http://host/*x*/", "s": "a,}"}`,
		},
		{
			name: "escaped quote",
			in:   `{"q": "say \"//hi\"",}`,
			want: `{"q": "say \"//hi\"" }`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizeJSONC(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
			require.Len(t, got, len(tc.in))
			require.True(t, json.Valid([]byte(got)), got)
		})
	}
}

func TestNormalizeJSONCUnterminatedBlock(t *testing.T) {
	_, err := normalizeJSONC("{ /* open")
	require.ErrorContains(t, err, "unterminated block comment")
}

func TestOffsetToLineCol(t *testing.T) {
	content := "{\n  \"a\": x\n}"
	line, col := offsetToLineCol(content, 10)
	require.Equal(t, 2, line)
	require.Equal(t, 8, col)

	line, col = offsetToLineCol(content, 0)
	require.Equal(t, 1, line)
	require.Equal(t, 1, col)

	line, _ = offsetToLineCol(content, 1000)
	require.Equal(t, 3, line)
}
