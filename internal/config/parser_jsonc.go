package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload fileConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}
	return finalize(cfg, nil)
}

type jsoncMode int

const (
	modeCode jsoncMode = iota
	modeString
	modeEscape
	modeLineComment
	modeBlockComment
)

// normalizeJSONC blanks comments and trailing commas with spaces. Newlines
// are kept, so decoder offsets still point at the original line and column.
func normalizeJSONC(content string) (string, error) {
	out := []byte(content)
	mode := modeCode
	pendingComma := -1

	for i := 0; i < len(out); i++ {
		ch := out[i]
		switch mode {
		case modeString:
			switch ch {
			case '\\':
				mode = modeEscape
			case '"':
				mode = modeCode
			}
		case modeEscape:
			mode = modeString
		case modeLineComment:
			if ch == '\n' || ch == '\r' {
				mode = modeCode
				continue
			}
			out[i] = ' '
		case modeBlockComment:
			if ch == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i], out[i+1] = ' ', ' '
				i++
				mode = modeCode
				continue
			}
			if !isJSONWhitespace(ch) {
				out[i] = ' '
			}
		default:
			switch {
			case ch == '/' && i+1 < len(out) && out[i+1] == '/':
				out[i], out[i+1] = ' ', ' '
				i++
				mode = modeLineComment
			case ch == '/' && i+1 < len(out) && out[i+1] == '*':
				out[i], out[i+1] = ' ', ' '
				i++
				mode = modeBlockComment
			case isJSONWhitespace(ch):
			case ch == ',':
				pendingComma = i
			default:
				if pendingComma >= 0 && (ch == '}' || ch == ']') {
					out[pendingComma] = ' '
				}
				pendingComma = -1
				if ch == '"' {
					mode = modeString
				}
			}
		}
	}

	if mode == modeBlockComment {
		return "", errors.New("unterminated block comment in JSONC")
	}
	return string(out), nil
}

func isJSONWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\r' || ch == '\t'
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		offset    int64
	)
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}
	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

func offsetToLineCol(content string, offset int64) (int, int) {
	prefix := content[:min(max(int(offset)-1, 0), len(content))]
	line := strings.Count(prefix, "\n") + 1
	return line, len(prefix) - strings.LastIndexByte(prefix, '\n')
}
