package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FindArray returns the first balanced [...] substring of text that is valid
// JSON. Model replies often wrap the array in prose or markdown fences; both
// are skipped. Brackets inside JSON strings do not count toward balance.
func FindArray(text string) ([]byte, bool) {
	data := []byte(text)
	for start := bytes.IndexByte(data, '['); start >= 0; {
		if end, ok := matchClose(data, start); ok {
			candidate := data[start : end+1]
			if json.Valid(candidate) {
				return candidate, true
			}
		}
		next := bytes.IndexByte(data[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}

// matchClose finds the index of the bracket closing the one at start.
func matchClose(data []byte, start int) (int, bool) {
	var stack []byte
	inString := false
	escaped := false

	for i := start; i < len(data); i++ {
		c := data[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '[':
			stack = append(stack, ']')
		case '{':
			stack = append(stack, '}')
		case ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// looseString accepts a JSON string, number, bool or null.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v.(type) {
	case float64, bool:
		*s = looseString(bytes.TrimSpace(b))
		return nil
	}
	return fmt.Errorf("expected a scalar, got %s", b)
}

type rawRecord struct {
	Author    looseString `json:"author"`
	Text      looseString `json:"text"`
	Timestamp looseString `json:"timestamp"`
}
