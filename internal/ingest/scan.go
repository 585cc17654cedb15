package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// stringFieldRegex builds the narrow `"key": "value"` matcher used for the
// single-value ui fields. Only complete string values match.
func stringFieldRegex(key string) *regexp.Regexp {
	return regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
}

// valueStartRegex finds where the value of key begins (just after the colon
// and any whitespace).
func valueStartRegex(key string) *regexp.Regexp {
	return regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*`)
}

var (
	modeRegex     = stringFieldRegex("mode")
	modelRegex    = stringFieldRegex("model")
	titleRegex    = stringFieldRegex("title")
	languageRegex = stringFieldRegex("language")

	thoughtSummaryRegex = valueStartRegex("thought_summary")
	traceRegex          = valueStartRegex("trace")
	finalAnswerRegex    = valueStartRegex("final_answer")
)

// matchString returns the unescaped value of the first complete match.
func matchString(re *regexp.Regexp, buf string) (string, bool) {
	m := re.FindStringSubmatch(buf)
	if m == nil {
		return "", false
	}
	return unescape(m[1]), true
}

// arrayAfter returns the first balanced [...] that is the value of the key
// matched by re. ok is false while the array is still open.
func arrayAfter(re *regexp.Regexp, buf string) (string, bool) {
	loc := re.FindStringIndex(buf)
	if loc == nil {
		return "", false
	}
	start := loc[1]
	if start >= len(buf) || buf[start] != '[' {
		return "", false
	}
	end, ok := balanced(buf, start, '[', ']')
	if !ok {
		return "", false
	}
	return buf[start:end], true
}

// partialStringAfter returns the raw contents of the string value of the key
// matched by re, up to the next unescaped quote or the end of buf.
func partialStringAfter(re *regexp.Regexp, buf string) (string, bool) {
	loc := re.FindStringIndex(buf)
	if loc == nil {
		return "", false
	}
	start := loc[1]
	if start >= len(buf) || buf[start] != '"' {
		return "", false
	}
	start++
	escaped := false
	for i := start; i < len(buf); i++ {
		switch {
		case escaped:
			escaped = false
		case buf[i] == '\\':
			escaped = true
		case buf[i] == '"':
			return buf[start:i], true
		}
	}
	return buf[start:], true
}

// firstObject returns the first balanced {...} in buf.
func firstObject(buf string) (string, bool) {
	start := strings.IndexByte(buf, '{')
	if start < 0 {
		return "", false
	}
	end, ok := balanced(buf, start, '{', '}')
	if !ok {
		return "", false
	}
	return buf[start:end], true
}

// balanced scans from buf[start], which must be open, to the matching close
// and returns the index just past it. Brackets inside JSON strings are
// ignored.
func balanced(buf string, start int, open, close byte) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(buf); i++ {
		c := buf[i]
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// unescape decodes JSON string escapes. It tolerates a value cut off in the
// middle of an escape sequence by dropping the incomplete tail.
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			break
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case '"', '\\', '/':
			b.WriteByte(s[i])
		case 'u':
			if i+4 >= len(s) {
				return b.String()
			}
			r, err := strconv.ParseUint(s[i+1:i+5], 16, 32)
			if err != nil {
				b.WriteString(`\u`)
				continue
			}
			n := decodeRune(rune(r), s[i+5:])
			b.WriteRune(n)
			i += 4
			if n > 0xFFFF {
				i += 6
			}
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// decodeRune joins a UTF-16 surrogate pair when the low half follows. A lone
// surrogate becomes the replacement character.
func decodeRune(r rune, rest string) rune {
	if r >= 0xD800 && r <= 0xDBFF && hasLowSurrogate(rest) {
		lo, _ := strconv.ParseUint(rest[2:6], 16, 32)
		return (r-0xD800)<<10 + (rune(lo) - 0xDC00) + 0x10000
	}
	if r >= 0xD800 && r <= 0xDFFF {
		return utf8.RuneError
	}
	return r
}

func hasLowSurrogate(rest string) bool {
	if len(rest) < 6 || rest[0] != '\\' || rest[1] != 'u' {
		return false
	}
	lo, err := strconv.ParseUint(rest[2:6], 16, 32)
	return err == nil && lo >= 0xDC00 && lo <= 0xDFFF
}
