package pickle

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// pyquote quotes s the way Python's repr(str) does.
//
// Single quotes are used unless s contains ' but no ". Printable characters,
// including non-ASCII ones, are emitted as is; everything else goes in \x,
// \u or \U escapes.
func pyquote(s string) string {
	const hexdigits = "0123456789abcdef"
	quote := byte('\'')
	if strings.IndexByte(s, '\'') >= 0 && strings.IndexByte(s, '"') < 0 {
		quote = '"'
	}
	out := make([]byte, 0, len(s)+2)
	out = append(out, quote)

	for {
		r, width := utf8.DecodeRuneInString(s)
		if width == 0 {
			break
		}

		switch {
		// invalid UTF-8 goes in numeric byte escapes
		case r == utf8.RuneError && width == 1:
			out = append(out, '\\', 'x', hexdigits[s[0]>>4], hexdigits[s[0]&0xf])

		case r == '\\' || r == rune(quote):
			out = append(out, '\\', byte(r))

		case r == '\t':
			out = append(out, '\\', 't')
		case r == '\n':
			out = append(out, '\\', 'n')
		case r == '\r':
			out = append(out, '\\', 'r')

		case r < ' ' || r == 0x7f:
			out = append(out, '\\', 'x', hexdigits[r>>4], hexdigits[r&0xf])

		case strconv.IsPrint(r):
			out = append(out, s[:width]...)

		case r < 0x100:
			out = append(out, fmt.Sprintf(`\x%02x`, r)...)
		case r < 0x10000:
			out = append(out, fmt.Sprintf(`\u%04x`, r)...)
		default:
			out = append(out, fmt.Sprintf(`\U%08x`, r)...)
		}

		s = s[width:]
	}

	out = append(out, quote)
	return string(out)
}

// pyquoteBytes quotes b the way Python's repr(bytes) does.
func pyquoteBytes(b string) string {
	const hexdigits = "0123456789abcdef"
	quote := byte('\'')
	if strings.IndexByte(b, '\'') >= 0 && strings.IndexByte(b, '"') < 0 {
		quote = '"'
	}
	out := make([]byte, 0, len(b)+3)
	out = append(out, 'b', quote)
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case c == '\\' || c == quote:
			out = append(out, '\\', c)
		case c == '\t':
			out = append(out, '\\', 't')
		case c == '\n':
			out = append(out, '\\', 'n')
		case c == '\r':
			out = append(out, '\\', 'r')
		case c < ' ' || c >= 0x7f:
			out = append(out, '\\', 'x', hexdigits[c>>4], hexdigits[c&0xf])
		default:
			out = append(out, c)
		}
	}
	out = append(out, quote)
	return string(out)
}

// pydecodeStringEscape decodes input according to "string-escape" Python codec.
//
// The codec is essentially defined here:
// https://github.com/python/cpython/blob/v2.7.15-198-g69d0bc1430d/Objects/stringobject.c#L600
func pydecodeStringEscape(s string) (string, error) {
	out := make([]byte, 0, len(s))

loop:
	for {
		r, width := utf8.DecodeRuneInString(s)
		if width == 0 {
			break
		}

		// regular UTF-8 character
		if r != '\\' {
			out = append(out, s[:width]...)
			s = s[width:]
			continue
		}

		if len(s) < 2 {
			return "", strconv.ErrSyntax
		}

		switch c := s[1]; c {
		// \ LF -> just skip
		case '\n':
			s = s[2:]
			continue loop

		// \\ -> \
		case '\\':
			out = append(out, '\\')
			s = s[2:]
			continue loop

		// \' \"  (yes, both quotes are allowed to be escaped).
		case '\'', '"':
			out = append(out, c)
			s = s[2:]
			continue loop

		// \c (any character without special meaning) -> \ and proceed with C
		default:
			out = append(out, '\\')
			s = s[1:] // not skipping c
			continue loop

		// escapes we handle (NOTE no \u \U for strings)
		case 'b', 'f', 't', 'n', 'r', 'v', 'a': // control characters
		case '0', '1', '2', '3', '4', '5', '6', '7': // octals
		case 'x': // hex
		}

		// s starts with a good/known string escape prefix -> reuse UnquoteChar.
		r, _, tail, err := strconv.UnquoteChar(s, 0)
		if err != nil {
			return "", err
		}

		// all above escapes must produce single byte, so it is appended
		// directly and "\x80" does not become "\u0080".
		c := byte(r)
		if r != rune(c) {
			return "", fmt.Errorf("pydecode: string-escape: non-byte escaped rune %q (from %q)", r, s)
		}

		out = append(out, c)
		s = tail
	}

	return string(out), nil
}

// pydecodeRawUnicodeEscape decodes input according to "raw-unicode-escape" Python codec.
//
// Every byte is a latin1 character except \uXXXX and \UXXXXXXXX escapes
// preceded by an odd number of backslashes.
func pydecodeRawUnicodeEscape(s string) (string, error) {
	out := make([]rune, 0, len(s))

	for i := 0; i < len(s); {
		c := s[i]
		if c != '\\' {
			out = append(out, rune(c))
			i++
			continue
		}

		j := i
		for j < len(s) && s[j] == '\\' {
			j++
		}
		n := j - i

		if n%2 == 1 && j < len(s) && (s[j] == 'u' || s[j] == 'U') {
			width := 4
			if s[j] == 'U' {
				width = 8
			}
			if j+1+width > len(s) {
				return "", strconv.ErrSyntax
			}
			v, err := strconv.ParseUint(s[j+1:j+1+width], 16, 32)
			if err != nil || v > utf8.MaxRune {
				return "", strconv.ErrSyntax
			}
			for k := 0; k < n-1; k++ {
				out = append(out, '\\')
			}
			out = append(out, rune(v))
			i = j + 1 + width
			continue
		}

		for k := 0; k < n; k++ {
			out = append(out, '\\')
		}
		i = j
	}

	return string(out), nil
}
