package pickle

import (
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// PprintWidth is the line width PFormat tries to fit into.
const PprintWidth = 80

// errObjectArgsAndState is returned when an object with both call arguments
// and state does not fit into one line. Python's pprint has no layout for it
// either.
var errObjectArgsAndState = errors.New("pprint: object with both args and state does not fit on one line")

// PFormat returns pretty-printed representation of an unpickled value the
// way Python's pprint.pformat does with default settings.
//
// Values whose repr fits into the remaining line width are written as is.
// Longer dicts, lists and tuples put one item per line, long strings are
// split at whitespace, and objects print their arguments or state on
// following lines.
func PFormat(v any) (string, error) {
	p := printer{width: PprintWidth, context: make(map[any]bool)}
	var b strings.Builder
	if err := p.format(&b, v, 0, 0, 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Pprint writes PFormat(v) followed by newline to w.
func Pprint(w io.Writer, v any) error {
	s, err := PFormat(v)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, s+"\n")
	return err
}

// printer holds pretty-printing state.
//
// context tracks containers being printed to detect recursion.
type printer struct {
	width   int
	context map[any]bool
}

// runeLen returns length of s in characters.
func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func (p *printer) format(b *strings.Builder, v any, indent, allowance, level int) error {
	id := identity(v)
	if id != nil && p.context[id] {
		b.WriteString("<Recursion on " + TypeName(v) + ">")
		return nil
	}

	rep := safeRepr(v)
	maxWidth := p.width - indent - allowance
	if runeLen(rep) <= maxWidth {
		b.WriteString(rep)
		return nil
	}

	if id != nil {
		p.context[id] = true
		defer delete(p.context, id)
	}

	switch v := v.(type) {
	case *Dict:
		return p.pprintDict(b, v, indent, allowance, level+1)
	case *List:
		b.WriteString("[")
		if err := p.formatItems(b, v.Items, indent, allowance+1, level+1); err != nil {
			return err
		}
		b.WriteString("]")
		return nil
	case Tuple:
		endchar := ")"
		if len(v) == 1 {
			endchar = ",)"
		}
		b.WriteString("(")
		if err := p.formatItems(b, v, indent, allowance+len(endchar), level+1); err != nil {
			return err
		}
		b.WriteString(endchar)
		return nil
	case string:
		p.pprintStr(b, v, indent, allowance, level+1)
		return nil
	case *Object:
		return p.pprintObject(b, v, indent, allowance, level+1)
	}

	b.WriteString(rep)
	return nil
}

func (p *printer) pprintDict(b *strings.Builder, d *Dict, indent, allowance, level int) error {
	b.WriteString("{")
	if d.Len() > 0 {
		keys, values := sortedItems(d)
		indent++
		delimnl := ",\n" + strings.Repeat(" ", indent)
		last := len(keys) - 1
		for i := range keys {
			rep := safeRepr(keys[i])
			b.WriteString(rep)
			b.WriteString(": ")
			itemAllowance := 1
			if i == last {
				itemAllowance = allowance + 1
			}
			if err := p.format(b, values[i], indent+runeLen(rep)+2, itemAllowance, level); err != nil {
				return err
			}
			if i != last {
				b.WriteString(delimnl)
			}
		}
	}
	b.WriteString("}")
	return nil
}

func (p *printer) formatItems(b *strings.Builder, items []any, indent, allowance, level int) error {
	indent++
	delimnl := ",\n" + strings.Repeat(" ", indent)
	for i, item := range items {
		if i > 0 {
			b.WriteString(delimnl)
		}
		itemAllowance := 1
		if i == len(items)-1 {
			itemAllowance = allowance
		}
		if err := p.format(b, item, indent, itemAllowance, level); err != nil {
			return err
		}
	}
	return nil
}

// pprintObject lays out an object whose repr does not fit on one line.
func (p *printer) pprintObject(b *strings.Builder, o *Object, indent, allowance, level int) error {
	switch {
	case len(o.Args) == 0 && !o.HasState():
		b.WriteString(Repr(o))
		return nil

	case !o.HasState():
		b.WriteString(o.TypeName())
		return p.format(b, o.Args, indent+1, allowance+1, level)

	case len(o.Args) == 0:
		b.WriteString(o.TypeName())
		b.WriteString("()(state=\n")
		indent++
		b.WriteString(strings.Repeat(" ", indent))
		if err := p.format(b, o.State, indent, allowance+1, level+1); err != nil {
			return err
		}
		b.WriteString(")")
		return nil
	}

	return errObjectArgsAndState
}

// pprintStr splits a long string into several adjacent literals, breaking
// at line ends first and then at whitespace.
func (p *printer) pprintStr(b *strings.Builder, s string, indent, allowance, level int) {
	if s == "" {
		b.WriteString(pyquote(s))
		return
	}

	var chunks []string
	lines := splitLinesKeepEnds(s)
	if level == 1 {
		indent++
		allowance++
	}
	maxWidth := p.width - indent
	maxWidth1 := maxWidth
	for i, line := range lines {
		rep := pyquote(line)
		if i == len(lines)-1 {
			maxWidth1 -= allowance
		}
		if runeLen(rep) <= maxWidth1 {
			chunks = append(chunks, rep)
			continue
		}

		parts := splitWords(line)
		maxWidth2 := maxWidth
		current := ""
		for j, part := range parts {
			candidate := current + part
			if j == len(parts)-1 && i == len(lines)-1 {
				maxWidth2 -= allowance
			}
			if runeLen(pyquote(candidate)) > maxWidth2 {
				if current != "" {
					chunks = append(chunks, pyquote(current))
				}
				current = part
			} else {
				current = candidate
			}
		}
		if current != "" {
			chunks = append(chunks, pyquote(current))
		}
	}

	if len(chunks) == 1 {
		b.WriteString(chunks[0])
		return
	}
	if level == 1 {
		b.WriteString("(")
	}
	for i, chunk := range chunks {
		if i > 0 {
			b.WriteString("\n" + strings.Repeat(" ", indent))
		}
		b.WriteString(chunk)
	}
	if level == 1 {
		b.WriteString(")")
	}
}

// splitLinesKeepEnds splits s at line boundaries keeping the line endings,
// like Python's str.splitlines(True).
func splitLinesKeepEnds(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); {
		r, width := utf8.DecodeRuneInString(s[i:])
		end := -1
		switch r {
		case '\r':
			end = i + width
			if end < len(s) && s[end] == '\n' {
				end++
			}
		case '\n', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
			end = i + width
		}
		if end < 0 {
			i += width
			continue
		}
		lines = append(lines, s[start:end])
		start = end
		i = end
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// splitWords splits s into runs of non-space characters, each followed by
// the whitespace after it.
func splitWords(s string) []string {
	var parts []string
	start := 0
	inSpace := false
	for i, r := range s {
		space := unicode.IsSpace(r)
		if !space && inSpace {
			parts = append(parts, s[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}
