package modeldump

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/kisielk/modeldump/pickle"
)

// CodeSpan is a piece of a source file together with the location of the
// code it was generated from.
//
// It is encoded as [text, file, line, sourceText, start, end] where file
// and sourceText are indices into the report's interned strings.
type CodeSpan struct {
	Text       string
	File       int
	Line       int64
	SourceText int
	Start, End int64
}

func (s CodeSpan) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{s.Text, s.File, s.Line, s.SourceText, s.Start, s.End})
}

// debugRecord is one (byteOffset, sourceRange) item of debug info.
type debugRecord struct {
	offset     int64
	text       string
	file       any // string or pickle.None
	line       int64
	start, end int64
}

// parseDebugInfo validates decoded debug info.
//
// Debug info is a sequence of (offset, ((text, file, line), start, end))
// records. Newer archives append a third element to each record; it is
// ignored.
func parseDebugInfo(v any) ([]debugRecord, error) {
	items, ok := sequence(v)
	if !ok {
		return nil, fmt.Errorf("expected sequence of records, got %s", pickle.TypeName(v))
	}
	records := make([]debugRecord, len(items))
	for i, item := range items {
		r, err := parseDebugRecord(item)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records[i] = r
	}
	return records, nil
}

func parseDebugRecord(v any) (r debugRecord, err error) {
	item, ok := sequence(v)
	if !ok || len(item) < 2 || len(item) > 3 {
		return r, fmt.Errorf("expected (offset, range), got %s", pickle.Repr(v))
	}
	if r.offset, err = pickle.AsInt64(item[0]); err != nil {
		return r, fmt.Errorf("offset: %w", err)
	}
	if r.offset < 0 {
		return r, fmt.Errorf("negative offset %d", r.offset)
	}

	rng, err := pickle.AsTuple(item[1], 3)
	if err != nil {
		return r, fmt.Errorf("range: %w", err)
	}
	source, err := pickle.AsTuple(rng[0], 3)
	if err != nil {
		return r, fmt.Errorf("source: %w", err)
	}
	if r.text, err = pickle.AsString(source[0]); err != nil {
		return r, fmt.Errorf("source text: %w", err)
	}
	switch file := source[1].(type) {
	case string, pickle.None:
		r.file = file
	default:
		return r, fmt.Errorf("source file: expect unicode; got %T", file)
	}
	if r.line, err = pickle.AsInt64(source[2]); err != nil {
		return r, fmt.Errorf("source line: %w", err)
	}
	if r.start, err = pickle.AsInt64(rng[1]); err != nil {
		return r, fmt.Errorf("range start: %w", err)
	}
	if r.end, err = pickle.AsInt64(rng[2]); err != nil {
		return r, fmt.Errorf("range end: %w", err)
	}
	return r, nil
}

// sequence returns items of a decoded tuple or list.
func sequence(v any) ([]any, bool) {
	switch v := v.(type) {
	case pickle.Tuple:
		return v, true
	case *pickle.List:
		return v.Items, true
	}
	return nil, false
}

// correlate splits code at record offsets and pairs every piece with the
// source range of its record. The piece after the last offset is not
// covered by any record and is dropped.
//
// File names and source texts are interned, file first.
func correlate(code []byte, records []debugRecord, interned *Interner[any]) ([]CodeSpan, error) {
	spans := make([]CodeSpan, 0, max(len(records)-1, 0))
	size := int64(len(code))
	for i := 0; i+1 < len(records); i++ {
		r := records[i]
		start, end := r.offset, records[i+1].offset
		if end <= start {
			return nil, fmt.Errorf("record %d: offset %d does not follow %d", i+1, end, start)
		}

		piece := code[min(start, size):min(end, size)]
		if !utf8.Valid(piece) {
			return nil, fmt.Errorf("bytes [%d, %d) are not valid UTF-8", start, end)
		}

		// Ranges count bytes of text, which only match characters for ASCII.
		text, sstart, send := r.text, r.start, r.end
		if utf8.RuneCountInString(text) != len(text) {
			text, sstart, send = "", 0, 0
		}

		file := interned.Intern(r.file)
		spans = append(spans, CodeSpan{
			Text:       string(piece),
			File:       file,
			Line:       r.line,
			SourceText: interned.Intern(text),
			Start:      sstart,
			End:        send,
		})
	}
	return spans, nil
}
