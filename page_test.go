package modeldump

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReport() *Report {
	code := NewOrderedMap[[]CodeSpan]()
	code.Set("m/code/a.py", []CodeSpan{{Text: "pass\n", File: 0, Line: 1, SourceText: 1, Start: 0, End: 4}})
	extras := NewOrderedMap[json.RawMessage]()
	extras.Set("m/extra/b.json", json.RawMessage(`{"url":"http://x/y"}`))
	extras.Set("m/extra/a.json", json.RawMessage(`[]`))
	pickles := NewOrderedMap[string]()
	pickles.Set("m/data.pkl", "None\n")

	return &Report{
		Title:    "models/a</script>",
		FileSize: 123,
		Version:  "3",
		ZipFiles: []ZipFile{
			{Filename: "m/version", Compression: 0, CompressedSize: 2, FileSize: 2},
		},
		InternedStrings: []any{"a.py", "pass"},
		CodeFiles:       code,
		ModelData:       TupleNode{Values: []any{int64(1)}},
		ExtraFilesJSONs: extras,
		ExtraPickles:    pickles,
	}
}

const testReportJSON = `{"model": {
	"title": "models/a</script>",
	"file_size": 123,
	"version": "3",
	"zip_files": [{"filename": "m/version", "compression": 0, "compressed_size": 2, "file_size": 2}],
	"interned_strings": ["a.py", "pass"],
	"code_files": {"m/code/a.py": [["pass\n", 0, 1, 1, 0, 4]]},
	"model_data": {"__tuple_values__": [1]},
	"extra_files_jsons": {"m/extra/b.json": {"url": "http://x/y"}, "m/extra/a.json": []},
	"extra_pickles": {"m/data.pkl": "None\n"}
}}`

func TestParseStyle(t *testing.T) {
	for _, s := range []string{"json", "html"} {
		style, err := ParseStyle(s)
		require.NoError(t, err)
		assert.Equal(t, Style(s), style)
	}
	for _, s := range []string{"", "JSON", "xml"} {
		_, err := ParseStyle(s)
		assert.ErrorIs(t, err, ErrInvalidStyle, "style %q", s)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, testReport()))

	out := buf.String()
	assert.True(t, strings.HasSuffix(out, "}\n"))
	assert.Equal(t, 1, strings.Count(out, "\n"), "one line")
	assert.JSONEq(t, testReportJSON, out)

	// objects keep insertion order
	assert.Less(t, strings.Index(out, "m/extra/b.json"), strings.Index(out, "m/extra/a.json"))
}

func TestBurnIn(t *testing.T) {
	page := "<script>\nBURNED_IN_MODEL_INFO = null;\n</script>\n"
	out, err := BurnIn(page, testReport())
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(out, "<script>\nBURNED_IN_MODEL_INFO = {"), out)
	require.True(t, strings.HasSuffix(out, ";\n</script>\n"), out)
	info := strings.TrimSuffix(strings.TrimPrefix(out, "<script>\nBURNED_IN_MODEL_INFO = "), ";\n</script>\n")

	assert.NotContains(t, info, "/")
	assert.Contains(t, info, `"url":"http:\/\/x\/y"`)
	assert.Contains(t, info, `models\/a\u003c\/script\u003e`)

	// escaped slashes are still valid JSON
	assert.JSONEq(t, testReportJSON, info)
}

func TestInlineSkeleton(t *testing.T) {
	s := InlineSkeleton()
	assert.Equal(t, 1, strings.Count(s, burnInPlaceholder))
	assert.NotContains(t, s, "http://")
	assert.NotContains(t, s, "https://")
}

func TestRender(t *testing.T) {
	r := testReport()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, StyleJSON))
	assert.JSONEq(t, testReportJSON, buf.String())

	buf.Reset()
	require.NoError(t, Render(&buf, r, StyleHTML))
	want, err := BurnIn(InlineSkeleton(), r)
	require.NoError(t, err)
	assert.Equal(t, want, buf.String())
	assert.NotContains(t, buf.String(), burnInPlaceholder)
	assert.Contains(t, buf.String(), "<!doctype html>")

	assert.ErrorIs(t, Render(&buf, r, Style("pdf")), ErrInvalidStyle)
}

func TestOrderedMap(t *testing.T) {
	m := NewOrderedMap[int]()
	m.Set("b", 1)
	m.Set("a", 2)
	m.Set("b", 3)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, []string{"b", "a"}, m.Keys())
	v, ok := m.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	_, ok = m.Get("c")
	assert.False(t, ok)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"b":3,"a":2}`, string(data))

	data, err = json.Marshal(NewOrderedMap[string]())
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}
