package pickletest

import (
	"archive/zip"
	"bytes"
)

// File is one archive entry.
type File struct {
	Name   string
	Data   []byte
	Method uint16 // zip.Store by default
}

// Zip returns a zip archive holding files in the given order.
func Zip(files ...File) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: f.Method})
		if err != nil {
			panic(err)
		}
		if _, err := w.Write(f.Data); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Model returns the entries every model archive under prefix has: version
// and data.pkl holding data.
func Model(prefix string, data any) []File {
	return []File{
		{Name: prefix + "/version", Data: []byte("3\n")},
		{Name: prefix + "/data.pkl", Data: Dumps(data)},
	}
}

// DebugRecord is one (byteOffset, sourceRange) item of a .debug_pkl list.
//
// The source range is ((Text, File, Line), Start, End).
type DebugRecord struct {
	Offset     int
	Text, File string
	Line       int
	Start, End int
}

// DebugPkl returns the pickled debug info for records.
func DebugPkl(records ...DebugRecord) []byte {
	items := make([]any, len(records))
	for i, r := range records {
		items[i] = Tuple{r.Offset, Tuple{Tuple{r.Text, r.File, r.Line}, r.Start, r.End}}
	}
	return Dumps(Tuple(items))
}
