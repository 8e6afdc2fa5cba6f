package pickle

import (
	"bytes"
	"testing"
)

// FuzzDecode verifies that decoding and rendering arbitrary input never panics.
func FuzzDecode(f *testing.F) {
	for _, test := range tests {
		f.Add([]byte(test.input))
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		obj, err := NewDecoder(bytes.NewReader(data)).Decode()
		if err != nil {
			return
		}
		_ = Repr(obj)
		_, _ = PFormat(obj)
	})
}
