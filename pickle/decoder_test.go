package pickle

import (
	"bytes"
	"errors"
	"io"
	"math/big"
	"strings"
	"testing"

	"github.com/kisielk/modeldump/internal/pickletest"
)

func bigInt(s string) *big.Int {
	i := new(big.Int)
	_, ok := i.SetString(s, 10)
	if !ok {
		panic("bigInt")
	}
	return i
}

func TestMarker(t *testing.T) {
	buf := bytes.Buffer{}
	dec := NewDecoder(&buf)
	dec.mark()
	k, err := dec.marker()
	if err != nil {
		t.Error(err)
	}
	if k != 0 {
		t.Error("no marker found")
	}
}

// TestEntry represents one decode test: input must decode to object.
type TestEntry struct {
	name   string
	input  string
	object any
}

func X(name, input string, object any) TestEntry {
	return TestEntry{name: name, input: input, object: object}
}

var tests = []TestEntry{
	X("None", "N.", None{}),
	X("True", "I01\n.", true),
	X("False", "\x80\x02\x89.", false),
	X("int", "I5\n.", int64(5)),
	X("int(-7) bin", "J\xf9\xff\xff\xff.", int64(-7)),
	X("int(300) bin2", "M\x2c\x01.", int64(300)),
	X("int outside int64", "I123456789012345678901234567890\n.", bigInt("123456789012345678901234567890")),
	X("long", "L123456789012345678901234567890L\n.", bigInt("123456789012345678901234567890")),
	X("long fits int64", "L42L\n.", int64(42)),
	X("long1(-1)", "\x80\x02\x8a\x01\xff.", int64(-1)),
	X("long1(2**64)", "\x80\x02\x8a\x09\x00\x00\x00\x00\x00\x00\x00\x00\x01.", bigInt("18446744073709551616")),
	X("long4(0)", "\x80\x02\x8b\x00\x00\x00\x00.", int64(0)),
	X("float", "F1.5\n.", 1.5),
	X("float bin", "G?\xf8\x00\x00\x00\x00\x00\x00.", 1.5),

	X("str", "S'abc'\n.", "abc"),
	X("str escaped", `S'a\'b\n'`+"\n.", "a'b\n"),
	X("unicode raw", "Vab\\u00e9\n.", "abé"),
	X("unicode bin", "X\x03\x00\x00\x00abc.", "abc"),
	X("unicode short", "\x80\x04\x8c\x04h\xc3\xa9!.", "hé!"),
	X("bytes", "\x80\x03C\x02ab.", Bytes("ab")),
	X("bytes bin", "\x80\x03B\x02\x00\x00\x00ab.", Bytes("ab")),
	X("bytearray", "\x80\x05\x96\x02\x00\x00\x00\x00\x00\x00\x00ab.", []byte("ab")),

	X("list", "\x80\x02]q\x00(K\x01K\x02e.", NewList(int64(1), int64(2))),
	X("list text", "(lp0\nI1\naI2\na.", NewList(int64(1), int64(2))),
	X("tuple", "(K\x01K\x02t.", Tuple{int64(1), int64(2)}),
	X("tuple1", "\x80\x02K\x01\x85.", Tuple{int64(1)}),
	X("tuple3", "\x80\x02K\x01K\x02K\x03\x87.", Tuple{int64(1), int64(2), int64(3)}),
	X("empty tuple", ").", Tuple{}),
	X("dict order", "}(X\x01\x00\x00\x00bK\x01X\x01\x00\x00\x00aK\x02u.",
		NewDictWithData("b", int64(1), "a", int64(2))),
	X("dict text", "(dp0\nS'x'\nI1\ns.", NewDictWithData("x", int64(1))),
	X("dict setitem replaces", "}K\x01K\x02sK\x01K\x03s.", NewDictWithData(int64(1), int64(3))),
	X("dict tuple key", "}(K\x01K\x02\x86N\x85u.", NewDictWithData(Tuple{int64(1), int64(2)}, Tuple{None{}})),

	X("global", "\x80\x02c__builtin__\nset\nq\x00.", Class{Module: "__builtin__", Name: "set"}),
	X("stack global", "\x80\x04\x8c\x05torch\x8c\x03Foo\x93.", Class{Module: "torch", Name: "Foo"}),
	X("reduce", "ctorch\nFoo\n)R.", &Object{Module: "torch", Name: "Foo", Args: Tuple{}}),
	X("reduce args", "ctorch\nFoo\nK\x01\x85R.", &Object{Module: "torch", Name: "Foo", Args: Tuple{int64(1)}}),
	X("build", "ctorch\nFoo\n)R}b.", &Object{Module: "torch", Name: "Foo", Args: Tuple{}, State: NewDict()}),
	X("build none", "ctorch\nFoo\n)RNb.", &Object{Module: "torch", Name: "Foo", Args: Tuple{}, State: None{}}),
	X("newobj", "\x80\x02ctorch\nFoo\n)\x81.", &Object{Module: "torch", Name: "Foo", Args: Tuple{}}),
	X("newobj_ex", "\x80\x04ctorch\nFoo\nK\x01\x85}\x92.", &Object{Module: "torch", Name: "Foo", Args: Tuple{int64(1)}}),
	X("inst", "(K\x01itorch\nFoo\n.", &Object{Module: "torch", Name: "Foo", Args: Tuple{int64(1)}}),
	X("obj", "(ctorch\nFoo\nK\x01o.", &Object{Module: "torch", Name: "Foo", Args: Tuple{int64(1)}}),
	X("persid", "Pabc\n.", &Object{Module: "pers", Name: "obj", Args: Tuple{"abc"}}),
	X("binpersid", "\x80\x02X\x03\x00\x00\x00pidQ.", &Object{Module: "pers", Name: "obj", Args: Tuple{"pid"}}),

	X("memo text", "(S'a'\np0\ng0\nt.", Tuple{"a", "a"}),
	X("memoize", "\x80\x04\x8c\x01a\x94h\x00\x86.", Tuple{"a", "a"}),
	X("frame", "\x80\x04\x95\x05\x00\x00\x00\x00\x00\x00\x00K\x07.", int64(7)),
	X("dup", "K\x012\x86.", Tuple{int64(1), int64(1)}),
	X("pop", "K\x01K\x020.", int64(1)),
	X("pop mark", "K\x01(K\x02K\x031.", int64(1)),
}

func TestDecode(t *testing.T) {
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			testDecode(t, DecoderConfig{}, test.object, test.input)
		})
	}
}

// testDecode decodes input and verifies it is object.
//
// It also verifies decoder robustness - via feeding it various kinds of
// corrupt data derived from input.
func testDecode(t *testing.T, config DecoderConfig, object any, input string) {
	newDecoder := func(r io.Reader) *Decoder {
		return NewDecoderWithConfig(r, &config)
	}

	// decode(input) -> expected
	buf := strings.NewReader(input)
	dec := newDecoder(buf)
	v, err := dec.Decode()
	if err != nil {
		t.Fatal(err)
	}

	if !deepEqual(v, object) {
		t.Errorf("decode:\nhave: %s\nwant: %s", Repr(v), Repr(object))
	}

	// decode more -> EOF
	v, err = dec.Decode()
	if !(v == nil && err == io.EOF) {
		t.Errorf("decode: no EOF at end: v = %#v  err = %#v", v, err)
	}

	// decode(truncated input) -> must return io.ErrUnexpectedEOF
	for l := len(input) - 1; l > 0; l-- {
		buf := strings.NewReader(input[:l])
		dec := newDecoder(buf)
		v, err := dec.Decode()
		if !(v == nil && err == io.ErrUnexpectedEOF) {
			t.Errorf("no ErrUnexpectedEOF on [:%d] truncated stream: v = %#v  err = %#v", l, v, err)
		}
	}

	// decode(input with omitted prefix) - tests how code handles e.g. stack underflow.
	for l := int64(1); l < int64(len(input)); l++ {
		buf := strings.NewReader(input[l:])
		dec := newDecoder(buf)
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("panic on input[%d:]: %v", l, r)
				}
			}()
			dec.Decode()
		}()
	}
}

// test that .Decode() decodes only until stop opcode, and can continue
// decoding further on next call
func TestDecodeMultiple(t *testing.T) {
	input := "(lp0\nI1\naI2\na.\x80\x02K\x03."
	expected := []any{NewList(int64(1), int64(2)), int64(3)}

	buf := bytes.NewBufferString(input)
	dec := NewDecoder(buf)

	for i, objOk := range expected {
		obj, err := dec.Decode()
		if err != nil {
			t.Errorf("step #%v: %v", i, err)
		}

		if !deepEqual(obj, objOk) {
			t.Errorf("step #%v: %q ; want %q", i, Repr(obj), Repr(objOk))
		}
	}

	obj, err := dec.Decode()
	if !(obj == nil && err == io.EOF) {
		t.Errorf("decode: no EOF at end: obj = %#v  err = %#v", obj, err)
	}
}

func TestDecodeLong(t *testing.T) {
	var testv = []struct {
		data  string
		value *big.Int
	}{
		{"", big.NewInt(0)},
		{"\xff\x00", big.NewInt(255)},
		{"\xff\x7f", big.NewInt(32767)},
		{"\x00\xff", big.NewInt(-256)},
		{"\x00\x80", big.NewInt(-32768)},
		{"\x80", big.NewInt(-128)},
		{"\x7f", big.NewInt(127)},
		{"\xff\xff\xff\xff\xff\xff\xff\xff\xff", big.NewInt(-1)},
	}

	for _, tt := range testv {
		value := decodeLong([]byte(tt.data))
		if value.Cmp(tt.value) != 0 {
			t.Errorf("decodeLong(%q) returned %v instead of %v", tt.data, value, tt.value)
		}
	}
}

// memoized list observes items appended after it was put to memo.
func TestMemoSharing(t *testing.T) {
	// [] PUT0 GET0 TUPLE2 GET0 1 APPEND POP
	input := "\x80\x02]q\x00h\x00\x86h\x00K\x01a0."
	v, err := NewDecoder(strings.NewReader(input)).Decode()
	if err != nil {
		t.Fatal(err)
	}
	tuple, ok := v.(Tuple)
	if !ok || len(tuple) != 2 {
		t.Fatalf("decode: have %s; want 2-tuple", Repr(v))
	}
	l0, ok0 := tuple[0].(*List)
	l1, ok1 := tuple[1].(*List)
	if !(ok0 && ok1) {
		t.Fatalf("decode: have %s; want tuple of lists", Repr(v))
	}
	if l0 != l1 {
		t.Errorf("memoized list is not shared")
	}
	if !deepEqual(l0, NewList(int64(1))) {
		t.Errorf("shared list: have %s; want [1]", Repr(l0))
	}
	if have, want := Repr(v), "([1], [1])"; have != want {
		t.Errorf("repr: have %q; want %q", have, want)
	}
}

func TestRecursiveList(t *testing.T) {
	// [] PUT0 GET0 APPEND
	input := "\x80\x02]q\x00h\x00a."
	v, err := NewDecoder(strings.NewReader(input)).Decode()
	if err != nil {
		t.Fatal(err)
	}
	l := v.(*List)
	if l.Len() != 1 || l.Items[0] != any(l) {
		t.Fatalf("decode: list does not contain itself")
	}
	if have, want := Repr(v), "[[...]]"; have != want {
		t.Errorf("repr: have %q; want %q", have, want)
	}
	s, err := PFormat(v)
	if err != nil {
		t.Fatal(err)
	}
	if want := "[<Recursion on list>]"; s != want {
		t.Errorf("pformat: have %q; want %q", s, want)
	}
}

func TestDecodeError(t *testing.T) {
	testv := []struct {
		name  string
		input string
	}{
		{"stop on mark", "(."},
		{"stop on empty stack", "."},
		{"append underflow", "a."},
		{"append to non-list", "K\x01K\x02a."},
		{"setitem to non-dict", "K\x01K\x02K\x03s."},
		{"unhashable key", "}]K\x01s."},
		{"unhashable key in tuple", "}(]\x85K\x01u."},
		{"reduce non-class", "\x80\x02K\x01)R."},
		{"reduce non-tuple", "ctorch\nFoo\nK\x01R."},
		{"build on non-object", "K\x01K\x02b."},
		{"newobj_ex kwargs", "\x80\x04ctorch\nFoo\n)}(X\x01\x00\x00\x00kK\x01u\x92."},
		{"obj without class", "(o."},
		{"memo miss", "h\x05."},
		{"invalid proto", "\x80\x06."},
		{"invalid int", "Iabc\n."},
		{"invalid long", "Labc\n."},
		{"invalid string delimiter", "Sabc\n."},
		{"invalid utf8", "X\x01\x00\x00\x00\xff."},
		{"stack global non-string", "\x80\x04K\x01K\x02\x93."},
		{"odd dict", "(K\x01d."},
		{"tuple2 underflow", "K\x01\x86."},
		{"negative long4", "\x8b\xff\xff\xff\xff."},
	}
	for _, tt := range testv {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewDecoder(strings.NewReader(tt.input)).Decode()
			if err == nil {
				t.Errorf("decode: no error; have %s", Repr(v))
			}
		})
	}
}

func TestDecodeOpcodeError(t *testing.T) {
	testv := []struct {
		input string
		key   byte
		pos   int
	}{
		{"\x82\x01.", opExt1, 1},
		{"\x80\x04\x8f.", opEmptySet, 2},
		{"K\x01\x91.", opFrozenSet, 2},
		{"\x80\x05\x97.", opNextBuffer, 2},
		{"Z.", 'Z', 1},
	}
	for _, tt := range testv {
		_, err := NewDecoder(strings.NewReader(tt.input)).Decode()
		var opErr OpcodeError
		if !errors.As(err, &opErr) {
			t.Errorf("%q: have %v; want OpcodeError", tt.input, err)
			continue
		}
		if opErr.Key != tt.key || opErr.Pos != tt.pos {
			t.Errorf("%q: have %#v; want key=%#x pos=%d", tt.input, opErr, tt.key, tt.pos)
		}
	}
}

func TestCatchInvalidUTF8(t *testing.T) {
	input := "\x80\x02X\x03\x00\x00\x00a\xffb."
	want := &Object{
		Module: "builtin",
		Name:   "UnicodeDecodeError",
		Args:   Tuple{"'utf-8' codec can't decode byte 0xff in position 1"},
	}
	testDecode(t, DecoderConfig{CatchInvalidUTF8: true}, want, input)

	_, err := NewDecoder(strings.NewReader(input)).Decode()
	if err == nil {
		t.Errorf("decode without CatchInvalidUTF8: no error")
	}
}

// pickles produced by the test encoder decode back to the same tree.
func TestDecodeEncoded(t *testing.T) {
	testv := []struct {
		name   string
		value  any
		object any
	}{
		{"module state",
			pickletest.Call{
				Module: "__torch__.m", Name: "Net", Args: pickletest.Tuple{},
				State: pickletest.Dict{"training", true, "w", []any{1, 2.5, "x"}},
			},
			&Object{
				Module: "__torch__.m", Name: "Net", Args: Tuple{},
				State: NewDictWithData("training", true, "w", NewList(int64(1), 2.5, "x")),
			},
		},
		{"tensor",
			pickletest.Call{
				Module: "torch._utils", Name: "_rebuild_tensor_v2",
				Args: pickletest.Tuple{
					pickletest.Persistent{ID: pickletest.Tuple{
						"storage", pickletest.Global{Module: "torch", Name: "FloatStorage"}, "0", "cpu", 6,
					}},
					0, pickletest.Tuple{2, 3}, pickletest.Tuple{3, 1}, false, pickletest.Call{
						Module: "collections", Name: "OrderedDict", Args: pickletest.Tuple{},
					},
				},
			},
			&Object{
				Module: "torch._utils", Name: "_rebuild_tensor_v2",
				Args: Tuple{
					&Object{Module: "pers", Name: "obj", Args: Tuple{Tuple{
						"storage", Class{Module: "torch", Name: "FloatStorage"}, "0", "cpu", int64(6),
					}}},
					int64(0), Tuple{int64(2), int64(3)}, Tuple{int64(3), int64(1)}, false,
					&Object{Module: "collections", Name: "OrderedDict", Args: Tuple{}},
				},
			},
		},
		{"big ints",
			pickletest.Tuple{int64(1) << 40, -70000, pickletest.Long("-123456789012345678901234567890")},
			Tuple{int64(1) << 40, int64(-70000), bigInt("-123456789012345678901234567890")},
		},
		{"bytes and long string",
			pickletest.List{pickletest.Bytes("\x00\x01"), strings.Repeat("ab", 200)},
			NewList(Bytes("\x00\x01"), strings.Repeat("ab", 200)),
		},
	}

	for _, tt := range testv {
		t.Run(tt.name, func(t *testing.T) {
			testDecode(t, DecoderConfig{}, tt.object, string(pickletest.Dumps(tt.value)))
		})
	}
}
