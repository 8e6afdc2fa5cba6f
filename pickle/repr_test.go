package pickle

import (
	"math"
	"testing"
)

func TestRepr(t *testing.T) {
	testv := []struct {
		in   any
		repr string
	}{
		{None{}, "None"},
		{nil, "None"},
		{true, "True"},
		{false, "False"},
		{int64(-5), "-5"},
		{bigInt("123456789012345678901234567890"), "123456789012345678901234567890"},
		{1.5, "1.5"},
		{1.0, "1.0"},
		{math.Copysign(0, -1), "-0.0"},
		{1e15, "1000000000000000.0"},
		{1e16, "1e+16"},
		{0.0001, "0.0001"},
		{0.00001, "1e-05"},
		{1.5e300, "1.5e+300"},
		{math.NaN(), "nan"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{"it's", `"it's"`},
		{Bytes("a'"), `b"a'"`},
		{[]byte("a"), "bytearray(b'a')"},
		{Tuple{}, "()"},
		{Tuple{int64(1)}, "(1,)"},
		{Tuple{int64(1), "a"}, "(1, 'a')"},
		{NewList(), "[]"},
		{NewList(int64(1), NewList("a")), "[1, ['a']]"},
		{NewDictWithData("b", int64(1), "a", int64(2)), "{'b': 1, 'a': 2}"},
		{Class{Module: "torch", Name: "FloatStorage"}, "torch.FloatStorage"},
		{&Object{Module: "torch", Name: "Foo", Args: Tuple{}}, "torch.Foo()"},
		{&Object{Module: "torch", Name: "Foo", Args: Tuple{int64(1)}}, "torch.Foo(1,)"},
		{&Object{Module: "torch", Name: "Foo", Args: Tuple{int64(1), "a"}, State: None{}}, "torch.Foo(1, 'a')"},
		{&Object{Module: "__torch__.m", Name: "M", Args: Tuple{},
			State: NewDictWithData("b", int64(1), "a", int64(2))}, "__torch__.m.M()(state={'b': 1, 'a': 2})"},
	}

	for _, tt := range testv {
		if have := Repr(tt.in); have != tt.repr {
			t.Errorf("repr %#v:\nhave: %s\nwant: %s", tt.in, have, tt.repr)
		}
	}
}

func TestSafeRepr(t *testing.T) {
	testv := []struct {
		in   any
		repr string
	}{
		{NewDictWithData("b", int64(1), "a", int64(2)), "{'a': 2, 'b': 1}"},
		{NewDictWithData("a", "y", int64(1), "x", 0.5, "z"), "{0.5: 'z', 1: 'x', 'a': 'y'}"},
		{NewDictWithData(Tuple{int64(2)}, None{}, Tuple{int64(1), "b"}, None{}, Tuple{int64(1), "a"}, None{}),
			"{(1, 'a'): None, (1, 'b'): None, (2,): None}"},
		{NewList(NewDictWithData("z", int64(0), "y", int64(1))), "[{'y': 1, 'z': 0}]"},
		// objects render with plain repr
		{&Object{Module: "__torch__.m", Name: "M", Args: Tuple{},
			State: NewDictWithData("b", int64(1), "a", int64(2))}, "__torch__.m.M()(state={'b': 1, 'a': 2})"},
	}

	for _, tt := range testv {
		if have := safeRepr(tt.in); have != tt.repr {
			t.Errorf("safeRepr %s:\nhave: %s\nwant: %s", Repr(tt.in), have, tt.repr)
		}
	}
}

func TestReprRecursion(t *testing.T) {
	d := NewDict()
	d.Set("self", d)
	if have, want := Repr(d), "{'self': {...}}"; have != want {
		t.Errorf("repr: have %q; want %q", have, want)
	}
	if have, want := safeRepr(d), "{'self': <Recursion on dict>}"; have != want {
		t.Errorf("safeRepr: have %q; want %q", have, want)
	}

	o := &Object{Module: "m", Name: "O", Args: Tuple{}}
	o.State = NewList(o)
	if have, want := Repr(o), "m.O()(state=[...])"; have != want {
		t.Errorf("repr: have %q; want %q", have, want)
	}
}
