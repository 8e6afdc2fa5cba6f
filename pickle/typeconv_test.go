package pickle

import (
	"fmt"
	"testing"
)

func TestAsInt64(t *testing.T) {
	Etype := func(typename string) error {
		return fmt.Errorf("expect int64|long; got %s", typename)
	}
	Erange := fmt.Errorf("long outside of int64 range")

	testv := []struct {
		in    any
		outOK any
	}{
		{int64(0), int64(0)},
		{int64(123), int64(123)},
		{int64(0x7fffffffffffffff), int64(0x7fffffffffffffff)},
		{int64(-0x8000000000000000), int64(-0x8000000000000000)},
		{true, int64(1)},
		{false, int64(0)},
		{bigInt("123"), int64(123)},
		{bigInt("9223372036854775807"), int64(0x7fffffffffffffff)},
		{bigInt("9223372036854775808"), Erange},
		{bigInt("-9223372036854775808"), int64(-0x8000000000000000)},
		{bigInt("-9223372036854775809"), Erange},
		{1.0, Etype("float64")},
		{"a", Etype("string")},
	}

	for _, tt := range testv {
		iout, err := AsInt64(tt.in)
		var out any = iout
		if err != nil {
			out = err
			if iout != 0 {
				t.Errorf("%T %#v -> err, but ret int64 = %d  ; want 0",
					tt.in, tt.in, iout)
			}
		}

		if !deepEqual(out, tt.outOK) {
			t.Errorf("%T %#v -> %T %#v  ; want %T %#v",
				tt.in, tt.in, out, out, tt.outOK, tt.outOK)
		}
	}
}

func TestAsString(t *testing.T) {
	testv := []struct {
		in any
		ok bool
	}{
		{"мир", true},
		{Bytes("мир"), false},
		{1.0, false},
		{None{}, false},
	}

	for _, tt := range testv {
		s, err := AsString(tt.in)
		if tt.ok {
			if err != nil || s != tt.in {
				t.Errorf("%#v: AsString: have %q %v", tt.in, s, err)
			}
			continue
		}
		errOK := fmt.Errorf("expect unicode; got %T", tt.in)
		if s != "" || !deepEqual(err, errOK) {
			t.Errorf("%#v: AsString:\nhave %q %#v\nwant \"\" %#v", tt.in, s, err, errOK)
		}
	}
}

func TestAsTuple(t *testing.T) {
	tuple := Tuple{int64(1), "a"}

	if v, err := AsTuple(tuple, 2); err != nil || !deepEqual(v, tuple) {
		t.Errorf("AsTuple(2-tuple, 2): have %v %v", v, err)
	}
	if v, err := AsTuple(tuple, -1); err != nil || !deepEqual(v, tuple) {
		t.Errorf("AsTuple(2-tuple, -1): have %v %v", v, err)
	}
	if _, err := AsTuple(tuple, 3); err == nil {
		t.Errorf("AsTuple(2-tuple, 3): no error")
	}
	if _, err := AsTuple(NewList(int64(1), "a"), 2); err == nil {
		t.Errorf("AsTuple(list, 2): no error")
	}
}
