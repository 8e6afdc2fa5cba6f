package pickle
// conversion in between Go types to match Python.

import (
	"fmt"
	"math/big"
)

// AsInt64 tries to represent unpickled value to int64.
//
// Python int is decoded as int64, or as big.Int when it does not fit.
// Go code should use AsInt64 to accept normal-range integers independently of
// their Go representation. Python bool is an int as well.
func AsInt64(x any) (int64, error) {
	switch x := x.(type) {
	case int64:
		return x, nil
	case bool:
		return bint(x), nil
	case *big.Int:
		if !x.IsInt64() {
			return 0, fmt.Errorf("long outside of int64 range")
		}
		return x.Int64(), nil
	}
	return 0, fmt.Errorf("expect int64|long; got %T", x)
}

// AsString tries to represent unpickled value as string.
//
// It does not succeed if the value is Bytes or any other type.
func AsString(x any) (string, error) {
	switch x := x.(type) {
	case string:
		return x, nil
	}
	return "", fmt.Errorf("expect unicode; got %T", x)
}

// AsTuple tries to represent unpickled value as Tuple of length n.
//
// n < 0 accepts tuple of any length.
func AsTuple(x any, n int) (Tuple, error) {
	t, ok := x.(Tuple)
	if !ok {
		return nil, fmt.Errorf("expect tuple; got %T", x)
	}
	if n >= 0 && len(t) != n {
		return nil, fmt.Errorf("expect %d-tuple; got %d-tuple", n, len(t))
	}
	return t, nil
}
