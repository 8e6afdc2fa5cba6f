package pickle
// Utilities that complement std reflect package.

import (
	"math/big"
	"reflect"
)

// deepEqual is like reflect.DeepEqual but also supports List, Dict and Object.
//
// It is needed because reflect.DeepEqual considers two Dicts not-equal because
// each Dict is made with its own seed. Dict keys are compared exactly: int64(1)
// and float64(1) keys are different for deepEqual.
func deepEqual(a, b any) bool {
	switch a := a.(type) {
	case *List:
		lb, ok := b.(*List)
		if !ok || a.Len() != lb.Len() {
			return false
		}
		for i := range a.Items {
			if !deepEqual(a.Items[i], lb.Items[i]) {
				return false
			}
		}
		return true

	case Tuple:
		tb, ok := b.(Tuple)
		if !ok || len(a) != len(tb) {
			return false
		}
		for i := range a {
			if !deepEqual(a[i], tb[i]) {
				return false
			}
		}
		return true

	case *Dict:
		db, ok := b.(*Dict)
		if !ok || a.Len() != db.Len() {
			return false
		}
		for i := range a.keys {
			ka, kb := a.keys[i], db.keys[i]
			if reflect.TypeOf(ka) != reflect.TypeOf(kb) || !equal(ka, kb) {
				return false
			}
			if !deepEqual(a.values[i], db.values[i]) {
				return false
			}
		}
		return true

	case *Object:
		ob, ok := b.(*Object)
		if !ok {
			return false
		}
		return a.Module == ob.Module && a.Name == ob.Name &&
			deepEqual(a.Args, ob.Args) && deepEqual(a.State, ob.State)

	case *big.Int:
		bb, ok := b.(*big.Int)
		return ok && a.Cmp(bb) == 0
	}

	return reflect.DeepEqual(a, b)
}
