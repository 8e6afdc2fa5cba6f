package pickle
// Python-like dict that keeps insertion order and handles keys by
// Python-like equality on access.
//
// For example Dict.Get() will access the same element for all keys int64(1),
// float64(1.0), true and big.Int(1).

import (
	"encoding/binary"
	"fmt"
	"hash/maphash"
	"math"
	"math/big"
	"reflect"

	"github.com/aristanetworks/gomap"
)

// Dict represents Python's dict.
//
// It mirrors Python with respect to which types are allowed to be used as
// keys, and with respect to keys equality. For example Tuple is allowed to be
// used as key, and all int64(1), float64(1.0) and big.Int(1) are considered to
// be equal. Similarly to Python3, Bytes and string are never equal.
//
// Entries are kept in insertion order. Setting an already present key
// replaces its value in place, the way Python does.
//
// Dict is used by pointer: the same dict may be referenced from several
// places of one pickle.
type Dict struct {
	keys   []any
	values []any
	index  *gomap.Map[any, int] // key -> position in keys/values
}

// NewDict returns new empty dictionary.
func NewDict() *Dict {
	return NewDictWithSizeHint(0)
}

// NewDictWithSizeHint returns new empty dictionary with preallocated space for size items.
func NewDictWithSizeHint(size int) *Dict {
	return &Dict{
		keys:   make([]any, 0, size),
		values: make([]any, 0, size),
		index:  gomap.NewHint[any, int](size, equal, hash),
	}
}

// NewDictWithData returns new dictionary with preset data.
//
// kv should be key₁, value₁, key₂, value₂, ...
func NewDictWithData(kv ...any) *Dict {
	l := len(kv)
	if l%2 != 0 {
		panic("odd number of arguments")
	}
	l /= 2
	d := NewDictWithSizeHint(l)
	for i := 0; i < l; i++ {
		d.Set(kv[2*i], kv[2*i+1])
	}
	return d
}

// Get returns value associated with equal key.
//
// nil is returned if no matching key is present in the dictionary.
//
// Get panics if key's type is not allowed to be used as Dict key.
func (d *Dict) Get(key any) any {
	value, _ := d.Get_(key)
	return value
}

// Get_ is comma-ok version of Get.
func (d *Dict) Get_(key any) (value any, ok bool) {
	mustHashable(key)
	i, ok := d.index.Get(key)
	if !ok {
		return nil, false
	}
	return d.values[i], true
}

// Set sets key to be associated with value.
//
// If an equal key is already present, its value is replaced and its
// position in iteration order is kept.
//
// Set panics if key's type is not allowed to be used as Dict key.
func (d *Dict) Set(key, value any) {
	mustHashable(key)
	if i, ok := d.index.Get(key); ok {
		d.values[i] = value
		return
	}
	d.index.Set(key, len(d.keys))
	d.keys = append(d.keys, key)
	d.values = append(d.values, value)
}

// Len returns the number of items in the dictionary.
func (d *Dict) Len() int {
	return len(d.keys)
}

// Keys returns dictionary keys in insertion order.
func (d *Dict) Keys() []any {
	return append([]any(nil), d.keys...)
}

// Values returns dictionary values in insertion order.
//
// Values()[i] is the value of Keys()[i].
func (d *Dict) Values() []any {
	return append([]any(nil), d.values...)
}

// Iter returns iterator over all elements in the dictionary in insertion order.
func (d *Dict) Iter() func(yield func(any, any) bool) {
	return func(yield func(any, any) bool) {
		for i := range d.keys {
			if !yield(d.keys[i], d.values[i]) {
				return
			}
		}
	}
}

// String returns human-readable Python representation of the dictionary.
func (d *Dict) String() string {
	return Repr(d)
}

// ---- equal ----

// kind represents to which category a type belongs for equality and hashing.
type kind uint

const (
	kNone kind = iota
	kNumber
	kString
	kBytes
	kTuple
	kClass
	kObject
	kUnhashable
)

// kindOf returns kind of x.
func kindOf(x any) kind {
	switch x.(type) {
	case None, nil:
		return kNone
	case bool, int, int64, *big.Int, float64:
		return kNumber
	case string:
		return kString
	case Bytes:
		return kBytes
	case Tuple:
		return kTuple
	case Class:
		return kClass
	case *Object:
		return kObject
	}
	return kUnhashable
}

// number is the common form of Python numbers: either an exact integer or
// a float.
type number struct {
	i       *big.Int // !nil for integers
	f       float64
	isFloat bool
}

func asNumber(x any) number {
	switch x := x.(type) {
	case bool:
		return number{i: big.NewInt(bint(x))}
	case int:
		return number{i: big.NewInt(int64(x))}
	case int64:
		return number{i: big.NewInt(x)}
	case *big.Int:
		return number{i: x}
	case float64:
		return number{f: x, isFloat: true}
	}
	panic(fmt.Sprintf("unreachable: %T is not a number", x))
}

// integral returns the number as integer if it represents one exactly.
func (n number) integral() (*big.Int, bool) {
	if !n.isFloat {
		return n.i, true
	}
	if math.IsNaN(n.f) || math.IsInf(n.f, 0) || n.f != math.Trunc(n.f) {
		return nil, false
	}
	i, _ := big.NewFloat(n.f).Int(nil)
	return i, true
}

func eqNumber(a, b number) bool {
	if a.isFloat && b.isFloat {
		return a.f == b.f
	}
	ai, aok := a.integral()
	bi, bok := b.integral()
	if !(aok && bok) {
		return false
	}
	return ai.Cmp(bi) == 0
}

// equal implements equality matching Python semantics for hashable values.
//
// it panics if any of a or b is not hashable.
func equal(a, b any) bool {
	ka, kb := kindOf(a), kindOf(b)
	if ka == kUnhashable {
		panic(fmt.Sprintf("unhashable type: %T", a))
	}
	if kb == kUnhashable {
		panic(fmt.Sprintf("unhashable type: %T", b))
	}
	if ka != kb {
		return false
	}

	switch ka {
	case kNone:
		return true
	case kNumber:
		return eqNumber(asNumber(a), asNumber(b))
	case kString:
		return a.(string) == b.(string)
	case kBytes:
		return a.(Bytes) == b.(Bytes)
	case kClass:
		return a.(Class) == b.(Class)
	case kObject:
		return a.(*Object) == b.(*Object) // identity, like Python's default __eq__
	case kTuple:
		ta, tb := a.(Tuple), b.(Tuple)
		if len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !equal(ta[i], tb[i]) {
				return false
			}
		}
		return true
	}

	panic("unreachable")
}

// mustHashable panics with "unhashable type: ..." if x cannot be a dict key.
func mustHashable(x any) {
	switch kindOf(x) {
	case kUnhashable:
		panic(fmt.Sprintf("unhashable type: %T", x))
	case kTuple:
		for _, item := range x.(Tuple) {
			mustHashable(item)
		}
	}
}

// ---- hash ----

// hash returns hash of x consistent with equality implemented by equal.
//
// hash panics with "unhashable type: ..." if x is not hashable.
func hash(seed maphash.Seed, x any) uint64 {
	var h maphash.Hash
	h.SetSeed(seed)

	hashInt := func(i int64) uint64 {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(i))
		h.WriteByte(byte(kNumber))
		h.Write(b[:])
		return h.Sum64()
	}

	switch k := kindOf(x); k {
	case kNone:
		h.WriteByte(byte(kNone))
		return h.Sum64()

	case kNumber:
		n := asNumber(x)
		i, ok := n.integral()
		if !ok {
			if math.IsNaN(n.f) {
				return 0 // NaN != NaN anyway
			}
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(n.f))
			h.WriteByte(byte(kNumber))
			h.Write(b[:])
			return h.Sum64()
		}
		if i.IsInt64() {
			return hashInt(i.Int64())
		}
		h.WriteByte(byte(kNumber))
		h.WriteString(i.String())
		return h.Sum64()

	case kString:
		h.WriteByte(byte(kString))
		h.WriteString(x.(string))
		return h.Sum64()

	case kBytes:
		h.WriteByte(byte(kBytes))
		h.WriteString(string(x.(Bytes)))
		return h.Sum64()

	case kClass:
		c := x.(Class)
		h.WriteByte(byte(kClass))
		h.WriteString(c.Module)
		h.WriteByte(0)
		h.WriteString(c.Name)
		return h.Sum64()

	case kObject:
		return hashInt(int64(reflect.ValueOf(x).Pointer()))

	case kTuple:
		var b [8]byte
		h.WriteByte(byte(kTuple))
		for _, item := range x.(Tuple) {
			binary.LittleEndian.PutUint64(b[:], hash(seed, item))
			h.Write(b[:])
		}
		return h.Sum64()
	}

	panic(fmt.Sprintf("unhashable type: %T", x))
}

// bint converts bool to int64.
func bint(x bool) int64 {
	if x {
		return 1
	}
	return 0
}
