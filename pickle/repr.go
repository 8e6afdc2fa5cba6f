package pickle

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// Repr returns Python's repr() of an unpickled value.
//
// Objects are shown as module.name(args) with (state=...) appended when the
// object has state; classes as module.name. Recursive containers are shown
// as [...] and {...}.
func Repr(v any) string {
	r := reprer{active: make(map[any]bool)}
	var b strings.Builder
	r.repr(&b, v)
	return b.String()
}

// reprer renders values as Python repr.
//
// In safe mode it behaves like pprint's safe repr: dict items are sorted by
// key and recursion is reported with a <Recursion on ...> marker.
type reprer struct {
	safe   bool
	active map[any]bool
}

// safeRepr returns pprint-style repr of v.
func safeRepr(v any) string {
	r := reprer{safe: true, active: make(map[any]bool)}
	var b strings.Builder
	r.repr(&b, v)
	return b.String()
}

// identity returns the pointer identifying mutable value v, or nil for
// values that cannot take part in a cycle.
func identity(v any) any {
	switch v := v.(type) {
	case *List:
		return v
	case *Dict:
		return v
	case *Object:
		return v
	}
	return nil
}

func (r *reprer) repr(b *strings.Builder, v any) {
	if id := identity(v); id != nil {
		if r.active[id] {
			b.WriteString(r.recursion(v))
			return
		}
		r.active[id] = true
		defer delete(r.active, id)
	}

	switch v := v.(type) {
	case nil, None:
		b.WriteString("None")
	case bool:
		if v {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case int:
		b.WriteString(strconv.Itoa(v))
	case int64:
		b.WriteString(strconv.FormatInt(v, 10))
	case *big.Int:
		b.WriteString(v.String())
	case float64:
		b.WriteString(pyFloatRepr(v))
	case string:
		b.WriteString(pyquote(v))
	case Bytes:
		b.WriteString(pyquoteBytes(string(v)))
	case []byte:
		b.WriteString("bytearray(")
		b.WriteString(pyquoteBytes(string(v)))
		b.WriteString(")")
	case Tuple:
		b.WriteString("(")
		r.items(b, v)
		if len(v) == 1 {
			b.WriteString(",")
		}
		b.WriteString(")")
	case *List:
		b.WriteString("[")
		r.items(b, v.Items)
		b.WriteString("]")
	case *Dict:
		keys, values := v.keys, v.values
		if r.safe {
			keys, values = sortedItems(v)
		}
		b.WriteString("{")
		for i := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			r.repr(b, keys[i])
			b.WriteString(": ")
			r.repr(b, values[i])
		}
		b.WriteString("}")
	case Class:
		b.WriteString(v.String())
	case *Object:
		// objects render themselves with plain repr even inside pprint
		plain := reprer{active: r.active}
		b.WriteString(v.TypeName())
		plain.repr(b, v.Args)
		if v.HasState() {
			b.WriteString("(state=")
			plain.repr(b, v.State)
			b.WriteString(")")
		}
	default:
		fmt.Fprintf(b, "%v", v)
	}
}

func (r *reprer) items(b *strings.Builder, items []any) {
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		r.repr(b, item)
	}
}

func (r *reprer) recursion(v any) string {
	if !r.safe {
		switch v.(type) {
		case *List:
			return "[...]"
		case *Dict:
			return "{...}"
		}
		return "..."
	}
	return fmt.Sprintf("<Recursion on %s>", TypeName(v))
}

// pyFloatRepr formats f the way Python's repr(float) does.
//
// It uses the shortest representation that round-trips, switching to
// exponent notation when the decimal point position is outside (-4, 16].
func pyFloatRepr(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	e := strconv.FormatFloat(f, 'e', -1, 64)
	exp, err := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	if err != nil {
		return e
	}
	decpt := exp + 1
	if decpt <= -4 || decpt > 16 {
		return e
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// TypeName returns name of the Python type decoded value v represents.
func TypeName(v any) string {
	switch v.(type) {
	case nil, None:
		return "NoneType"
	case bool:
		return "bool"
	case int, int64, *big.Int:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case Bytes:
		return "bytes"
	case []byte:
		return "bytearray"
	case Tuple:
		return "tuple"
	case *List:
		return "list"
	case *Dict:
		return "dict"
	case Class:
		return "FakeClass"
	case *Object:
		return "FakeObject"
	}
	return fmt.Sprintf("%T", v)
}

// sortedItems returns dict items ordered the way pprint orders them.
//
// Keys that cannot be compared in Python are ordered by their type name,
// keeping insertion order among equal type names.
func sortedItems(d *Dict) (keys, values []any) {
	idx := make([]int, d.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return safeKeyLess(d.keys[idx[i]], d.keys[idx[j]])
	})
	keys = make([]any, len(idx))
	values = make([]any, len(idx))
	for i, k := range idx {
		keys[i] = d.keys[k]
		values[i] = d.values[k]
	}
	return keys, values
}

// safeKeyLess reports whether a orders before b.
func safeKeyLess(a, b any) bool {
	if c, ok := pyCompare(a, b); ok {
		return c < 0
	}
	return "<class '"+TypeName(a)+"'>" < "<class '"+TypeName(b)+"'>"
}

// pyCompare compares a and b the way Python's < does.
// ok is false when Python would raise TypeError.
func pyCompare(a, b any) (c int, ok bool) {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		return 0, false
	}
	switch ka {
	case kNumber:
		na, nb := asNumber(a), asNumber(b)
		return numberFloat(na).Cmp(numberFloat(nb)), !(na.isFloat && math.IsNaN(na.f) || nb.isFloat && math.IsNaN(nb.f))
	case kString:
		return strings.Compare(a.(string), b.(string)), true
	case kBytes:
		return strings.Compare(string(a.(Bytes)), string(b.(Bytes))), true
	case kTuple:
		ta, tb := a.(Tuple), b.(Tuple)
		for i := 0; i < len(ta) && i < len(tb); i++ {
			if kindOf(ta[i]) != kUnhashable && kindOf(tb[i]) != kUnhashable && equal(ta[i], tb[i]) {
				continue
			}
			return pyCompare(ta[i], tb[i])
		}
		return len(ta) - len(tb), true
	}
	return 0, false
}

func numberFloat(n number) *big.Float {
	if n.isFloat {
		if math.IsNaN(n.f) {
			return new(big.Float)
		}
		return big.NewFloat(n.f)
	}
	return new(big.Float).SetInt(n.i)
}
