// Package pickletest builds pickle streams and model archives for tests.
package pickletest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// Tuple is encoded as Python tuple.
type Tuple []any

// List is encoded as Python list. []any is encoded as list too.
type List []any

// Bytes is encoded as Python bytes.
type Bytes string

// Dict is encoded as Python dict with items in the given order.
//
// It is a list of key₁, value₁, key₂, value₂, ...
type Dict []any

// Global is encoded as a reference to module.name.
type Global struct {
	Module, Name string
}

// Call is encoded as calling Module.Name with Args, followed by BUILD with
// State when State is not nil.
type Call struct {
	Module, Name string
	Args         Tuple
	State        any
}

// Persistent is encoded as a persistent reference with the given id.
type Persistent struct {
	ID any
}

// Raw is copied to the stream as is.
type Raw string

// Encoder encodes Go values into a pickle stream.
//
// Values are written with binary opcodes of protocol 2 and 4.
type Encoder struct {
	buf  bytes.Buffer
	memo int
}

// NewEncoder returns an Encoder that starts the stream with PROTO protocol.
func NewEncoder(protocol int) *Encoder {
	e := &Encoder{}
	e.buf.Write([]byte{0x80, byte(protocol)})
	return e
}

// Dumps returns pickle of v at protocol 2.
func Dumps(v any) []byte {
	e := NewEncoder(2)
	e.Encode(v)
	return e.Stop()
}

// Stop finishes the stream and returns it.
func (e *Encoder) Stop() []byte {
	e.buf.WriteByte('.')
	return e.buf.Bytes()
}

// Op writes raw opcode data.
func (e *Encoder) Op(data ...byte) *Encoder {
	e.buf.Write(data)
	return e
}

// Memoize stores the stack top in memo and returns its index.
func (e *Encoder) Memoize() int {
	idx := e.memo
	e.memo++
	e.Op('q', byte(idx))
	return idx
}

// Get pushes memo[idx].
func (e *Encoder) Get(idx int) *Encoder {
	return e.Op('h', byte(idx))
}

// Encode writes v to the stream.
func (e *Encoder) Encode(v any) *Encoder {
	switch v := v.(type) {
	case nil:
		e.Op('N')
	case bool:
		if v {
			e.Op(0x88)
		} else {
			e.Op(0x89)
		}
	case int:
		e.encodeInt(int64(v))
	case int64:
		e.encodeInt(v)
	case *big.Int:
		e.encodeLong(v)
	case float64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
		e.Op('G').Op(b[:]...)
	case string:
		e.encodeUnicode(v)
	case Bytes:
		e.encodeBytes(string(v))
	case Raw:
		e.buf.WriteString(string(v))
	case []any:
		e.encodeList(v)
	case List:
		e.encodeList(v)
	case Tuple:
		e.encodeTuple(v)
	case Dict:
		if len(v)%2 != 0 {
			panic("pickletest: odd number of dict items")
		}
		e.Op('}')
		if len(v) > 0 {
			e.Op('(')
			for _, x := range v {
				e.Encode(x)
			}
			e.Op('u')
		}
	case Global:
		e.encodeGlobal(v.Module, v.Name)
	case Call:
		e.encodeGlobal(v.Module, v.Name)
		e.encodeTuple(v.Args)
		e.Op('R')
		if v.State != nil {
			e.Encode(v.State)
			e.Op('b')
		}
	case Persistent:
		e.Encode(v.ID)
		e.Op('Q')
	default:
		panic(fmt.Sprintf("pickletest: cannot encode %T", v))
	}
	return e
}

func (e *Encoder) encodeInt(i int64) {
	switch {
	case i >= 0 && i <= math.MaxUint8:
		e.Op('K', byte(i))
	case i >= 0 && i <= math.MaxUint16:
		e.Op('M', byte(i), byte(i>>8))
	case i >= math.MinInt32 && i <= math.MaxInt32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(i)))
		e.Op('J').Op(b[:]...)
	default:
		e.encodeLong(big.NewInt(i))
	}
}

// encodeLong writes LONG with a decimal argument.
func (e *Encoder) encodeLong(i *big.Int) {
	e.buf.WriteString("L" + i.String() + "L\n")
}

func (e *Encoder) encodeUnicode(s string) {
	if len(s) < 256 {
		e.Op(0x8c, byte(len(s)))
	} else {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(len(s)))
		e.Op('X').Op(b[:]...)
	}
	e.buf.WriteString(s)
}

func (e *Encoder) encodeBytes(s string) {
	if len(s) < 256 {
		e.Op('C', byte(len(s)))
	} else {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(len(s)))
		e.Op('B').Op(b[:]...)
	}
	e.buf.WriteString(s)
}

func (e *Encoder) encodeList(items []any) {
	e.Op(']')
	if len(items) == 0 {
		return
	}
	e.Op('(')
	for _, item := range items {
		e.Encode(item)
	}
	e.Op('e')
}

func (e *Encoder) encodeTuple(items Tuple) {
	switch len(items) {
	case 0:
		e.Op(')')
		return
	case 1, 2, 3:
		for _, item := range items {
			e.Encode(item)
		}
		e.Op(0x84 + byte(len(items)))
		return
	}
	e.Op('(')
	for _, item := range items {
		e.Encode(item)
	}
	e.Op('t')
}

func (e *Encoder) encodeGlobal(module, name string) {
	e.buf.WriteString("c" + module + "\n" + name + "\n")
}

// Long returns protocol 0 LONG opcode for the decimal s.
func Long(s string) Raw {
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		if _, ok := new(big.Int).SetString(s, 10); !ok {
			panic("pickletest: invalid long " + s)
		}
	}
	return Raw("L" + s + "L\n")
}
