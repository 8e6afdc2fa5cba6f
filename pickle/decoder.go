package pickle

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"unicode/utf8"
)

// Opcodes
const (
	// Protocol 0

	opMark    byte = '(' // push special markobject on stack
	opStop    byte = '.' // every pickle ends with STOP
	opPop     byte = '0' // discard topmost stack item
	opDup     byte = '2' // duplicate top stack item
	opFloat   byte = 'F' // push float object; decimal string argument
	opInt     byte = 'I' // push integer or bool; decimal string argument
	opLong    byte = 'L' // push long; decimal string argument
	opNone    byte = 'N' // push None
	opPersid  byte = 'P' // push persistent object; id is taken from string arg
	opReduce  byte = 'R' // apply callable to argtuple, both on stack
	opString  byte = 'S' // push string; NL-terminated string argument
	opUnicode byte = 'V' // push Unicode string; raw-unicode-escaped"d argument
	opAppend  byte = 'a' // append stack top to list below it
	opBuild   byte = 'b' // call __setstate__ or __dict__.update()
	opGlobal  byte = 'c' // push self.find_class(modname, name); 2 string args
	opDict    byte = 'd' // build a dict from stack items
	opGet     byte = 'g' // push item from memo on stack; index is string arg
	opInst    byte = 'i' // build & push class instance
	opList    byte = 'l' // build list from topmost stack items
	opPut     byte = 'p' // store stack top in memo; index is string arg
	opSetitem byte = 's' // add key+value pair to dict
	opTuple   byte = 't' // build tuple from topmost stack items

	opTrue  = "I01\n" // not an opcode; see INT docs in pickletools.py
	opFalse = "I00\n" // not an opcode; see INT docs in pickletools.py

	// Protocol 1

	opPopMark        byte = '1' // discard stack top through topmost markobject
	opBinint         byte = 'J' // push four-byte signed int
	opBinint1        byte = 'K' // push 1-byte unsigned int
	opBinint2        byte = 'M' // push 2-byte unsigned int
	opBinpersid      byte = 'Q' // push persistent object; id is taken from stack
	opBinstring      byte = 'T' // push string; counted binary string argument
	opShortBinstring byte = 'U' //  "     "   ;    "      "       "      " < 256 bytes
	opBinunicode     byte = 'X' // push Unicode string; counted UTF-8 string argument
	opAppends        byte = 'e' // extend list on stack by topmost stack slice
	opBinget         byte = 'h' // push item from memo on stack; index is 1-byte arg
	opLongBinget     byte = 'j' //  "    "    "    "    "   "  ;   "    " 4-byte arg
	opEmptyList      byte = ']' // push empty list
	opEmptyTuple     byte = ')' // push empty tuple
	opEmptyDict      byte = '}' // push empty dict
	opObj            byte = 'o' // build & push class instance
	opBinput         byte = 'q' // store stack top in memo; index is 1-byte arg
	opLongBinput     byte = 'r' //   "     "    "   "   " ;   "    " 4-byte arg
	opSetitems       byte = 'u' // modify dict by adding topmost key+value pairs
	opBinfloat       byte = 'G' // push float; arg is 8-byte float encoding

	// Protocol 2

	opProto    byte = '\x80' // identify pickle protocol
	opNewobj   byte = '\x81' // build object by applying cls.__new__ to argtuple
	opExt1     byte = '\x82' // push object from extension registry; 1-byte index
	opExt2     byte = '\x83' // ditto, but 2-byte index
	opExt4     byte = '\x84' // ditto, but 4-byte index
	opTuple1   byte = '\x85' // build 1-tuple from stack top
	opTuple2   byte = '\x86' // build 2-tuple from two topmost stack items
	opTuple3   byte = '\x87' // build 3-tuple from three topmost stack items
	opNewtrue  byte = '\x88' // push True
	opNewfalse byte = '\x89' // push False
	opLong1    byte = '\x8a' // push long from < 256 bytes
	opLong4    byte = '\x8b' // push really big long

	// Protocol 3

	opBinbytes      byte = 'B' // push a Python bytes object (len ule32; [len]data)
	opShortBinbytes byte = 'C' //  "     "      "      "     (len ule8; [len]data)

	// Protocol 4

	opShortBinUnicode byte = '\x8c' // push short string; UTF-8 length < 256 bytes
	opBinunicode8     byte = '\x8d' // push Unicode string (len ule64; [len]data)
	opBinbytes8       byte = '\x8e' // push a Python bytes object (len ule64; [len]data)
	opEmptySet        byte = '\x8f' // push empty set
	opAddItems        byte = '\x90' // add items to existing set
	opFrozenSet       byte = '\x91' // build a frozenset out of mark..top
	opNewobjEx        byte = '\x92' // build object: cls argv kw -> cls.__new__(*argv, **kw)
	opStackGlobal     byte = '\x93' // same as OpGlobal but using names on the stacks
	opMemoize         byte = '\x94' // store top of the stack in memo
	opFrame           byte = '\x95' // indicate the beginning of a new frame

	// Protocol 5

	opBytearray8     byte = '\x96' // push a Python bytearray object (len ule64; [len]data)
	opNextBuffer     byte = '\x97' // push next out-of-band buffer
	opReadOnlyBuffer byte = '\x98' // turn out-of-band buffer at stack top to be read-only
)

var errNotImplemented = errors.New("unimplemented opcode")
var ErrInvalidPickleVersion = errors.New("invalid pickle version")
var errNoMarker = errors.New("no marker in stack")
var errNoMarkUse = errors.New("pickle: MARK object cannot be exposed")
var errStackUnderflow = errors.New("pickle: stack underflow")

// OpcodeError is the error that Decode returns when it sees unknown or
// unsupported pickle opcode.
type OpcodeError struct {
	Key byte
	Pos int
}

func (e OpcodeError) Error() string {
	return fmt.Sprintf("Unknown opcode %d (%c) at position %d: %q", e.Key, e.Key, e.Pos, e.Key)
}

// special marker
type mark struct{}

// None is a representation of Python's None.
type None struct{}

// Tuple is a representation of Python's tuple.
type Tuple []any

// Bytes represents Python's bytes.
type Bytes string

// List is a representation of Python's list.
//
// Lists are mutable in Python and the same list may be referenced from
// several places of one pickle via the memo. List is therefore handled by
// pointer: every reference sees items appended after it was memoized.
type List struct {
	Items []any
}

// NewList returns a list holding items.
func NewList(items ...any) *List {
	return &List{Items: items}
}

// Len returns the number of items in the list.
func (l *List) Len() int {
	return len(l.Items)
}

// Class represents a global referenced by the pickle, e.g. a Python class.
//
// Decoder never imports anything: GLOBAL and STACK_GLOBAL produce Class
// placeholders.
type Class struct {
	Module, Name string
}

// String returns the qualified module.name of the class.
func (c Class) String() string {
	return c.Module + "." + c.Name
}

// Object represents an instance created while unpickling, without ever
// running the class' code.
//
// Calling a Class (REDUCE, NEWOBJ, INST, OBJ) creates an Object that records
// the call arguments. A following BUILD records the state that would be
// passed to __setstate__. State is nil when no state was set.
//
// Persistent references are represented as Object with module "pers", name
// "obj" and the persistent id as the only argument.
type Object struct {
	Module, Name string
	Args         Tuple
	State        any
}

// TypeName returns the qualified module.name of the object's class.
func (o *Object) TypeName() string {
	return o.Module + "." + o.Name
}

// HasState tells whether BUILD has set a non-None state on the object.
func (o *Object) HasState() bool {
	switch o.State.(type) {
	case nil, None:
		return false
	}
	return true
}

// Decoder is a decoder for pickle streams.
type Decoder struct {
	r      *bufio.Reader
	config *DecoderConfig
	stack  []any
	memo   map[string]any

	// a reusable buffer that can be used by the various decoding functions
	// functions using this should call buf.Reset to clear the old contents
	buf bytes.Buffer

	// reusable buffer for readLine
	line []byte

	// protocol version seen in last PROTO opcode; 0 by default.
	protocol int
}

// DecoderConfig allows to tune Decoder.
type DecoderConfig struct {
	// CatchInvalidUTF8 makes the decoder represent unicode strings that are
	// not valid UTF-8 as Object{builtin.UnicodeDecodeError, (message,)}
	// instead of failing.
	//
	// Custom classes serialized from TorchScript are able to emit such
	// strings from their __getstate__.
	CatchInvalidUTF8 bool
}

// NewDecoder constructs a new Decoder which will decode the pickle stream in r.
func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderWithConfig(r, &DecoderConfig{})
}

// NewDecoderWithConfig is similar to NewDecoder, but allows specifying decoder configuration.
func NewDecoderWithConfig(r io.Reader, config *DecoderConfig) *Decoder {
	reader := bufio.NewReader(r)
	return &Decoder{
		r:        reader,
		config:   config,
		stack:    make([]any, 0),
		memo:     make(map[string]any),
		protocol: 0,
	}
}

// Decode decodes the pickle stream and returns the result or an error.
func (d *Decoder) Decode() (any, error) {
	insn := 0
loop:
	for {
		key, err := d.r.ReadByte()
		if err != nil {
			if err == io.EOF && insn != 0 {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}

		insn++

		switch key {
		case opMark:
			d.mark()
		case opStop:
			break loop
		case opPop:
			_, err = d.pop()
		case opPopMark:
			err = d.popMark()
		case opDup:
			err = d.dup()
		case opFloat:
			err = d.loadFloat()
		case opInt:
			err = d.loadInt()
		case opBinint:
			err = d.loadBinInt()
		case opBinint1:
			err = d.loadBinInt1()
		case opLong:
			err = d.loadLong()
		case opBinint2:
			err = d.loadBinInt2()
		case opNone:
			d.push(None{})
		case opPersid:
			err = d.loadPersid()
		case opBinpersid:
			err = d.loadBinPersid()
		case opReduce:
			err = d.reduce()
		case opString:
			err = d.loadString()
		case opBinstring:
			err = d.loadBinString()
		case opShortBinstring:
			err = d.loadShortBinString()
		case opUnicode:
			err = d.loadUnicode()
		case opBinunicode:
			err = d.loadBinUnicode()
		case opAppend:
			err = d.loadAppend()
		case opBuild:
			err = d.build()
		case opGlobal:
			err = d.global()
		case opDict:
			err = d.loadDict()
		case opEmptyDict:
			d.push(NewDict())
		case opAppends:
			err = d.loadAppends()
		case opGet:
			err = d.get()
		case opBinget:
			err = d.binGet()
		case opInst:
			err = d.inst()
		case opLong1:
			err = d.loadLong1()
		case opLong4:
			err = d.loadLong4()
		case opNewfalse:
			d.push(false)
		case opNewtrue:
			d.push(true)
		case opLongBinget:
			err = d.longBinGet()
		case opList:
			err = d.loadList()
		case opEmptyList:
			d.push(&List{Items: []any{}})
		case opObj:
			err = d.obj()
		case opPut:
			err = d.loadPut()
		case opBinput:
			err = d.binPut()
		case opLongBinput:
			err = d.longBinPut()
		case opSetitem:
			err = d.loadSetItem()
		case opTuple:
			err = d.loadTuple()
		case opTuple1:
			err = d.tupleN(1)
		case opTuple2:
			err = d.tupleN(2)
		case opTuple3:
			err = d.tupleN(3)
		case opEmptyTuple:
			d.push(Tuple{})
		case opSetitems:
			err = d.loadSetItems()
		case opBinfloat:
			err = d.binFloat()
		case opBinbytes:
			err = d.loadBinBytes()
		case opShortBinbytes:
			err = d.loadShortBinBytes()
		case opBinbytes8:
			err = d.loadBinBytes8()
		case opFrame:
			err = d.loadFrame()
		case opShortBinUnicode:
			err = d.loadShortBinUnicode()
		case opBinunicode8:
			err = d.loadBinUnicode8()
		case opNewobj:
			err = d.newObj()
		case opNewobjEx:
			err = d.newObjEx()
		case opStackGlobal:
			err = d.stackGlobal()
		case opMemoize:
			err = d.loadMemoize()
		case opBytearray8:
			err = d.loadBytearray8()
		case opProto:
			var v byte
			v, err = d.r.ReadByte()
			if err == nil && !(0 <= v && v <= 5) {
				// PROTO documentation says the version must be in [2, 256),
				// but CPython loads PROTO 0 and 1 without complaints too.
				err = ErrInvalidPickleVersion
			}
			if err == nil {
				d.protocol = int(v)
			}

		default:
			// EXT*, sets and out-of-band buffers are not supported.
			return nil, OpcodeError{key, insn}
		}

		if err != nil {
			if err == errNotImplemented {
				return nil, OpcodeError{key, insn}
			}
			// EOF from individual opcode decoder is unexpected end of stream
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}

	return d.popUser()
}

// readLine reads next line from pickle stream.
//
// returned line does not contain \n.
// returned line is valid only till next call to readLine.
func (d *Decoder) readLine() ([]byte, error) {
	var (
		data []byte
		err  error
	)
	d.line = d.line[:0]
	for {
		data, err = d.r.ReadSlice('\n')
		d.line = append(d.line, data...)

		// either have read till \n or got another error
		if err != bufio.ErrBufferFull {
			break
		}
	}

	// trim trailing \n
	if l := len(d.line); l > 0 && d.line[l-1] == '\n' {
		d.line = d.line[:l-1]
	}

	return d.line, err
}

// userOK tells whether it is ok to return all objects to user.
//
// for example it is not ok to return the mark object.
func userOK(objv ...any) error {
	for _, obj := range objv {
		switch obj.(type) {
		case mark:
			return errNoMarkUse
		}
	}

	return nil
}

// Push a marker
func (d *Decoder) mark() {
	d.push(mark{})
}

// Return the position of the topmost marker
func (d *Decoder) marker() (int, error) {
	m := mark{}
	for k := len(d.stack) - 1; k >= 0; k-- {
		if d.stack[k] == m {
			return k, nil
		}
	}
	return 0, errNoMarker
}

// markItems returns items above the topmost marker and drops them together
// with the marker from the stack.
func (d *Decoder) markItems() ([]any, error) {
	k, err := d.marker()
	if err != nil {
		return nil, err
	}
	items := append([]any{}, d.stack[k+1:]...)
	if err := userOK(items...); err != nil {
		return nil, err
	}
	d.stack = d.stack[:k]
	return items, nil
}

// Append a new value
func (d *Decoder) push(v any) {
	d.stack = append(d.stack, v)
}

// Pop a value
// The returned error is errStackUnderflow if decoder stack is empty
func (d *Decoder) pop() (any, error) {
	ln := len(d.stack) - 1
	if ln < 0 {
		return nil, errStackUnderflow
	}
	v := d.stack[ln]
	d.stack = d.stack[:ln]
	return v, nil
}

// Pop a value (when you know for sure decoder stack is not empty)
func (d *Decoder) xpop() any {
	v, err := d.pop()
	if err != nil {
		panic(err)
	}
	return v
}

// popUser pops stack value and checks whether it is ok to return to user.
func (d *Decoder) popUser() (any, error) {
	v, err := d.pop()
	if err != nil {
		return nil, err
	}
	if err := userOK(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Discard the stack through to the topmost marker
func (d *Decoder) popMark() error {
	k, err := d.marker()
	if err != nil {
		return err
	}
	d.stack = d.stack[:k]
	return nil
}

// Duplicate the top stack item
func (d *Decoder) dup() error {
	if len(d.stack) < 1 {
		return errStackUnderflow
	}
	d.stack = append(d.stack, d.stack[len(d.stack)-1])
	return nil
}

// Push a float
func (d *Decoder) loadFloat() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(string(line), 64)
	if err != nil {
		return err
	}
	d.push(v)
	return nil
}

// Push an int
func (d *Decoder) loadInt() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}

	switch string(line) {
	case opFalse[1:3]:
		d.push(false)
		return nil
	case opTrue[1:3]:
		d.push(true)
		return nil
	}

	i, err := strconv.ParseInt(string(line), 10, 64)
	if err == nil {
		d.push(i)
		return nil
	}
	// Python ints are unbounded: INT may carry a value outside int64.
	v, ok := new(big.Int).SetString(string(line), 10)
	if !ok {
		return fmt.Errorf("pickle: loadInt: invalid literal %q", line)
	}
	d.push(v)
	return nil
}

// Push a four-byte signed int
func (d *Decoder) loadBinInt() error {
	var b [4]byte
	_, err := io.ReadFull(d.r, b[:])
	if err != nil {
		return err
	}
	v := binary.LittleEndian.Uint32(b[:])
	d.push(int64(int32(v))) // NOTE signed: uint32 -> int32, and only then -> int64
	return nil
}

// Push a 1-byte unsigned int
func (d *Decoder) loadBinInt1() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	d.push(int64(b))
	return nil
}

// Push a 2-byte unsigned int
func (d *Decoder) loadBinInt2() error {
	var b [2]byte
	_, err := io.ReadFull(d.r, b[:])
	if err != nil {
		return err
	}
	v := binary.LittleEndian.Uint16(b[:])
	d.push(int64(v))
	return nil
}

// pushInt pushes v as int64 when it fits, or as *big.Int otherwise.
func (d *Decoder) pushInt(v *big.Int) {
	if v.IsInt64() {
		d.push(v.Int64())
		return
	}
	d.push(v)
}

// Push a long
func (d *Decoder) loadLong() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	// the trailing L is optional since Python 3
	if l := len(line); l > 0 && line[l-1] == 'L' {
		line = line[:l-1]
	}
	v, ok := new(big.Int).SetString(string(line), 10)
	if !ok {
		return fmt.Errorf("pickle: loadLong: invalid string")
	}
	d.pushInt(v)
	return nil
}

// Push a long1
func (d *Decoder) loadLong1() error {
	n, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	err = d.bufLoadBytesData(uint64(n))
	if err != nil {
		return err
	}
	d.pushInt(decodeLong(d.buf.Bytes()))
	return nil
}

// Push a long4
func (d *Decoder) loadLong4() error {
	var b [4]byte
	_, err := io.ReadFull(d.r, b[:])
	if err != nil {
		return err
	}
	n := int32(binary.LittleEndian.Uint32(b[:]))
	if n < 0 {
		return fmt.Errorf("pickle: loadLong4: negative byte count")
	}
	err = d.bufLoadBytesData(uint64(n))
	if err != nil {
		return err
	}
	d.pushInt(decodeLong(d.buf.Bytes()))
	return nil
}

// Push a persistent object id
func (d *Decoder) loadPersid() error {
	pid, err := d.readLine()
	if err != nil {
		return err
	}

	d.push(persistentRef(string(pid)))
	return nil
}

// Push a persistent object id from items on the stack
func (d *Decoder) loadBinPersid() error {
	pid, err := d.popUser()
	if err != nil {
		return err
	}
	d.push(persistentRef(pid))
	return nil
}

// persistentRef represents a persistent reference without resolving it.
func persistentRef(pid any) *Object {
	return &Object{Module: "pers", Name: "obj", Args: Tuple{pid}}
}

// call creates the Object that calling callable with args would produce.
func call(op string, callable any, args Tuple) (*Object, error) {
	class, ok := callable.(Class)
	if !ok {
		return nil, fmt.Errorf("pickle: %s: invalid class: %T", op, callable)
	}
	return &Object{Module: class.Module, Name: class.Name, Args: args}, nil
}

func (d *Decoder) reduce() error {
	if len(d.stack) < 2 {
		return errStackUnderflow
	}
	xargs := d.xpop()
	xclass := d.xpop()
	args, ok := xargs.(Tuple)
	if !ok {
		return fmt.Errorf("pickle: reduce: invalid args: %T", xargs)
	}
	obj, err := call("reduce", xclass, args)
	if err != nil {
		return err
	}
	d.push(obj)
	return nil
}

// newObj handles NEWOBJ: cls.__new__(cls, *args).
func (d *Decoder) newObj() error {
	if len(d.stack) < 2 {
		return errStackUnderflow
	}
	xargs := d.xpop()
	xclass := d.xpop()
	args, ok := xargs.(Tuple)
	if !ok {
		return fmt.Errorf("pickle: newobj: invalid args: %T", xargs)
	}
	obj, err := call("newobj", xclass, args)
	if err != nil {
		return err
	}
	d.push(obj)
	return nil
}

// newObjEx handles NEWOBJ_EX: cls.__new__(cls, *args, **kwargs).
//
// Objects are represented by positional arguments only, so kwargs must be empty.
func (d *Decoder) newObjEx() error {
	if len(d.stack) < 3 {
		return errStackUnderflow
	}
	xkwargs := d.xpop()
	xargs := d.xpop()
	xclass := d.xpop()
	kwargs, ok := xkwargs.(*Dict)
	if !ok {
		return fmt.Errorf("pickle: newobj_ex: invalid kwargs: %T", xkwargs)
	}
	if kwargs.Len() != 0 {
		return fmt.Errorf("pickle: newobj_ex: keyword arguments are not supported")
	}
	args, ok := xargs.(Tuple)
	if !ok {
		return fmt.Errorf("pickle: newobj_ex: invalid args: %T", xargs)
	}
	obj, err := call("newobj_ex", xclass, args)
	if err != nil {
		return err
	}
	d.push(obj)
	return nil
}

// inst handles INST: module and name come from the stream, args from mark.
func (d *Decoder) inst() error {
	module, err := d.readLine()
	if err != nil {
		return err
	}
	smodule := string(module)
	name, err := d.readLine()
	if err != nil {
		return err
	}
	items, err := d.markItems()
	if err != nil {
		return err
	}
	d.push(&Object{Module: smodule, Name: string(name), Args: Tuple(items)})
	return nil
}

// obj handles OBJ: class and args are taken from mark.
func (d *Decoder) obj() error {
	items, err := d.markItems()
	if err != nil {
		return err
	}
	if len(items) < 1 {
		return errStackUnderflow
	}
	obj, err := call("obj", items[0], Tuple(items[1:]))
	if err != nil {
		return err
	}
	d.push(obj)
	return nil
}

// build handles BUILD: the state is recorded on the object below it.
func (d *Decoder) build() error {
	if len(d.stack) < 2 {
		return errStackUnderflow
	}
	state := d.xpop()
	if err := userOK(state); err != nil {
		return err
	}
	obj, ok := d.stack[len(d.stack)-1].(*Object)
	if !ok {
		return fmt.Errorf("pickle: build: cannot set state on %T", d.stack[len(d.stack)-1])
	}
	obj.State = state
	return nil
}

// Push a string
func (d *Decoder) loadString() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}

	if len(line) < 2 {
		return io.ErrUnexpectedEOF
	}

	var delim byte
	switch line[0] {
	case '\'':
		delim = '\''
	case '"':
		delim = '"'
	default:
		return fmt.Errorf("invalid string delimiter: %c", line[0])
	}

	if line[len(line)-1] != delim {
		return io.ErrUnexpectedEOF
	}

	s, err := pydecodeStringEscape(string(line[1 : len(line)-1]))
	if err != nil {
		return err
	}

	d.push(s)
	return nil
}

// bufLoadBinData4 decodes `len(LE32) [len]data` into d.buf .
func (d *Decoder) bufLoadBinData4() error {
	var b [4]byte
	_, err := io.ReadFull(d.r, b[:])
	if err != nil {
		return err
	}
	v := binary.LittleEndian.Uint32(b[:])
	return d.bufLoadBytesData(uint64(v))
}

// bufLoadBinData8 decodes `len(LE64) [len]data` into d.buf .
func (d *Decoder) bufLoadBinData8() error {
	var b [8]byte
	_, err := io.ReadFull(d.r, b[:])
	if err != nil {
		return err
	}
	v := binary.LittleEndian.Uint64(b[:])
	return d.bufLoadBytesData(v)
}

// bufLoadBytesData fetches [l]data into d.buf.
func (d *Decoder) bufLoadBytesData(l uint64) error {
	d.buf.Reset()
	// don't allow malicious `BINSTRING <bigsize> nodata` to make us out of memory
	prealloc := l
	if maxgrow := uint64(0x10000); prealloc > maxgrow {
		prealloc = maxgrow
	}
	d.buf.Grow(int(prealloc))
	if l > math.MaxInt64 {
		return fmt.Errorf("size([]data) > maxint64")
	}
	_, err := io.CopyN(&d.buf, d.r, int64(l))
	if err != nil {
		return err
	}
	return nil
}

// bufLoadShortBinBytes decodes `len(U8) [len]data` into d.buf .
func (d *Decoder) bufLoadShortBinBytes() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	return d.bufLoadBytesData(uint64(b))
}

func (d *Decoder) loadBinString() error {
	err := d.bufLoadBinData4()
	if err != nil {
		return err
	}
	d.push(d.buf.String())
	return nil
}

func (d *Decoder) loadShortBinString() error {
	err := d.bufLoadShortBinBytes()
	if err != nil {
		return err
	}
	d.push(d.buf.String())
	return nil
}

func (d *Decoder) loadBinBytes() error {
	err := d.bufLoadBinData4()
	if err != nil {
		return err
	}
	d.push(Bytes(d.buf.Bytes()))
	return nil
}

func (d *Decoder) loadShortBinBytes() error {
	err := d.bufLoadShortBinBytes()
	if err != nil {
		return err
	}
	d.push(Bytes(d.buf.Bytes()))
	return nil
}

func (d *Decoder) loadBinBytes8() error {
	err := d.bufLoadBinData8()
	if err != nil {
		return err
	}
	d.push(Bytes(d.buf.Bytes()))
	return nil
}

func (d *Decoder) loadBytearray8() error {
	err := d.bufLoadBinData8()
	if err != nil {
		return err
	}
	d.push(d.buf.Bytes())
	d.buf = bytes.Buffer{} // fully reset .buf to unalias just pushed []byte
	return nil
}

func (d *Decoder) loadUnicode() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}

	text, err := pydecodeRawUnicodeEscape(string(line))
	if err != nil {
		return err
	}

	d.push(text)
	return nil
}

// pushUnicode pushes UTF-8 data from d.buf as string.
func (d *Decoder) pushUnicode() error {
	data := d.buf.Bytes()
	if !utf8.Valid(data) {
		pos := invalidUTF8Pos(data)
		msg := fmt.Sprintf("'utf-8' codec can't decode byte 0x%02x in position %d", data[pos], pos)
		if !d.config.CatchInvalidUTF8 {
			return fmt.Errorf("pickle: %s", msg)
		}
		d.push(&Object{Module: "builtin", Name: "UnicodeDecodeError", Args: Tuple{msg}})
		return nil
	}
	d.push(string(data))
	return nil
}

func (d *Decoder) loadBinUnicode() error {
	err := d.bufLoadBinData4()
	if err != nil {
		return err
	}
	return d.pushUnicode()
}

func (d *Decoder) loadShortBinUnicode() error {
	err := d.bufLoadShortBinBytes()
	if err != nil {
		return err
	}
	return d.pushUnicode()
}

func (d *Decoder) loadBinUnicode8() error {
	err := d.bufLoadBinData8()
	if err != nil {
		return err
	}
	return d.pushUnicode()
}

func (d *Decoder) loadAppend() error {
	if len(d.stack) < 2 {
		return errStackUnderflow
	}
	v := d.xpop()
	if err := userOK(v); err != nil {
		return err
	}
	switch l := d.stack[len(d.stack)-1].(type) {
	case *List:
		l.Items = append(l.Items, v)
	default:
		return fmt.Errorf("pickle: loadAppend: expected a list, got %T", l)
	}
	return nil
}

func (d *Decoder) loadAppends() error {
	k, err := d.marker()
	if err != nil {
		return err
	}
	if k < 1 {
		return errStackUnderflow
	}

	switch l := d.stack[k-1].(type) {
	case *List:
		items := d.stack[k+1:]
		if err := userOK(items...); err != nil {
			return err
		}
		l.Items = append(l.Items, items...)
		d.stack = d.stack[:k]
	default:
		return fmt.Errorf("pickle: loadAppends: expected a list, got %T", l)
	}
	return nil
}

func (d *Decoder) global() error {
	module, err := d.readLine()
	if err != nil {
		return err
	}
	smodule := string(module)
	name, err := d.readLine()
	if err != nil {
		return err
	}
	sname := string(name)
	d.push(Class{Module: smodule, Name: sname})
	return nil
}

func (d *Decoder) stackGlobal() error {
	if len(d.stack) < 2 {
		return errStackUnderflow
	}
	xname := d.xpop()
	xmodule := d.xpop()

	name, ok := xname.(string)
	if !ok {
		return fmt.Errorf("pickle: stackGlobal: invalid name: %T", xname)
	}
	module, ok := xmodule.(string)
	if !ok {
		return fmt.Errorf("pickle: stackGlobal: invalid module: %T", xmodule)
	}

	d.push(Class{Module: module, Name: name})
	return nil
}

// dictTryAssign tries to do `d[key] = value`.
//
// It checks whether key is of appropriate type, and if yes - succeeds.
// If key is not appropriate - the dict stays unchanged and false is returned.
func dictTryAssign(d *Dict, key, value any) (ok bool) {
	// Dict.Set panics on unhashable keys, e.g. `unhashable type: *List`.
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	d.Set(key, value)
	ok = true
	return
}

func (d *Decoder) loadDict() error {
	k, err := d.marker()
	if err != nil {
		return err
	}

	items := d.stack[k+1:]
	if len(items)%2 != 0 {
		return fmt.Errorf("pickle: loadDict: odd # of elements")
	}
	if err := userOK(items...); err != nil {
		return err
	}
	m := NewDictWithSizeHint(len(items) / 2)
	for i := 0; i < len(items); i += 2 {
		key := items[i]
		if !dictTryAssign(m, key, items[i+1]) {
			return fmt.Errorf("pickle: loadDict: invalid key type %T", key)
		}
	}
	d.stack = append(d.stack[:k], m)
	return nil
}

func (d *Decoder) loadSetItem() error {
	if len(d.stack) < 3 {
		return errStackUnderflow
	}
	v := d.xpop()
	k := d.xpop()
	if err := userOK(k, v); err != nil {
		return err
	}
	switch m := d.stack[len(d.stack)-1].(type) {
	case *Dict:
		if !dictTryAssign(m, k, v) {
			return fmt.Errorf("pickle: loadSetItem: invalid key type %T", k)
		}
	default:
		return fmt.Errorf("pickle: loadSetItem: expected a dict, got %T", m)
	}
	return nil
}

func (d *Decoder) loadSetItems() error {
	k, err := d.marker()
	if err != nil {
		return err
	}
	if k < 1 {
		return errStackUnderflow
	}

	switch m := d.stack[k-1].(type) {
	case *Dict:
		items := d.stack[k+1:]
		if len(items)%2 != 0 {
			return fmt.Errorf("pickle: loadSetItems: odd # of elements")
		}
		if err := userOK(items...); err != nil {
			return err
		}
		for i := 0; i < len(items); i += 2 {
			key := items[i]
			if !dictTryAssign(m, key, items[i+1]) {
				return fmt.Errorf("pickle: loadSetItems: invalid key type %T", key)
			}
		}
		d.stack = d.stack[:k]
	default:
		return fmt.Errorf("pickle: loadSetItems: expected a dict, got %T", m)
	}
	return nil
}

func (d *Decoder) get() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	return d.memoGet(string(line))
}

func (d *Decoder) binGet() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	return d.memoGet(strconv.Itoa(int(b)))
}

func (d *Decoder) longBinGet() error {
	var b [4]byte
	_, err := io.ReadFull(d.r, b[:])
	if err != nil {
		return err
	}
	v := binary.LittleEndian.Uint32(b[:])
	return d.memoGet(strconv.FormatUint(uint64(v), 10))
}

// memoGet pushes memo[key] on the stack.
func (d *Decoder) memoGet(key string) error {
	v, ok := d.memo[key]
	if !ok {
		return fmt.Errorf("pickle: memo: key error %q", key)
	}
	d.push(v)
	return nil
}

func (d *Decoder) loadList() error {
	items, err := d.markItems()
	if err != nil {
		return err
	}
	d.push(&List{Items: items})
	return nil
}

func (d *Decoder) loadTuple() error {
	items, err := d.markItems()
	if err != nil {
		return err
	}
	d.push(Tuple(items))
	return nil
}

// tupleN(n) creates tuple from top n stack objects.
// it serves TUPLE{1,2,3} opcode handlers.
func (d *Decoder) tupleN(n int) error {
	if len(d.stack) < n {
		return errStackUnderflow
	}
	k := len(d.stack) - n
	if err := userOK(d.stack[k:]...); err != nil {
		return err
	}
	v := append(Tuple{}, d.stack[k:]...)
	d.stack = append(d.stack[:k], v)
	return nil
}

// memoTop puts top of the stack into memo[key]; the stack is not changed.
// it is the worker for handling PUT, BINPUT, ... opcodes
func (d *Decoder) memoTop(key string) error {
	if len(d.stack) < 1 {
		return errStackUnderflow
	}

	obj := d.stack[len(d.stack)-1]
	if err := userOK(obj); err != nil {
		return err
	}

	d.memo[key] = obj
	return nil
}

func (d *Decoder) loadPut() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	return d.memoTop(string(line))
}

func (d *Decoder) binPut() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	return d.memoTop(strconv.Itoa(int(b)))
}

func (d *Decoder) longBinPut() error {
	var b [4]byte
	_, err := io.ReadFull(d.r, b[:])
	if err != nil {
		return err
	}
	v := binary.LittleEndian.Uint32(b[:])
	return d.memoTop(strconv.FormatUint(uint64(v), 10))
}

func (d *Decoder) loadMemoize() error {
	return d.memoTop(strconv.Itoa(len(d.memo)))
}

func (d *Decoder) binFloat() error {
	var b [8]byte
	_, err := io.ReadFull(d.r, b[:])
	if err != nil {
		return err
	}
	u := binary.BigEndian.Uint64(b[:])
	d.push(math.Float64frombits(u))
	return nil
}

// loadFrame discards the framing opcode+information, this information is useful to do one large read (instead of many small reads)
// https://www.python.org/dev/peps/pep-3154/#framing
func (d *Decoder) loadFrame() error {
	var b [8]byte
	_, err := io.ReadFull(d.r, b[:])
	if err != nil {
		return err
	}
	return nil
}

// decodeLong decodes little-endian two's complement data into a big integer.
func decodeLong(data []byte) *big.Int {
	v := new(big.Int)
	n := len(data)
	if n == 0 {
		return v
	}
	be := make([]byte, n)
	for i, b := range data {
		be[n-1-i] = b
	}
	v.SetBytes(be)
	if data[n-1]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(8*n)))
	}
	return v
}

// invalidUTF8Pos returns position of the first byte that starts an invalid
// UTF-8 sequence in data.
func invalidUTF8Pos(data []byte) int {
	for i := 0; i < len(data); {
		r, width := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && width <= 1 {
			return i
		}
		i += width
	}
	return 0
}
