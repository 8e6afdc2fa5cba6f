package modeldump

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"

	"github.com/kisielk/modeldump/pickle"
)

// Names of the fake objects Normalize understands.
const (
	modulePrefix       = "__torch__."
	rebuildTensorV2    = "torch._utils._rebuild_tensor_v2"
	restoreTypeTag     = "torch.jit._pickle.restore_type_tag"
	persistentModule   = "pers"
	persistentName     = "obj"
	storageTag         = "storage"
	storageClassModule = "torch"
	storageClassSuffix = "Storage"
)

var buildListRe = regexp.MustCompile(`^torch\.jit\._pickle\.build_[a-z]+list$`)

// TupleNode is the JSON form of a Python tuple.
type TupleNode struct {
	Values []any `json:"__tuple_values__"`
}

// DictNode is the JSON form of a Python dict. Keys[i] is the key of Values[i].
type DictNode struct {
	IsDict bool  `json:"__is_dict__"`
	Keys   []any `json:"keys"`
	Values []any `json:"values"`
}

// ModuleNode is the JSON form of a scripted module or class instance.
type ModuleNode struct {
	Type  string `json:"__module_type__"`
	State any    `json:"state"`
}

// TensorNode is the JSON form of a tensor.
//
// It is encoded as {"__tensor_v2__": [storage, offset, size, stride, requires_grad]}
// where storage is [storageType, key, location, numel].
type TensorNode struct {
	Storage      []any
	Offset       any
	Size         any
	Stride       any
	RequiresGrad any
}

func (t TensorNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		V2 []any `json:"__tensor_v2__"`
	}{
		V2: []any{t.Storage, t.Offset, t.Size, t.Stride, t.RequiresGrad},
	})
}

// Normalize converts a decoded pickle into a tree of JSON-representable
// values.
//
// Lists become []any, tuples TupleNode and dicts DictNode. Fake objects of
// scripted modules, tensors, type-tagged values and typed lists get their
// own forms; any other object is a *ShapeError. Integers that do not fit
// int64 become json.Number, non-finite floats the strings "NaN",
// "Infinity" and "-Infinity".
//
// v is not modified.
func Normalize(v any) (any, error) {
	n := normalizer{active: make(map[any]bool)}
	return n.normalize(v, "$")
}

// normalizer keeps containers on the current path to detect cycles.
type normalizer struct {
	active map[any]bool
}

func (n *normalizer) enter(v any, path string) error {
	if n.active[v] {
		return fmt.Errorf("%w at %s", ErrCycle, path)
	}
	n.active[v] = true
	return nil
}

func (n *normalizer) normalize(v any, path string) (any, error) {
	switch v := v.(type) {
	case nil, pickle.None:
		return nil, nil
	case bool, int64, string:
		return v, nil
	case int:
		return int64(v), nil
	case *big.Int:
		return json.Number(v.String()), nil
	case float64:
		return normalizeFloat(v), nil

	case *pickle.List:
		if err := n.enter(v, path); err != nil {
			return nil, err
		}
		defer delete(n.active, v)
		return n.items(v.Items, path)

	case pickle.Tuple:
		values, err := n.items(v, path+".__tuple_values__")
		if err != nil {
			return nil, err
		}
		return TupleNode{Values: values}, nil

	case *pickle.Dict:
		if err := n.enter(v, path); err != nil {
			return nil, err
		}
		defer delete(n.active, v)
		keys, err := n.items(v.Keys(), path+".keys")
		if err != nil {
			return nil, err
		}
		values, err := n.items(v.Values(), path+".values")
		if err != nil {
			return nil, err
		}
		return DictNode{IsDict: true, Keys: keys, Values: values}, nil

	case *pickle.Object:
		if err := n.enter(v, path); err != nil {
			return nil, err
		}
		defer delete(n.active, v)
		return n.object(v, path)
	}

	return nil, &UnsupportedTypeError{Path: path, Type: pickle.TypeName(v)}
}

func (n *normalizer) items(items []any, path string) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		x, err := n.normalize(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func (n *normalizer) object(o *pickle.Object, path string) (any, error) {
	typename := o.TypeName()
	shapeErr := func(format string, argv ...any) error {
		return &ShapeError{Path: path, Type: typename, Reason: fmt.Sprintf(format, argv...)}
	}

	switch {
	case strings.HasPrefix(o.Module, modulePrefix):
		if len(o.Args) != 0 {
			return nil, shapeErr("expected no arguments, got %d", len(o.Args))
		}
		if !o.HasState() {
			return nil, shapeErr("expected state")
		}
		state, err := n.normalize(o.State, path+".state")
		if err != nil {
			return nil, err
		}
		return ModuleNode{Type: typename, State: state}, nil

	case typename == rebuildTensorV2:
		if o.HasState() {
			return nil, shapeErr("unexpected state")
		}
		if len(o.Args) != 6 {
			return nil, shapeErr("expected 6 arguments, got %d", len(o.Args))
		}
		return n.tensor(o.Args, path, shapeErr)

	case typename == restoreTypeTag:
		if o.HasState() {
			return nil, shapeErr("unexpected state")
		}
		if len(o.Args) != 2 {
			return nil, shapeErr("expected 2 arguments, got %d", len(o.Args))
		}
		if _, err := pickle.AsString(o.Args[1]); err != nil {
			return nil, shapeErr("type tag: %s", err)
		}
		return n.normalize(o.Args[0], path)

	case buildListRe.MatchString(typename):
		if o.HasState() {
			return nil, shapeErr("unexpected state")
		}
		if len(o.Args) != 1 {
			return nil, shapeErr("expected 1 argument, got %d", len(o.Args))
		}
		if _, ok := o.Args[0].(*pickle.List); !ok {
			return nil, shapeErr("expected list, got %s", pickle.TypeName(o.Args[0]))
		}
		return n.normalize(o.Args[0], path)
	}

	return nil, shapeErr("unrecognized type")
}

// tensor converts arguments of _rebuild_tensor_v2:
// (storage, offset, size, stride, requires_grad, hooks).
func (n *normalizer) tensor(args pickle.Tuple, path string, shapeErr func(string, ...any) error) (any, error) {
	storage, ok := args[0].(*pickle.Object)
	if !ok {
		return nil, shapeErr("storage: expected persistent reference, got %s", pickle.TypeName(args[0]))
	}
	if storage.Module != persistentModule || storage.Name != persistentName {
		return nil, shapeErr("storage: expected persistent reference, got %s", storage.TypeName())
	}
	if storage.HasState() {
		return nil, shapeErr("storage: unexpected state")
	}
	if len(storage.Args) != 1 {
		return nil, shapeErr("storage: expected 1 argument, got %d", len(storage.Args))
	}
	sa, err := pickle.AsTuple(storage.Args[0], 5)
	if err != nil {
		return nil, shapeErr("storage: %s", err)
	}
	if tag, err := pickle.AsString(sa[0]); err != nil || tag != storageTag {
		return nil, shapeErr("storage: expected %q tag, got %s", storageTag, pickle.Repr(sa[0]))
	}
	class, ok := sa[1].(pickle.Class)
	if !ok {
		return nil, shapeErr("storage: expected storage class, got %s", pickle.TypeName(sa[1]))
	}
	if class.Module != storageClassModule || !strings.HasSuffix(class.Name, storageClassSuffix) {
		return nil, shapeErr("storage: unexpected storage class %s", class)
	}

	path += ".__tensor_v2__"
	storageInfo := []any{strings.ReplaceAll(class.Name, storageClassSuffix, "")}
	for i, x := range sa[2:] {
		v, err := plainJSON(x, fmt.Sprintf("%s[0][%d]", path, i+1))
		if err != nil {
			return nil, err
		}
		storageInfo = append(storageInfo, v)
	}

	t := TensorNode{Storage: storageInfo}
	fields := []*any{&t.Offset, &t.Size, &t.Stride, &t.RequiresGrad}
	for i, field := range fields {
		v, err := plainJSON(args[i+1], fmt.Sprintf("%s[%d]", path, i+1))
		if err != nil {
			return nil, err
		}
		*field = v
	}
	return t, nil
}

// plainJSON converts v the way a JSON encoder of Python values would:
// tuples and lists both become arrays.
func plainJSON(v any, path string) (any, error) {
	switch v := v.(type) {
	case pickle.Tuple:
		return plainItems(v, path)
	case *pickle.List:
		return plainItems(v.Items, path)
	case nil, pickle.None, bool, int, int64, *big.Int, float64, string:
		return (&normalizer{}).normalize(v, path)
	}
	return nil, &UnsupportedTypeError{Path: path, Type: pickle.TypeName(v)}
}

func plainItems(items []any, path string) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		x, err := plainJSON(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

// normalizeFloat returns f, or its name if f is not finite.
func normalizeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}
