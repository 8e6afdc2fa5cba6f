// Package pickle decodes Python pickle streams into a tree of placeholder
// values without ever importing or running Python code.
//
// Use Decoder to decode a pickle from input stream, for example:
//
//	d := pickle.NewDecoder(r)
//	obj, err := d.Decode() // obj is any representing decoded Python object
//
// The following table summarizes mapping of types in between Python and Go:
//
//	Python	   Go
//	------	   --
//
//	None	   pickle.None
//	bool	   bool
//	int	   int64, or *big.Int if it does not fit
//	float	   float64
//	str	   string
//	bytes	   pickle.Bytes
//	bytearray  []byte
//	list	   *pickle.List
//	tuple	   pickle.Tuple
//	dict	   *pickle.Dict
//
// Lists and dicts are decoded by pointer, so a container referenced several
// times from one pickle is the same Go value at every place.
//
// Python classes and instances are mapped to Class and Object, for example:
//
//	Python				Go
//	------				--
//
//	torch.FloatStorage		pickle.Class{"torch", "FloatStorage"}
//	collections.OrderedDict()	&pickle.Object{
//						Module: "collections",
//						Name:   "OrderedDict",
//						Args:   pickle.Tuple{},
//					}
//
// Object.State holds whatever BUILD would pass to __setstate__. Persistent
// references become objects of class pers.obj with the persistent id as
// the only argument.
//
// Repr and PFormat render decoded values the way Python's repr and
// pprint.pformat would render the corresponding placeholder objects.
package pickle
