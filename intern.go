package modeldump

// Interner assigns indices to values in first-seen order.
//
// The zero value is not usable; use NewInterner.
type Interner[K comparable] struct {
	index  map[K]int
	values []K
}

// NewInterner returns an empty Interner.
func NewInterner[K comparable]() *Interner[K] {
	return &Interner[K]{index: make(map[K]int)}
}

// Intern returns the index of v, adding v if it was not seen before.
func (in *Interner[K]) Intern(v K) int {
	if i, ok := in.index[v]; ok {
		return i
	}
	i := len(in.values)
	in.index[v] = i
	in.values = append(in.values, v)
	return i
}

// Len returns the number of interned values.
func (in *Interner[K]) Len() int {
	return len(in.values)
}

// Values returns interned values ordered by index.
func (in *Interner[K]) Values() []K {
	return append(make([]K, 0, len(in.values)), in.values...)
}
