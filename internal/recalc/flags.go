package recalc

import "slices"

// Flags is a set of read-only attributes.
type Flags map[Attr]bool

// Set marks attrs read-only or editable.
func (f Flags) Set(on bool, attrs ...Attr) {
	for _, attr := range attrs {
		if on {
			f[attr] = true
		} else {
			delete(f, attr)
		}
	}
}

// Is reports whether attr is read-only.
func (f Flags) Is(attr Attr) bool {
	return f[attr]
}

// List returns the read-only attributes sorted by name.
func (f Flags) List() []Attr {
	out := make([]Attr, 0, len(f))
	for attr := range f {
		out = append(out, attr)
	}
	slices.Sort(out)
	return out
}
