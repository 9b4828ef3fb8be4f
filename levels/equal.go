package levels

import "slices"

// Equal reports whether two levels are structurally equal. Nil and empty
// slices are treated alike, optional fields compare by value.
func (l *Level) Equal(o *Level) bool {
	if l == nil || o == nil {
		return l == o
	}
	if l.Head.Name != o.Head.Name ||
		l.Head.Version != o.Head.Version ||
		l.Head.ScreenshotSubmap != o.Head.ScreenshotSubmap ||
		l.Head.LastSubmap != o.Head.LastSubmap ||
		!slices.Equal(l.Head.SubmapOrder, o.Head.SubmapOrder) {
		return false
	}
	return slices.EqualFunc(l.Maps, o.Maps, func(a, b Map) bool { return a.Equal(&b) })
}

func (m *Map) Equal(o *Map) bool {
	return m.Head == o.Head &&
		slices.EqualFunc(m.Objects, o.Objects, func(a, b Object) bool { return a.Equal(&b) })
}

func (o *Object) Equal(p *Object) bool {
	for a, b := o, p; a != nil || b != nil; a, b = a.Nested, b.Nested {
		if a == nil || b == nil {
			return false
		}
		if a.Type != b.Type || a.X != b.X || a.Y != b.Y ||
			!equalPtr(a.Slot, b.Slot) || !equalPtr(a.Rotation, b.Rotation) ||
			!slices.Equal(a.Params, b.Params) ||
			!slices.EqualFunc(a.Events, b.Events, func(x, y Event) bool { return x.Equal(&y) }) {
			return false
		}
	}
	return true
}

func (e *Event) Equal(o *Event) bool {
	return e.ID == o.ID &&
		slices.Equal(e.Params, o.Params) &&
		slices.EqualFunc(e.Children, o.Children, func(a, b Event) bool { return a.Equal(&b) })
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
