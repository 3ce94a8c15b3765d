package weblate

// Optional marks a field of a partial update. The zero value is unset and
// is left out of the request entirely, so the server keeps its stored value.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// Get returns the value and whether it is set.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether the field takes part in the update.
func (o Optional[T]) IsSet() bool {
	return o.set
}
