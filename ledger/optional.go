package ledger

// Optional distinguishes "field present with value" from "field absent" in
// partial updates. The zero value is absent.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) { return o.value, o.set }

// Present reports whether a value was supplied.
func (o Optional[T]) Present() bool { return o.set }

// Or returns the value if present, otherwise def.
func (o Optional[T]) Or(def T) T {
	if o.set {
		return o.value
	}
	return def
}

// Any returns the value boxed for use as a SQL argument.
func (o Optional[T]) Any() any { return o.value }

// FieldValue is implemented by every Optional and lets statement builders
// handle fields of any type uniformly.
type FieldValue interface {
	Present() bool
	Any() any
}
