package convert

import (
	"fmt"

	"github.com/wippyai/corebind/value"
)

// Public is the first conversion stage: public API type P to and from the
// storage type S the engine understands.
type Public[P, S any] interface {
	FromPublic(P) (S, error)
	ToPublic(S) (P, error)
}

// Storage is the second conversion stage: storage type S to and from a
// tagged value.
type Storage[S any] interface {
	ToValue(S) (value.Value, error)
	FromValue(value.Value) (S, error)
}

// Converter converts a public type directly to and from tagged values.
type Converter[P any] interface {
	ToValue(P) (value.Value, error)
	FromValue(value.Value) (P, error)
}

type composed[P, S any] struct {
	pub Public[P, S]
	st  Storage[S]
}

// Compose chains both stages into a Converter. Adding a public type only
// needs a new Public stage; storage stages are shared.
func Compose[P, S any](pub Public[P, S], st Storage[S]) Converter[P] {
	return composed[P, S]{pub: pub, st: st}
}

func (c composed[P, S]) ToValue(p P) (value.Value, error) {
	s, err := c.pub.FromPublic(p)
	if err != nil {
		return value.Value{}, err
	}
	return c.st.ToValue(s)
}

func (c composed[P, S]) FromValue(v value.Value) (P, error) {
	s, err := c.st.FromValue(v)
	if err != nil {
		var zero P
		return zero, err
	}
	return c.pub.ToPublic(s)
}

// Identity is the Public stage for types that are already storage types.
type Identity[S any] struct{}

func (Identity[S]) FromPublic(s S) (S, error) { return s, nil }
func (Identity[S]) ToPublic(s S) (S, error)   { return s, nil }

// PublicFuncs builds a Public stage from two functions.
type PublicFuncs[P, S any] struct {
	From func(P) (S, error)
	To   func(S) (P, error)
}

func (f PublicFuncs[P, S]) FromPublic(p P) (S, error) { return f.From(p) }
func (f PublicFuncs[P, S]) ToPublic(s S) (P, error)   { return f.To(s) }

// Nullable lifts a converter for P to *P: nil converts to null and null to
// nil.
type Nullable[P any] struct {
	Elem Converter[P]
}

func (n Nullable[P]) ToValue(p *P) (value.Value, error) {
	if p == nil {
		return value.Null(), nil
	}
	return n.Elem.ToValue(*p)
}

func (n Nullable[P]) FromValue(v value.Value) (*P, error) {
	if v.IsNull() {
		return nil, nil
	}
	p, err := n.Elem.FromValue(v)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func typeName[T any]() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}
