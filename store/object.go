package store

import (
	"github.com/wippyai/corebind/arena"
	"github.com/wippyai/corebind/bridge"
	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/changeset"
	"github.com/wippyai/corebind/convert"
	"github.com/wippyai/corebind/handle"
	"github.com/wippyai/corebind/value"
)

var _ convert.ObjectRef = (*Object)(nil)

// Object is a managed object. Property reads go to the engine every time;
// nothing is cached.
type Object struct {
	store *Store
	h     *handle.Handle
	class *class
	key   capi.ObjKey
}

// Class returns the object's class name.
func (o *Object) Class() string { return o.class.info.Name }

// Link returns the object's address within its store.
func (o *Object) Link() value.Link {
	return value.Link{Class: o.class.info.Key, Object: o.key}
}

// Generation returns the generation of the store the object belongs to.
func (o *Object) Generation() uint64 { return o.store.generation }

// Store returns the store the object belongs to.
func (o *Object) Store() *Store { return o.store }

// Get reads one property.
func (o *Object) Get(prop string) (value.Value, error) {
	p, err := o.class.prop(prop)
	if err != nil {
		return value.Value{}, err
	}
	ptr, err := o.h.Ptr()
	if err != nil {
		return value.Value{}, err
	}
	eng := o.store.env.eng

	var v value.Value
	err = arena.WithScope(eng.Memory(), eng.Allocator(), func(a *arena.Arena) error {
		out, err := a.NewValueBuffer()
		if err != nil {
			return err
		}
		if err := eng.GetValue(ptr, p.Key, out); err != nil {
			return err
		}
		v, err = a.ReadValue(out)
		return err
	})
	return v, err
}

// GetAs reads a property and converts it to P.
func GetAs[P any](o *Object, prop string) (P, error) {
	v, err := o.Get(prop)
	if err != nil {
		var zero P
		return zero, err
	}
	out, err := convert.FromValueAs[P](o.store.env.reg, v)
	if err != nil {
		return out, withPath(err, o.class.info.Name, prop)
	}
	return out, nil
}

// IsValid reports whether the object still exists and its store is open.
func (o *Object) IsValid() bool {
	ptr, err := o.h.Ptr()
	if err != nil {
		return false
	}
	return o.store.env.eng.ObjectIsValid(ptr)
}

// ObjectChange describes a change to an observed object.
type ObjectChange struct {
	Properties []string
	Deleted    bool
}

// Observe calls fn on the store's looper after every commit that changes
// the object. Close the subscription to stop.
func (o *Object) Observe(fn func(ObjectChange)) (*bridge.Subscription, error) {
	ptr, err := o.h.Ptr()
	if err != nil {
		return nil, err
	}
	eng := o.store.env.eng
	dec := changeset.NewDecoder(eng)
	register := func(cb capi.ChangeCallback) (capi.Ptr, error) {
		return eng.ObjectAddNotificationCallback(ptr, cb)
	}
	return bridge.Observe(eng, o.store.looper, register, func(changes capi.Ptr) {
		c, err := dec.Object(changes)
		if err != nil {
			o.store.decodeFailed(err)
			return
		}
		change := ObjectChange{Deleted: c.Deleted, Properties: make([]string, 0, len(c.Modified))}
		for _, key := range c.Modified {
			if name, ok := o.class.names[key]; ok {
				change.Properties = append(change.Properties, name)
			}
		}
		fn(change)
	}, o.store.handleOpts()...)
}

// Equal reports whether both objects address the same stored object.
func (o *Object) Equal(other *Object) bool {
	return o.h.Equals(other.h)
}

func (o *Object) clone() (*Object, error) {
	h, err := o.h.Clone()
	if err != nil {
		return nil, err
	}
	return &Object{store: o.store, h: h, class: o.class, key: o.key}, nil
}

// Close releases the object handle.
func (o *Object) Close() error {
	return o.h.Release()
}
