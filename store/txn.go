package store

import (
	"github.com/wippyai/corebind/arena"
	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/convert"
	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/handle"
	"github.com/wippyai/corebind/value"
)

// Txn is an open write transaction. It is only valid inside the function
// passed to Store.Write.
type Txn struct {
	store *Store
	// scope owns objects created for imports; they are released when the
	// transaction ends.
	scope handle.Scope
	realm capi.Ptr
}

// Create creates an object. pk is the primary key value, or nil for
// classes without one.
func (t *Txn) Create(className string, pk any) (*Object, error) {
	pkv, err := t.store.env.reg.ToValue(pk)
	if err != nil {
		return nil, err
	}
	return t.create(className, pkv)
}

func (t *Txn) create(className string, pk value.Value) (*Object, error) {
	c, err := t.store.class(className)
	if err != nil {
		return nil, err
	}
	eng := t.store.env.eng

	var ptr capi.Ptr
	if c.info.PrimaryKey == "" {
		if !pk.IsNull() {
			return nil, errors.InvalidInput(errors.PhaseImport, className+" has no primary key")
		}
		ptr, err = eng.ObjectCreate(t.realm, c.info.Key)
	} else {
		err = arena.WithScope(eng.Memory(), eng.Allocator(), func(a *arena.Arena) error {
			addr, err := a.NewValue(pk)
			if err != nil {
				return err
			}
			ptr, err = eng.ObjectCreateWithPrimaryKey(t.realm, c.info.Key, addr)
			return err
		})
	}
	if err != nil {
		return nil, err
	}
	return t.store.object(c, ptr)
}

// Copy imports an unmanaged model, and every model it references, into the
// store. Cycles and shared references are imported once.
func (t *Txn) Copy(m convert.Model, policy convert.UpdatePolicy) (*Object, error) {
	ref, err := t.importer(policy).Import(m)
	if err != nil {
		return nil, err
	}
	return ref.(*Object).clone()
}

// Set writes one property. v may be any registered type, an object of this
// store, or an unmanaged model, which is imported first.
func (t *Txn) Set(obj *Object, prop string, v any) error {
	val, err := t.importer(convert.UpdatePolicyError).ToValue(v)
	if err != nil {
		return err
	}
	return t.set(obj, prop, val)
}

func (t *Txn) set(obj *Object, prop string, v value.Value) error {
	if obj.store != t.store {
		return errors.StaleObject(obj.class.info.Name, obj.store.generation, t.store.generation)
	}
	p, err := obj.class.prop(prop)
	if err != nil {
		return err
	}
	ptr, err := obj.h.Ptr()
	if err != nil {
		return err
	}
	eng := t.store.env.eng
	return arena.WithScope(eng.Memory(), eng.Allocator(), func(a *arena.Arena) error {
		addr, err := a.NewValue(v)
		if err != nil {
			return err
		}
		return eng.SetValue(ptr, p.Key, addr, false)
	})
}

// Delete removes obj from the store. The handle stays owned by the caller
// and must still be closed.
func (t *Txn) Delete(obj *Object) error {
	if obj.store != t.store {
		return errors.StaleObject(obj.class.info.Name, obj.store.generation, t.store.generation)
	}
	ptr, err := obj.h.Ptr()
	if err != nil {
		return err
	}
	return t.store.env.eng.ObjectDelete(ptr)
}

// importer adapts a transaction to convert.ImportTarget. Objects it
// creates or finds are owned by the transaction scope.
type importer struct {
	tx *Txn
}

var _ convert.ImportTarget = importer{}

func (t *Txn) importer(policy convert.UpdatePolicy) *convert.ObjectConverter {
	return convert.NewImporter(t.store.env.reg, importer{tx: t}, policy)
}

func (i importer) Generation() uint64 { return i.tx.store.generation }

func (i importer) PrimaryKey(className string) (string, error) {
	c, err := i.tx.store.class(className)
	if err != nil {
		return "", errors.NotFound(errors.PhaseImport, "class", className)
	}
	return c.info.PrimaryKey, nil
}

func (i importer) Find(className string, pk value.Value) (convert.ObjectRef, bool, error) {
	obj, found, err := i.tx.store.Find(className, pk)
	if err != nil || !found {
		return nil, false, err
	}
	i.tx.scope.Own(obj.h)
	return obj, true, nil
}

func (i importer) Create(className string, pk value.Value) (convert.ObjectRef, error) {
	obj, err := i.tx.create(className, pk)
	if err != nil {
		return nil, err
	}
	i.tx.scope.Own(obj.h)
	return obj, nil
}

func (i importer) Set(ref convert.ObjectRef, prop string, v value.Value) error {
	obj, ok := ref.(*Object)
	if !ok {
		return errors.InvalidInput(errors.PhaseImport, "foreign object reference "+ref.Link().String())
	}
	return i.tx.set(obj, prop, v)
}
