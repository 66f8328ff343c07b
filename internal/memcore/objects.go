package memcore

import (
	"github.com/google/uuid"

	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/value"
)

// object addresses a row through the realm it was obtained from.
type object struct {
	realm *realm
	class capi.ClassKey
	key   capi.ObjKey
}

func (o *object) id() objID { return objID{class: o.class, key: o.key} }

var storageTypes = map[capi.PropertyType]value.Type{
	capi.PropertyInt:      value.TypeInt,
	capi.PropertyBool:     value.TypeBool,
	capi.PropertyString:   value.TypeString,
	capi.PropertyBinary:   value.TypeBinary,
	capi.PropertyDate:     value.TypeTimestamp,
	capi.PropertyFloat:    value.TypeFloat,
	capi.PropertyDouble:   value.TypeDouble,
	capi.PropertyObjectID: value.TypeObjectID,
	capi.PropertyUUID:     value.TypeUUID,
	capi.PropertyObject:   value.TypeLink,
}

func defaultValue(p capi.PropertyInfo) value.Value {
	if p.Nullable() {
		return value.Null()
	}
	switch p.Type {
	case capi.PropertyInt:
		return value.Int(0)
	case capi.PropertyBool:
		return value.Bool(false)
	case capi.PropertyString:
		return value.String("")
	case capi.PropertyBinary:
		return value.Binary(nil)
	case capi.PropertyDate:
		return value.Time(value.Timestamp{})
	case capi.PropertyFloat:
		return value.Float(0)
	case capi.PropertyDouble:
		return value.Double(0)
	case capi.PropertyObjectID:
		return value.OID(value.ObjectID{})
	case capi.PropertyUUID:
		return value.UUID(uuid.Nil)
	}
	return value.Null()
}

// checkValue validates v against property p. mu must be held.
func (f *file) checkValue(c *classDef, p capi.PropertyInfo, v value.Value) error {
	if v.IsNull() {
		if p.Nullable() {
			return nil
		}
		return nativeErr(CategorySchema, CodeTypeMismatch,
			c.info.Name+"."+p.Name+" is not nullable")
	}
	if p.Type == capi.PropertyMixed {
		return nil
	}
	want, ok := storageTypes[p.Type]
	if !ok || v.Type() != want {
		return nativeErr(CategorySchema, CodeTypeMismatch,
			c.info.Name+"."+p.Name+" is "+p.Type.String()+", got "+v.Type().String())
	}
	if p.Type == capi.PropertyObject {
		link, _ := v.AsLink()
		target, ok := f.classNamed(p.LinkTarget)
		if !ok || target.info.Key != link.Class {
			return nativeErr(CategorySchema, CodeInvalidLink,
				c.info.Name+"."+p.Name+" links to "+p.LinkTarget)
		}
		if _, ok := f.tables[link.Class].rows[link.Object]; !ok {
			return nativeErr(CategorySchema, CodeInvalidLink, "link target does not exist")
		}
	}
	return nil
}

// liveObject resolves p to an object whose realm is open and whose row
// still exists. mu must be held.
func (e *Engine) liveObject(p capi.Ptr) (*object, *classDef, row, error) {
	o, err := resolve[*object](e, p)
	if err != nil {
		return nil, nil, nil, err
	}
	if o.realm.closed {
		return nil, nil, nil, nativeErr(CategoryLogic, CodeClosed, "realm is closed")
	}
	c, ok := o.realm.file.class(o.class)
	if !ok {
		return nil, nil, nil, nativeErr(CategorySchema, CodeNoSuchClass, "no such class")
	}
	r, ok := o.realm.file.tables[o.class].rows[o.key]
	if !ok {
		return nil, nil, nil, nativeErr(CategoryLogic, CodeInvalidPointer, "object has been deleted")
	}
	return o, c, r, nil
}

func (e *Engine) create(r *realm, c *classDef, pk *value.Value) capi.Ptr {
	t := r.file.tables[c.info.Key]
	t.nextKey++
	key := t.nextKey

	fields := make(row, len(c.props))
	for _, p := range c.props {
		fields[p.Key] = defaultValue(p)
		if pk != nil && p.Primary() {
			fields[p.Key] = *pk
		}
	}
	t.rows[key] = fields
	r.txn.created[objID{class: c.info.Key, key: key}] = true
	return e.put(&object{realm: r, class: c.info.Key, key: key})
}

func (e *Engine) ObjectCreate(p capi.Ptr, class capi.ClassKey) (capi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.writing(p)
	if err != nil {
		return 0, err
	}
	c, ok := r.file.class(class)
	if !ok {
		return 0, nativeErr(CategorySchema, CodeNoSuchClass, "no such class")
	}
	if c.info.PrimaryKey != "" {
		return 0, nativeErr(CategorySchema, CodeNoPrimaryKey, c.info.Name+" requires a primary key")
	}
	return e.create(r, c, nil), nil
}

func (e *Engine) ObjectCreateWithPrimaryKey(p capi.Ptr, class capi.ClassKey, pkAddr uint32) (capi.Ptr, error) {
	pk, err := value.Read(e.mem, pkAddr)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.writing(p)
	if err != nil {
		return 0, err
	}
	c, ok := r.file.class(class)
	if !ok {
		return 0, nativeErr(CategorySchema, CodeNoSuchClass, "no such class")
	}
	prop, ok := c.propNamed(c.info.PrimaryKey)
	if !ok {
		return 0, nativeErr(CategorySchema, CodeNoPrimaryKey, c.info.Name+" has no primary key")
	}
	if err := r.file.checkValue(c, prop, pk); err != nil {
		return 0, err
	}
	if _, found := r.file.findByPK(c, prop, pk); found {
		return 0, nativeErr(CategoryLogic, CodeDuplicateKey,
			"duplicate primary key "+pk.String()+" for "+c.info.Name)
	}
	return e.create(r, c, &pk), nil
}

func (f *file) findByPK(c *classDef, prop capi.PropertyInfo, pk value.Value) (capi.ObjKey, bool) {
	for key, r := range f.tables[c.info.Key].rows {
		if r[prop.Key].Equal(pk) {
			return key, true
		}
	}
	return 0, false
}

func (e *Engine) ObjectFind(p capi.Ptr, class capi.ClassKey, pkAddr uint32) (capi.Ptr, bool, error) {
	pk, err := value.Read(e.mem, pkAddr)
	if err != nil {
		return 0, false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.liveRealm(p)
	if err != nil {
		return 0, false, err
	}
	c, ok := r.file.class(class)
	if !ok {
		return 0, false, nativeErr(CategorySchema, CodeNoSuchClass, "no such class")
	}
	prop, ok := c.propNamed(c.info.PrimaryKey)
	if !ok {
		return 0, false, nativeErr(CategorySchema, CodeNoPrimaryKey, c.info.Name+" has no primary key")
	}
	key, found := r.file.findByPK(c, prop, pk)
	if !found {
		return 0, false, nil
	}
	return e.put(&object{realm: r, class: class, key: key}), true, nil
}

func (e *Engine) ObjectGet(p capi.Ptr, class capi.ClassKey, key capi.ObjKey) (capi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.liveRealm(p)
	if err != nil {
		return 0, err
	}
	t, ok := r.file.tables[class]
	if !ok {
		return 0, nativeErr(CategorySchema, CodeNoSuchClass, "no such class")
	}
	if _, ok := t.rows[key]; !ok {
		return 0, nativeErr(CategoryLogic, CodeInvalidPointer, "no such object")
	}
	return e.put(&object{realm: r, class: class, key: key}), nil
}

func (e *Engine) ObjectInfo(p capi.Ptr) (capi.ClassKey, capi.ObjKey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := resolve[*object](e, p)
	if err != nil {
		return 0, 0, err
	}
	return o.class, o.key, nil
}

func (e *Engine) ObjectIsValid(p capi.Ptr) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, _, _, err := e.liveObject(p)
	return err == nil
}

func (e *Engine) ObjectResolveIn(p capi.Ptr, target capi.Ptr) (capi.Ptr, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := resolve[*object](e, p)
	if err != nil {
		return 0, false, err
	}
	r, err := e.liveRealm(target)
	if err != nil {
		return 0, false, err
	}
	if r.file != o.realm.file {
		return 0, false, nil
	}
	if _, ok := r.file.tables[o.class].rows[o.key]; !ok {
		return 0, false, nil
	}
	return e.put(&object{realm: r, class: o.class, key: o.key}), true, nil
}

func (e *Engine) ObjectDelete(p capi.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, c, _, err := e.liveObject(p)
	if err != nil {
		return err
	}
	if o.realm.txn == nil {
		return nativeErr(CategoryLogic, CodeNotInWrite, "not in a write transaction")
	}
	f := o.realm.file
	delete(f.tables[o.class].rows, o.key)
	o.realm.txn.deleted[o.id()] = true

	// nullify incoming links
	for _, src := range f.classes {
		for _, prop := range src.props {
			if prop.Type != capi.PropertyObject || prop.LinkTarget != c.info.Name {
				continue
			}
			for key, r := range f.tables[src.info.Key].rows {
				if link, ok := r[prop.Key].AsLink(); ok && link.Class == o.class && link.Object == o.key {
					r[prop.Key] = value.Null()
					o.realm.txn.touch(objID{class: src.info.Key, key: key}, prop.Key)
				}
			}
		}
	}
	return nil
}

// GetValue writes the property value to out. Payloads are allocated from
// the engine allocator and belong to the caller.
func (e *Engine) GetValue(p capi.Ptr, prop capi.PropKey, out uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, c, r, err := e.liveObject(p)
	if err != nil {
		return err
	}
	if _, ok := c.prop(prop); !ok {
		return nativeErr(CategorySchema, CodeNoSuchProperty, "no such property on "+c.info.Name)
	}
	return value.NewEncoder(e.mem, e.mem).Write(out, r[prop])
}

func (e *Engine) SetValue(p capi.Ptr, prop capi.PropKey, in uint32, isDefault bool) error {
	v, err := value.Read(e.mem, in)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	o, c, r, err := e.liveObject(p)
	if err != nil {
		return err
	}
	if o.realm.txn == nil {
		return nativeErr(CategoryLogic, CodeNotInWrite, "not in a write transaction")
	}
	info, ok := c.prop(prop)
	if !ok {
		return nativeErr(CategorySchema, CodeNoSuchProperty, "no such property on "+c.info.Name)
	}
	if err := o.realm.file.checkValue(c, info, v); err != nil {
		return err
	}
	if info.Primary() {
		if r[prop].Equal(v) {
			return nil
		}
		return nativeErr(CategoryLogic, CodeDuplicateKey, "primary key of "+c.info.Name+" cannot change")
	}
	if isDefault && r[prop].Equal(v) {
		return nil
	}
	r[prop] = v
	o.realm.txn.touch(o.id(), prop)
	return nil
}
