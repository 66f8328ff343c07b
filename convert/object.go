package convert

import (
	"strings"

	"github.com/goccy/go-reflect"

	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/value"
)

// TagName is the struct tag read when importing models and decoding
// managed objects. `corebind:"-"` skips a field.
const TagName = "corebind"

// ObjectRef is a managed object attached to one storage generation.
type ObjectRef interface {
	Link() value.Link
	Generation() uint64
}

// Model is an unmanaged object: a pointer to a struct whose exported
// fields map to the properties of ClassName.
type Model interface {
	ClassName() string
}

// UpdatePolicy decides what importing a model does when an object with the
// same primary key already exists.
type UpdatePolicy int

const (
	// UpdatePolicyError fails the import with an AlreadyExists error.
	UpdatePolicyError UpdatePolicy = iota
	// UpdatePolicyAll overwrites every imported field of the existing object.
	UpdatePolicyAll
)

func (p UpdatePolicy) String() string {
	if p == UpdatePolicyAll {
		return "all"
	}
	return "error"
}

// ImportTarget is the storage generation models are imported into.
type ImportTarget interface {
	Generation() uint64
	// PrimaryKey returns the primary key property of class, or "".
	PrimaryKey(class string) (string, error)
	Find(class string, pk value.Value) (ObjectRef, bool, error)
	// Create creates an object; pk is null for classes without a primary key.
	Create(class string, pk value.Value) (ObjectRef, error)
	Set(obj ObjectRef, prop string, v value.Value) error
}

// ObjectConverter converts runtime-typed values including object
// references. Managed references must belong to the target generation.
// Unmanaged models are imported when the converter has an import target;
// the conversion-scoped cache makes cyclic and shared graphs import each
// model once. An ObjectConverter is used for a single conversion and is
// not safe for concurrent use.
type ObjectConverter struct {
	reg        *Registry
	target     ImportTarget
	cache      map[Model]ObjectRef
	generation uint64
	policy     UpdatePolicy
}

// NewObjectConverter converts managed references for generation. Models
// are rejected.
func NewObjectConverter(reg *Registry, generation uint64) *ObjectConverter {
	return &ObjectConverter{reg: reg, generation: generation}
}

// NewImporter converts managed references and imports models into target.
func NewImporter(reg *Registry, target ImportTarget, policy UpdatePolicy) *ObjectConverter {
	return &ObjectConverter{
		reg:        reg,
		target:     target,
		generation: target.Generation(),
		policy:     policy,
		cache:      make(map[Model]ObjectRef),
	}
}

// Imported returns the number of distinct models imported so far.
func (c *ObjectConverter) Imported() int { return len(c.cache) }

// Supports reports whether x can be converted.
func (c *ObjectConverter) Supports(x any) bool {
	switch x.(type) {
	case nil, value.Value, ObjectRef, Model:
		return true
	}
	return c.reg.Supports(x)
}

// ToValue converts x. nil pointers become null.
func (c *ObjectConverter) ToValue(x any) (value.Value, error) {
	switch t := x.(type) {
	case nil:
		return value.Null(), nil
	case value.Value:
		return t, nil
	}
	if isNilPointer(x) {
		return value.Null(), nil
	}
	switch t := x.(type) {
	case ObjectRef:
		return c.link(t)
	case Model:
		ref, err := c.Import(t)
		if err != nil {
			return value.Value{}, err
		}
		return value.LinkTo(ref.Link()), nil
	}
	return c.reg.ToValue(x)
}

func (c *ObjectConverter) link(ref ObjectRef) (value.Value, error) {
	l := ref.Link()
	if g := ref.Generation(); g != c.generation {
		return value.Value{}, errors.StaleObject(l.String(), g, c.generation)
	}
	return value.LinkTo(l), nil
}

// Import copies m and everything it references into the target and
// returns the managed reference for m.
func (c *ObjectConverter) Import(m Model) (ObjectRef, error) {
	if m == nil || isNilPointer(m) {
		return nil, errors.InvalidInput(errors.PhaseImport, "nil model")
	}
	if c.target == nil {
		return nil, errors.InvalidInput(errors.PhaseImport,
			"unmanaged "+m.ClassName()+" can only be imported inside a write transaction")
	}
	fields, err := modelFields(m)
	if err != nil {
		return nil, err
	}
	if ref, ok := c.cache[m]; ok {
		return ref, nil
	}

	class := m.ClassName()
	pkName, err := c.target.PrimaryKey(class)
	if err != nil {
		return nil, err
	}

	var ref ObjectRef
	pk := value.Null()
	if pkName != "" {
		f, ok := findField(fields, pkName)
		if !ok {
			return nil, errors.New(errors.PhaseImport, errors.KindInvalidInput).
				Path(class, pkName).
				Detail("model has no primary key field").
				Build()
		}
		if pk, err = c.reg.ToValue(f.value); err != nil {
			return nil, withPath(err, errors.PhaseImport, class, pkName)
		}
		existing, found, err := c.target.Find(class, pk)
		if err != nil {
			return nil, err
		}
		if found {
			if c.policy == UpdatePolicyError {
				return nil, errors.AlreadyExists(class, pk.Interface())
			}
			ref = existing
		}
	}
	if ref == nil {
		if ref, err = c.target.Create(class, pk); err != nil {
			return nil, err
		}
	}

	// cache before recursing so cycles resolve to this reference
	c.cache[m] = ref

	for _, f := range fields {
		if f.name == pkName {
			continue
		}
		v, err := c.ToValue(f.value)
		if err != nil {
			return nil, withPath(err, errors.PhaseImport, class, f.name)
		}
		if err := c.target.Set(ref, f.name, v); err != nil {
			return nil, withPath(err, errors.PhaseImport, class, f.name)
		}
	}
	return ref, nil
}

type field struct {
	value any
	name  string
}

func findField(fields []field, name string) (field, bool) {
	for _, f := range fields {
		if f.name == name {
			return f, true
		}
	}
	return field{}, false
}

// modelFields lists the exported, non-skipped fields of a model.
func modelFields(m Model) ([]field, error) {
	rv := reflect.ValueNoEscapeOf(m)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, errors.New(errors.PhaseImport, errors.KindInvalidInput).
			GoType(rv.Type().String()).
			Detail("models must be non-nil pointers to structs").
			Build()
	}
	rv = rv.Elem()
	typ := rv.Type()

	fields := make([]field, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		name, ok := FieldName(sf.Name, sf.Tag.Get(TagName))
		if !ok {
			continue
		}
		fields = append(fields, field{name: name, value: rv.Field(i).Interface()})
	}
	return fields, nil
}

// FieldName resolves the property name for a struct field from its tag.
// It reports false for skipped fields.
func FieldName(goName, tag string) (string, bool) {
	if i := strings.IndexByte(tag, ','); i >= 0 {
		tag = tag[:i]
	}
	switch tag {
	case "-":
		return "", false
	case "":
		return goName, true
	}
	return tag, true
}

func isNilPointer(x any) bool {
	rv := reflect.ValueNoEscapeOf(x)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}

func withPath(err error, phase errors.Phase, path ...string) error {
	e, ok := err.(*errors.Error)
	if !ok {
		return errors.New(phase, errors.KindInvalidData).Path(path...).Cause(err).Build()
	}
	cp := *e
	if cp.Phase == errors.PhaseConvert {
		cp.Phase = phase
	}
	cp.Path = append(append([]string{}, path...), cp.Path...)
	return &cp
}
