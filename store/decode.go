package store

import (
	"reflect"

	"github.com/mitchellh/mapstructure"

	"github.com/wippyai/corebind/convert"
	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/value"
)

var (
	valueType  = reflect.TypeOf(value.Value{})
	objectType = reflect.TypeOf((*Object)(nil))
)

// Decode reads every property into target, a pointer to a struct. Fields
// are matched with the corebind tag, as for imports. Null properties leave
// their field untouched. Links decode into value.Link or *Object fields;
// the caller owns decoded objects.
func (o *Object) Decode(target any) error {
	props := make(map[string]any, len(o.class.order))
	for _, name := range o.class.order {
		v, err := o.Get(name)
		if err != nil {
			return err
		}
		if !v.IsNull() {
			props[name] = v
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.DecodeHookFuncType(o.decodeHook),
		Result:     target,
		TagName:    convert.TagName,
	})
	if err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindInvalidInput, err, "decode "+o.class.info.Name)
	}
	if err := dec.Decode(props); err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindTypeMismatch, err, "decode "+o.class.info.Name)
	}
	return nil
}

// decodeHook converts tagged values to the field type through the
// registry.
func (o *Object) decodeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	v, ok := data.(value.Value)
	if !ok {
		return data, nil
	}
	switch {
	case to == valueType:
		return v, nil
	case to == objectType:
		link, ok := v.AsLink()
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseDecode, []string{o.class.info.Name}, to.String(), v.Type().String())
		}
		return o.store.objectAt(link)
	}
	out, err := o.store.env.reg.FromValueLike(reflect.Zero(to).Interface(), v)
	if err != nil {
		return nil, withPath(err, o.class.info.Name)
	}
	return out, nil
}

func withPath(err error, path ...string) error {
	e, ok := err.(*errors.Error)
	if !ok {
		return err
	}
	cp := *e
	cp.Path = append(append([]string{}, path...), cp.Path...)
	return &cp
}
