package convert

import (
	"strconv"

	"github.com/goccy/go-reflect"

	"github.com/wippyai/corebind/arena"
	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/value"
)

// ValueConverter converts runtime-typed values. Registry and Importer
// implement it.
type ValueConverter interface {
	ToValue(any) (value.Value, error)
	Supports(any) bool
}

// QueryArgs converts positional query arguments. A slice or array other
// than a registered type ([]byte, uuid.UUID and value.ObjectID are
// scalars) becomes a list argument whose elements are converted one by
// one; anything else is a single-value argument.
func QueryArgs(conv ValueConverter, args ...any) ([]arena.QueryArg, error) {
	out := make([]arena.QueryArg, 0, len(args))
	for i, arg := range args {
		qa, err := queryArg(conv, arg)
		if err != nil {
			return nil, withArgPath(err, i)
		}
		out = append(out, qa)
	}
	return out, nil
}

func queryArg(conv ValueConverter, arg any) (arena.QueryArg, error) {
	switch arg.(type) {
	case nil, value.Value:
		v, err := conv.ToValue(arg)
		if err != nil {
			return arena.QueryArg{}, err
		}
		return arena.QueryArg{Values: []value.Value{v}}, nil
	}

	rv := reflect.ValueNoEscapeOf(arg)
	if k := rv.Kind(); conv.Supports(arg) || (k != reflect.Slice && k != reflect.Array) {
		v, err := conv.ToValue(arg)
		if err != nil {
			return arena.QueryArg{}, err
		}
		return arena.QueryArg{Values: []value.Value{v}}, nil
	}

	values := make([]value.Value, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		v, err := conv.ToValue(rv.Index(i).Interface())
		if err != nil {
			return arena.QueryArg{}, err
		}
		values = append(values, v)
	}
	return arena.QueryArg{Values: values, List: true}, nil
}

func withArgPath(err error, i int) error {
	return withPath(err, errors.PhaseQuery, "$"+strconv.Itoa(i))
}
