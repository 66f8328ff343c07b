package arena

import (
	"strconv"

	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/value"
)

// QueryArg is one query argument: a single value, or a list of values for
// predicates such as IN.
type QueryArg struct {
	Values []value.Value
	List   bool
}

// NewQueryArgs writes args as a contiguous array of capi query argument
// structs and returns its address (0 when args is empty).
func (a *Arena) NewQueryArgs(args []QueryArg) (uint32, error) {
	if len(args) == 0 {
		return 0, nil
	}
	base, err := a.Alloc(uint32(len(args))*capi.QueryArgSize, capi.QueryArgAlign)
	if err != nil {
		return 0, err
	}
	for i, arg := range args {
		if !arg.List && len(arg.Values) != 1 {
			return 0, errors.New(errors.PhaseQuery, errors.KindInvalidInput).
				Path(argPath(i)).
				Detail("single-value argument holds %d values", len(arg.Values)).
				Build()
		}
		values, err := a.NewValues(arg.Values)
		if err != nil {
			return 0, err
		}
		at := base + uint32(i)*capi.QueryArgSize
		var isList uint8
		if arg.List {
			isList = 1
		}
		if err := a.mem.WriteU32(at+capi.QueryArgCountOff, uint32(len(arg.Values))); err != nil {
			return 0, errors.Wrap(errors.PhaseQuery, errors.KindInvalidData, err, "write query argument")
		}
		if err := a.mem.WriteU8(at+capi.QueryArgIsListOff, isList); err != nil {
			return 0, errors.Wrap(errors.PhaseQuery, errors.KindInvalidData, err, "write query argument")
		}
		if err := a.mem.WriteU32(at+capi.QueryArgValuesOff, values); err != nil {
			return 0, errors.Wrap(errors.PhaseQuery, errors.KindInvalidData, err, "write query argument")
		}
	}
	return base, nil
}

// ReadQueryArgs decodes n query argument structs at addr. It is the
// engine-side counterpart of NewQueryArgs and copies all payloads out.
func ReadQueryArgs(mem capi.Memory, addr uint32, n int) ([]QueryArg, error) {
	out := make([]QueryArg, 0, n)
	for i := 0; i < n; i++ {
		at := addr + uint32(i)*capi.QueryArgSize
		count, err := mem.ReadU32(at + capi.QueryArgCountOff)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseQuery, errors.KindInvalidData, err, "read query argument")
		}
		isList, err := mem.ReadU8(at + capi.QueryArgIsListOff)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseQuery, errors.KindInvalidData, err, "read query argument")
		}
		values, err := mem.ReadU32(at + capi.QueryArgValuesOff)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseQuery, errors.KindInvalidData, err, "read query argument")
		}
		arg := QueryArg{List: isList != 0, Values: make([]value.Value, 0, count)}
		for j := uint32(0); j < count; j++ {
			v, err := value.Read(mem, values+j*value.Size)
			if err != nil {
				return nil, err
			}
			arg.Values = append(arg.Values, v)
		}
		out = append(out, arg)
	}
	return out, nil
}

func argPath(i int) string {
	return "$" + strconv.Itoa(i)
}
