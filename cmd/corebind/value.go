package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wippyai/corebind/arena"
	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/capi/heap"
	"github.com/wippyai/corebind/convert"
	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/value"
)

func newValueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "value",
		Short: "Encode and decode tagged values",
	}
	cmd.AddCommand(newValueEncodeCommand())
	cmd.AddCommand(newValueDecodeCommand())
	return cmd
}

func newValueEncodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <type> [literal]",
		Short: "Show the binary and native encodings of a literal",
		Long: `Convert a literal to a tagged value and print its compact binary
encoding and its native slot.

Types: null, int, bool, float, double, string, binary (hex),
timestamp (RFC 3339), object_id (hex), uuid, link (class:object).`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lit := ""
			if len(args) == 2 {
				lit = args[1]
			}
			v, err := parseLiteral(convert.NewRegistry(), args[0], lit)
			if err != nil {
				return err
			}
			return printEncoded(cmd.OutOrStdout(), v)
		},
	}
}

func newValueDecodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a compact binary tagged value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(args[0])
			if err != nil {
				return errors.Wrap(errors.PhaseDecode, errors.KindInvalidInput, err, "hex input")
			}
			v, err := value.ParseBinary(raw)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			field(w, "type", v.Type().String())
			field(w, "value", v.String())
			return nil
		},
	}
}

// parseLiteral parses lit as a Go value of the named type and converts it
// through reg.
func parseLiteral(reg *convert.Registry, typ, lit string) (value.Value, error) {
	var (
		goValue any
		err     error
	)
	switch typ {
	case "null":
		if lit != "" {
			return value.Value{}, errors.InvalidInput(errors.PhaseConvert, "null takes no literal")
		}
		return value.Null(), nil
	case "int":
		goValue, err = strconv.ParseInt(lit, 10, 64)
	case "bool":
		goValue, err = strconv.ParseBool(lit)
	case "float":
		var f float64
		f, err = strconv.ParseFloat(lit, 32)
		goValue = float32(f)
	case "double":
		goValue, err = strconv.ParseFloat(lit, 64)
	case "string":
		goValue = lit
	case "binary":
		goValue, err = hex.DecodeString(lit)
	case "timestamp":
		goValue, err = time.Parse(time.RFC3339Nano, lit)
	case "object_id":
		goValue, err = value.ObjectIDFromHex(lit)
	case "uuid":
		goValue, err = uuid.Parse(lit)
	case "link":
		goValue, err = parseLink(lit)
	default:
		return value.Value{}, errors.UnsupportedNativeType(errors.PhaseConvert, typ)
	}
	if err != nil {
		return value.Value{}, errors.Wrap(errors.PhaseConvert, errors.KindInvalidInput, err, typ+" literal "+strconv.Quote(lit))
	}
	return reg.ToValue(goValue)
}

func parseLink(lit string) (value.Link, error) {
	class, obj, ok := strings.Cut(lit, ":")
	if !ok {
		return value.Link{}, fmt.Errorf("want class:object, got %q", lit)
	}
	c, err := strconv.ParseUint(class, 10, 32)
	if err != nil {
		return value.Link{}, err
	}
	o, err := strconv.ParseInt(obj, 10, 64)
	if err != nil {
		return value.Link{}, err
	}
	return value.Link{Class: capi.ClassKey(c), Object: capi.ObjKey(o)}, nil
}

func printEncoded(w io.Writer, v value.Value) error {
	bin, err := value.AppendBinary(nil, v)
	if err != nil {
		return err
	}
	slot, err := nativeSlot(v)
	if err != nil {
		return err
	}
	field(w, "type", v.Type().String())
	field(w, "value", v.String())
	field(w, "binary", hex.EncodeToString(bin))
	field(w, "native", hex.EncodeToString(slot))
	return nil
}

// nativeSlot writes v into a scratch heap and returns a copy of its slot.
// Out-of-line payloads show up as heap addresses.
func nativeSlot(v value.Value) ([]byte, error) {
	mem := heap.New(0)
	var slot []byte
	err := arena.WithScope(mem, mem, func(a *arena.Arena) error {
		addr, err := a.NewValue(v)
		if err != nil {
			return err
		}
		raw, err := mem.Read(addr, value.Size)
		if err != nil {
			return err
		}
		slot = append([]byte(nil), raw...)
		return nil
	})
	return slot, err
}

func field(w io.Writer, name, val string) {
	fmt.Fprintf(w, "%-10s %s\n", name, val)
}
