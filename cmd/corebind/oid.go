package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/value"
)

func newOIDCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oid",
		Short: "Generate and inspect object ids",
	}

	var count int
	gen := &cobra.Command{
		Use:   "new",
		Short: "Generate object ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return errors.InvalidInput(errors.PhaseConvert, "count must be positive")
			}
			for i := 0; i < count; i++ {
				fmt.Fprintln(cmd.OutOrStdout(), value.NewObjectID().Hex())
			}
			return nil
		},
	}
	gen.Flags().IntVarP(&count, "count", "n", 1, "number of ids")

	inspect := &cobra.Command{
		Use:   "inspect <hex>",
		Short: "Show the creation time and bytes of an object id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := value.ObjectIDFromHex(args[0])
			if err != nil {
				return errors.Wrap(errors.PhaseConvert, errors.KindInvalidInput, err, "object id")
			}
			w := cmd.OutOrStdout()
			field(w, "hex", id.Hex())
			field(w, "timestamp", id.Timestamp().Format(time.RFC3339))
			field(w, "bytes", spaced(id.Bytes()))
			return nil
		},
	}

	cmd.AddCommand(gen, inspect)
	return cmd
}

func spaced(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02x", c)
	}
	return strings.Join(parts, " ")
}
