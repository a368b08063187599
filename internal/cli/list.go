package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var decode bool

	cmd := &cobra.Command{
		Use:   "list <server>",
		Short: "List the subject of every message in the folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := opts.prepare(cmd, args[0])
			if err != nil {
				return err
			}

			entries, err := inv.svc.ListSubjects(cmd.Context(), inv.opts)
			if err != nil {
				return err
			}

			decoded := decodeEnabled(cmd, decode, inv.cfg.Defaults.Decode)
			for _, e := range entries {
				if decoded {
					e = e.Decoded()
				}
				fmt.Fprintln(cmd.OutOrStdout(), e.String())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&decode, "decode", false, "Decode RFC 2047 encoded words")

	return cmd
}
