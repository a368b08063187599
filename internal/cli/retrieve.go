package cli

import (
	"github.com/spf13/cobra"
)

func newRetrieveCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve <server>",
		Short: "Print the raw message selected by -n",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := opts.prepare(cmd, args[0])
			if err != nil {
				return err
			}

			raw, err := inv.svc.Retrieve(cmd.Context(), inv.opts, opts.seq)
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
	return cmd
}
