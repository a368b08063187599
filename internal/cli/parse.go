package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newParseCmd(opts *rootOptions) *cobra.Command {
	var decode bool

	cmd := &cobra.Command{
		Use:   "parse <server>",
		Short: "Print the From, To, Date and Subject headers of a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := opts.prepare(cmd, args[0])
			if err != nil {
				return err
			}

			headers, err := inv.svc.ParseHeaders(cmd.Context(), inv.opts, opts.seq)
			if err != nil {
				return err
			}
			if decodeEnabled(cmd, decode, inv.cfg.Defaults.Decode) {
				headers = headers.Decoded()
			}

			for _, line := range headers.Lines() {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&decode, "decode", false, "Decode RFC 2047 encoded words")

	return cmd
}

// decodeEnabled prefers an explicit --decode over the configured default.
func decodeEnabled(cmd *cobra.Command, flag, configured bool) bool {
	if cmd.Flags().Changed("decode") {
		return flag
	}
	return configured
}
