package cli

import (
	"bytes"

	"github.com/spf13/cobra"
)

func newMimeCmd(opts *rootOptions) *cobra.Command {
	var decode bool

	cmd := &cobra.Command{
		Use:   "mime <server>",
		Short: "Print the first text/plain part of a multipart message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := opts.prepare(cmd, args[0])
			if err != nil {
				return err
			}

			part, err := inv.svc.ExtractMIME(cmd.Context(), inv.opts, opts.seq)
			if err != nil {
				return err
			}

			body := part.Body
			if decodeEnabled(cmd, decode, inv.cfg.Defaults.Decode) {
				decoded, err := part.Decoded()
				if err != nil {
					inv.log.Warn("decode failed, printing raw part", "error", err)
				} else {
					body = decoded
				}
			}

			out := cmd.OutOrStdout()
			if _, err := out.Write(body); err != nil {
				return err
			}
			if !bytes.HasSuffix(body, []byte("\n")) {
				_, err = out.Write([]byte("\n"))
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&decode, "decode", false, "Undo the part's transfer encoding and charset")

	return cmd
}
