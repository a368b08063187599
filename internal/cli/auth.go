package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"imapfetch/internal/config"
	"imapfetch/internal/secrets"
)

func newAuthCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Store server and account settings",
	}
	cmd.AddCommand(newAuthLoginCmd(opts), newAuthLogoutCmd(opts))
	return cmd
}

func newAuthLoginCmd(opts *rootOptions) *cobra.Command {
	var host string

	cmd := &cobra.Command{
		Use:     "login",
		Short:   "Save the server and username to the config file and the password to the keyring",
		Example: "  imapfetch -u alice -t auth login --host imap.example.com",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			password := opts.password
			opts.apply(cmd, &cfg)
			if cmd.Flags().Changed("host") {
				cfg.IMAP.Host = strings.TrimSpace(host)
			}
			if cfg.IMAP.Host == "" || cfg.Auth.Username == "" {
				return errors.New("--host and --user are required")
			}

			if !cmd.Flags().Changed("password") {
				password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}
			if password == "" {
				return errors.New("password is empty")
			}

			store, err := openStore(cfg.Keyring)
			if err != nil {
				return err
			}
			if err := store.SetPassword(cfg.IMAP.Host, cfg.Auth.Username, password); err != nil {
				return err
			}

			// The password lives in the keyring only.
			cfg.Auth.Password = ""
			path, err := config.Save(cfg)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", path)
			fmt.Fprintf(cmd.OutOrStdout(), "Password for %s@%s stored in keyring\n", cfg.Auth.Username, cfg.IMAP.Host)
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "IMAP host")

	return cmd
}

func newAuthLogoutCmd(opts *rootOptions) *cobra.Command {
	var host string

	cmd := &cobra.Command{
		Use:     "logout",
		Short:   "Remove the stored password from the keyring",
		Example: "  imapfetch auth logout\n  imapfetch -u alice auth logout --host imap.example.com",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.apply(cmd, &cfg)
			if cmd.Flags().Changed("host") {
				cfg.IMAP.Host = strings.TrimSpace(host)
			}
			if cfg.IMAP.Host == "" || cfg.Auth.Username == "" {
				return errors.New("--host and --user are required")
			}

			store, err := openStore(cfg.Keyring)
			if err != nil {
				return err
			}
			err = store.DeletePassword(cfg.IMAP.Host, cfg.Auth.Username)
			switch {
			case errors.Is(err, secrets.ErrSecretNotFound):
				fmt.Fprintf(cmd.OutOrStdout(), "No password stored for %s@%s\n", cfg.Auth.Username, cfg.IMAP.Host)
				return nil
			case err != nil:
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Password for %s@%s removed from keyring\n", cfg.Auth.Username, cfg.IMAP.Host)
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "IMAP host")

	return cmd
}

// readPassword prompts without echo on a terminal and reads one line
// otherwise.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
