package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"imapfetch/internal/imap"
)

// rootOptions holds the flags shared by every mailbox command.
type rootOptions struct {
	user     string
	password string
	folder   string
	seq      string
	tls      bool
	port     int
	timeout  time.Duration
	insecure bool
	match    string
	verbose  bool
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOptions{})
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imapfetch",
		Short: "imapfetch reads messages from an IMAP server",
		Long: "imapfetch logs in to an IMAP server, selects a folder, runs one\n" +
			"read-only command and logs out.",
		Example: "  imapfetch -u alice -p secret -n 3 retrieve imap.example.com\n" +
			"  imapfetch -u alice -p secret -f Archive -t list imap.example.com",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.user, "user", "u", "", "IMAP username")
	pf.StringVarP(&opts.password, "password", "p", "", "IMAP password (falls back to config, then keyring)")
	pf.StringVarP(&opts.folder, "folder", "f", "", "Folder to select (default from config, INBOX)")
	pf.StringVarP(&opts.seq, "num", "n", imap.LastMessage, "Message sequence number, or * for the last message")
	pf.BoolVarP(&opts.tls, "tls", "t", false, "Use TLS (port 993 unless --port is set)")
	pf.IntVar(&opts.port, "port", 0, "Server port (default 143, or 993 with --tls)")
	pf.DurationVar(&opts.timeout, "timeout", 0, "Per-read/write timeout (default from config, 10s)")
	pf.BoolVar(&opts.insecure, "insecure", false, "Skip TLS certificate verification")
	pf.StringVar(&opts.match, "match", "", "Response matching: strict or legacy")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Log protocol exchanges to stderr")

	cmd.AddCommand(newRetrieveCmd(opts))
	cmd.AddCommand(newParseCmd(opts))
	cmd.AddCommand(newMimeCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newAuthCmd(opts))
	cmd.AddCommand(newConfigCmd())

	cmd.SetErr(os.Stderr)
	cmd.SetOut(os.Stdout)

	return cmd
}

func init() {
	// "RETRIEVE" and "Retrieve" resolve like "retrieve".
	cobra.EnableCaseInsensitive = true
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return imap.ExitOK
	}
	fmt.Fprintln(stderr, "Error:", err)
	// Flag, argument and config errors carry no kind and map to usage.
	return imap.ExitCode(err)
}
