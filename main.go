// Command langsync keeps the language list of a Weblate server in line with a
// Zanata locale catalogue and a plural-form map.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/minios-linux/langsync/config"
	"github.com/minios-linux/langsync/weblate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ---------------------------------------------------------------------------
// Logging
// ---------------------------------------------------------------------------

// isTerminal returns true if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// consoleWriter returns a zerolog writer that only colours terminals.
func consoleWriter(w io.Writer) io.Writer {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isTerminal(f)
	}
	return zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: time.TimeOnly}
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(consoleWriter(w)).Level(level).With().Timestamp().Logger()
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var cfgFile string

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "langsync",
		Short: "Reconcile Weblate languages with a Zanata locale catalogue",
		Long: `langsync reconciles the language list of a Weblate server with a legacy
Zanata locale catalogue and a plural-form map.

Every command is a dry run unless --apply is given.

Commands:
  sync        Full reconcile: update matched languages, create missing ones,
              delete languages not in the catalogue
  upsert      Create or update catalogue languages one by one, never delete
  prune       Delete every language except the excluded ones
  check       Validate a plural map offline
  auth        Manage stored API tokens

Configuration is read from .langsync.yaml, LANGSYNC_* environment variables
(WEBLATE_URL, WEBLATE_API_KEY and WEBLATE_TIMEOUT are honoured too) and flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flags, inherited by all subcommands
	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ./.langsync.yaml)")
	pf.String("url", "", "Weblate server URL")
	pf.String("token", "", "Weblate API token")
	pf.String("timeout", "", "HTTP request timeout, e.g. 30s or 30 (default 30s)")
	pf.String("proxy", "", "HTTP/HTTPS proxy URL")
	pf.StringP("output", "o", config.DefaultOutput, "Output format: table, json, yaml")
	pf.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")

	root.AddCommand(
		newSyncCmd(),
		newUpsertCmd(),
		newPruneCmd(),
		newCheckCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logger := newLogger(os.Stderr, zerolog.InfoLevel)
		logger.Error().Msg(err.Error())
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "langsync version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// Shared setup
// ---------------------------------------------------------------------------

// loadConfig merges config file, environment and the command's flags.
// Output format and log level are always validated; with server set, the
// URL and token needed to talk to Weblate are required too.
func loadConfig(cmd *cobra.Command, server bool) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	validate := cfg.Validate
	if server {
		validate = cfg.ValidateServer
	}
	if err := validate(); err != nil {
		return nil, zerolog.Nop(), err
	}
	level, _ := cfg.Level()
	logger := newLogger(cmd.ErrOrStderr(), level)
	if cfg.File != "" {
		logger.Debug().Str("file", cfg.File).Msg("config loaded")
	}
	if cfg.TokenFromStore {
		logger.Debug().Str("server", cfg.URL).Msg("using stored token")
	}
	return cfg, logger, nil
}

func newClient(cfg *config.Config, logger *zerolog.Logger) *weblate.Client {
	return weblate.NewClient(weblate.Options{
		BaseURL:   cfg.URL,
		Token:     cfg.Token,
		Timeout:   cfg.Timeout,
		Proxy:     cfg.Proxy,
		UserAgent: "langsync/" + version,
		Logger:    logger,
	})
}
