package main

import (
	"bufio"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/minios-linux/langsync/config"
	"github.com/minios-linux/langsync/settings"
	"github.com/minios-linux/langsync/weblate"
)

// ---------------------------------------------------------------------------
// auth (manage stored tokens)
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored API tokens",
		Long: `Manage Weblate API tokens stored in the langsync data directory
($XDG_DATA_HOME/langsync/auth.json, mode 0600), one per server.

A stored token is used when neither --token nor LANGSYNC_TOKEN/WEBLATE_API_KEY
is set. Tokens are found on the Weblate profile page under "API access".

Examples:
  langsync auth login --url https://hosted.weblate.org    Prompt for a token
  langsync auth logout --url https://hosted.weblate.org   Remove one token
  langsync auth logout --all                              Remove all tokens
  langsync auth list                                      Show stored tokens`,
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthListCmd(),
	)

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		user     string
		noVerify bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the API token of a server",
		Long: `Store the API token of a Weblate server. The token is taken from --token
or read from stdin. Unless --no-verify is given, the token is tried against
the server first and rejected on 401/403.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			if cfg.URL == "" {
				return config.ErrMissingURL
			}

			token := ""
			if cmd.Flags().Changed("token") {
				token = cfg.Token
			}
			if token == "" {
				existing := settings.Token(cfg.URL)
				errOut := cmd.ErrOrStderr()
				if existing != "" {
					fmt.Fprintf(errOut, "  Current token: %s\n", settings.MaskKey(existing))
					fmt.Fprintf(errOut, "  Enter new token to replace, or press Enter to keep: ")
				} else {
					fmt.Fprintf(errOut, "  Enter API token for %s: ", cfg.URL)
				}

				scanner := bufio.NewScanner(cmd.InOrStdin())
				if !scanner.Scan() {
					return errors.New("no input received")
				}
				token = strings.TrimSpace(scanner.Text())
				if token == "" {
					if existing != "" {
						logger.Info().Msg("keeping existing token")
						return nil
					}
					return errors.New("no API token provided")
				}
			}

			if !noVerify {
				cfg.Token = token
				_, err := newClient(cfg, &logger).Get(cmd.Context(), "en")
				var apiErr *weblate.APIError
				switch {
				case err == nil, errors.Is(err, weblate.ErrNotFound):
				case errors.As(err, &apiErr) && (apiErr.StatusCode == 401 || apiErr.StatusCode == 403):
					return fmt.Errorf("token rejected by %s (HTTP %d)", cfg.URL, apiErr.StatusCode)
				default:
					return fmt.Errorf("verifying token: %w", err)
				}
			}

			if err := settings.SetToken(cfg.URL, token, user); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}
			logger.Info().Str("server", settings.ServerKey(cfg.URL)).Str("token", settings.MaskKey(token)).Msg("token saved")
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Account name to remember with the token")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "Store the token without contacting the server")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			if all {
				if err := settings.RemoveAll(); err != nil {
					return err
				}
				logger.Info().Msg("all tokens removed")
				return nil
			}
			if cfg.URL == "" {
				return errors.New("give --url or --all")
			}
			if settings.Get(cfg.URL) == nil {
				logger.Warn().Str("server", cfg.URL).Msg("no token stored")
				return nil
			}
			if err := settings.Remove(cfg.URL); err != nil {
				return err
			}
			logger.Info().Str("server", settings.ServerKey(cfg.URL)).Msg("token removed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every stored token")

	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			store := settings.Load()
			if len(store) == 0 {
				fmt.Fprintf(out, "No tokens stored (%s)\n", settings.FilePath())
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Server", "User", "Token"})
			for _, server := range slices.Sorted(maps.Keys(store)) {
				info := store[server]
				if info == nil {
					continue
				}
				t.AppendRow(table.Row{server, info.User, settings.MaskKey(info.Key)})
			}
			t.Render()
			fmt.Fprintf(out, "Stored in %s\n", settings.FilePath())
			return nil
		},
	}
}
