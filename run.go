package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/minios-linux/langsync/apply"
	"github.com/minios-linux/langsync/backup"
	"github.com/minios-linux/langsync/config"
	"github.com/minios-linux/langsync/pluralrule"
	"github.com/minios-linux/langsync/reconcile"
	"github.com/minios-linux/langsync/report"
	"github.com/minios-linux/langsync/source"
	"github.com/minios-linux/langsync/weblate"
)

// confirmWord must be typed to apply a plan interactively.
const confirmWord = "APPLY"

var (
	errDeclined       = errors.New("aborted: confirmation declined")
	errNotInteractive = errors.New("refusing to apply without confirmation: stdin is not a terminal (use --yes)")
)

// addInputFlags registers the two input files.
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("catalogue", "z", "", "Zanata locales JSON (array of locales)")
	cmd.Flags().StringP("plurals", "p", "", "Plural map JSON (code -> Plural-Forms)")
	cmd.Flags().Bool("catalogue-plurals", false, "Fall back to the catalogue's own pluralForms")
}

// addApplyFlags registers the flags of commands that write to the server.
func addApplyFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("apply", false, "Apply the plan (default: dry run)")
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation before applying")
}

func addExcludeFlag(cmd *cobra.Command) {
	cmd.Flags().StringSlice("exclude", config.DefaultExclude, "Codes that are never deleted")
}

// loadInputs reads the catalogue and the plural map. Both must be given.
func loadInputs(cfg *config.Config, logger *zerolog.Logger) (*source.Catalogue, source.PluralMap, error) {
	if cfg.Catalogue == "" || cfg.Plurals == "" {
		return nil, nil, errors.New("both --catalogue (-z) and --plurals (-p) are required")
	}
	cat, err := source.LoadCatalogue(cfg.Catalogue)
	if err != nil {
		return nil, nil, err
	}
	plurals, err := source.LoadPluralMap(cfg.Plurals)
	if err != nil {
		return nil, nil, err
	}
	for _, code := range cat.Malformed {
		logger.Warn().Str("code", code).Msg("catalogue code is not a valid language tag")
	}
	logger.Info().
		Int("catalogue", len(cat.Locales)).
		Int("plurals", len(plurals)).
		Msg("inputs loaded")
	return cat, plurals, nil
}

// listRemote fetches the server snapshot. A failed page leaves a partial
// snapshot that is still used, with a warning.
func listRemote(ctx context.Context, client *weblate.Client, logger *zerolog.Logger) (map[string]weblate.Language, error) {
	remote, err := client.List(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len(remote) == 0 {
			return nil, fmt.Errorf("listing languages: %w", err)
		}
		logger.Warn().Err(err).Int("collected", len(remote)).Msg("language list is incomplete, continuing with partial snapshot")
	}
	logger.Info().Int("languages", len(remote)).Msg("server snapshot loaded")
	return remote, nil
}

// confirm asks the user to type APPLY. It never prompts when yes is set and
// refuses to run when stdin is a file or pipe.
func confirm(cmd *cobra.Command, yes bool, what string) error {
	if yes {
		return nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !isTerminal(f) {
		return errNotInteractive
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "\n%s. Type %s to continue: ", what, confirmWord)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != confirmWord {
		return errDeclined
	}
	return nil
}

func mutations(plan *reconcile.Plan) int {
	return plan.Count(reconcile.Create) + plan.Count(reconcile.Update) + plan.Count(reconcile.Delete)
}

// execute prints the plan, asks for confirmation when applying and runs it.
func execute(cmd *cobra.Command, cfg *config.Config, logger *zerolog.Logger, client apply.Client, plan *reconcile.Plan, before func() error) error {
	out := cmd.OutOrStdout()
	if err := report.Plan(out, plan, cfg.Output); err != nil {
		return err
	}

	if cfg.Apply && mutations(plan) > 0 {
		if err := confirm(cmd, cfg.Yes, fmt.Sprintf("About to change %d languages on %s", mutations(plan), cfg.URL)); err != nil {
			return err
		}
		if before != nil {
			if err := before(); err != nil {
				return err
			}
		}
	} else if !cfg.Apply {
		logger.Info().Msg("dry run: nothing is written, use --apply to apply the plan")
	}

	exec := &apply.Executor{Client: client, Apply: cfg.Apply, Logger: logger}
	summary, err := exec.Run(cmd.Context(), plan)
	if rerr := report.Summary(out, summary, cfg.Output); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

// ---------------------------------------------------------------------------
// sync
// ---------------------------------------------------------------------------

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the server with the catalogue",
		Long: `Reconcile the Weblate language list with the catalogue.

For every language on the server:
  - matched by code or by one of its aliases: update name and plural rule
    when they differ
  - not matched and excluded: keep
  - otherwise: delete

Every catalogue language the server has neither as code nor as alias is
created, provided a plural rule resolves for it (exact code, then the base
language, e.g. ko for ko_KR).`,
		Example: `  langsync sync -z zanata.json -p zanata-plural.json
  langsync sync -z zanata.json -p zanata-plural.json --apply --exclude en,ko`,
		RunE: runSync,
	}
	addInputFlags(cmd)
	addApplyFlags(cmd)
	addExcludeFlag(cmd)
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	cat, plurals, err := loadInputs(cfg, &logger)
	if err != nil {
		return err
	}

	client := newClient(cfg, &logger)
	remote, err := listRemote(cmd.Context(), client, &logger)
	if err != nil {
		return err
	}

	plan := reconcile.Sync(&reconcile.Input{
		PluralMap:        plurals,
		Catalogue:        cat,
		Remote:           remote,
		Exclude:          reconcile.ExcludeSet(cfg.Exclude),
		CataloguePlurals: cfg.CataloguePlurals,
	})
	return execute(cmd, cfg, &logger, client, plan, nil)
}

// ---------------------------------------------------------------------------
// upsert
// ---------------------------------------------------------------------------

func newUpsertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or update catalogue languages, never delete",
		Long: `Look up every catalogue language on the server one by one: create it when
missing, update name and plural rule when they differ. Nothing is deleted.
Languages without a resolvable plural rule are skipped.`,
		RunE: runUpsert,
	}
	addInputFlags(cmd)
	addApplyFlags(cmd)
	return cmd
}

func runUpsert(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	cat, plurals, err := loadInputs(cfg, &logger)
	if err != nil {
		return err
	}

	client := newClient(cfg, &logger)
	plan, err := reconcile.Upsert(cmd.Context(), client, &reconcile.Input{
		PluralMap:        plurals,
		Catalogue:        cat,
		CataloguePlurals: cfg.CataloguePlurals,
	})
	if err != nil {
		return err
	}
	for _, f := range plan.Failures {
		logger.Warn().Str("code", f.Code).Int("status", f.Status).Msg("lookup failed")
	}
	return execute(cmd, cfg, &logger, client, plan, nil)
}

// ---------------------------------------------------------------------------
// prune
// ---------------------------------------------------------------------------

func newPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete every language except the excluded ones",
		Long: `Delete every language on the server except the excluded ones (default:
en ko). Before applying, all current records are saved to a JSON backup
unless --backup=false.`,
		RunE: runPrune,
	}
	addApplyFlags(cmd)
	addExcludeFlag(cmd)
	cmd.Flags().Bool("backup", true, "Save all languages to a JSON file before deleting")
	cmd.Flags().String("backup-file", backup.DefaultFile, "Backup file path")
	return cmd
}

func runPrune(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}

	client := newClient(cfg, &logger)
	remote, err := listRemote(cmd.Context(), client, &logger)
	if err != nil {
		return err
	}

	plan := reconcile.Prune(remote, reconcile.ExcludeSet(cfg.Exclude))

	var before func() error
	if cfg.Backup {
		before = func() error {
			if err := backup.Write(cfg.BackupFile, remote); err != nil {
				return err
			}
			saved, err := backup.Read(cfg.BackupFile)
			if err != nil {
				return fmt.Errorf("verifying backup: %w", err)
			}
			if len(saved) != len(remote) {
				return fmt.Errorf("verifying backup: %s holds %d languages, want %d", cfg.BackupFile, len(saved), len(remote))
			}
			logger.Info().Str("file", cfg.BackupFile).Int("languages", len(remote)).Msg("backup written")
			return nil
		}
	}
	return execute(cmd, cfg, &logger, client, plan, before)
}

// ---------------------------------------------------------------------------
// check
// ---------------------------------------------------------------------------

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a plural map offline",
		Long: `Parse every entry of the plural map and evaluate its formula for
n = 0..200, reporting entries that do not parse, do not compile or select a
plural form outside [0, nplurals). With --catalogue, catalogue languages for
which no plural rule resolves are reported too. No server access is needed.`,
		RunE: runCheck,
	}
	addInputFlags(cmd)
	return cmd
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	if cfg.Plurals == "" {
		return errors.New("--plurals (-p) is required")
	}
	plurals, err := source.LoadPluralMap(cfg.Plurals)
	if err != nil {
		return err
	}

	var issues []report.Issue
	for _, code := range slices.Sorted(maps.Keys(plurals)) {
		rule, ok := pluralrule.Parse(plurals[code])
		if !ok {
			issues = append(issues, report.Issue{Code: code, Problem: "unparseable: " + plurals[code]})
			continue
		}
		if err := pluralrule.Check(rule); err != nil {
			issues = append(issues, report.Issue{Code: code, Problem: err.Error()})
		}
	}

	if cfg.Catalogue != "" {
		cat, err := source.LoadCatalogue(cfg.Catalogue)
		if err != nil {
			return err
		}
		in := &reconcile.Input{PluralMap: plurals, Catalogue: cat, CataloguePlurals: cfg.CataloguePlurals}
		for _, code := range slices.Sorted(maps.Keys(cat.Locales)) {
			if _, ok := in.Resolve(code); !ok {
				issues = append(issues, report.Issue{Code: code, Problem: "no plural rule resolves (cannot be created)"})
			}
		}
		for _, code := range cat.Malformed {
			issues = append(issues, report.Issue{Code: code, Problem: "not a valid language tag"})
		}
	}

	if err := report.Issues(cmd.OutOrStdout(), issues, cfg.Output); err != nil {
		return err
	}
	logger.Info().Int("entries", len(plurals)).Int("problems", len(issues)).Msg("check finished")
	if len(issues) > 0 {
		return fmt.Errorf("%d problems found", len(issues))
	}
	return nil
}
