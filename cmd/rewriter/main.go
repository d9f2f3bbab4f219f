// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mdhender/rewriter"
	"github.com/mdhender/rewriter/config"
	"github.com/mdhender/rewriter/rewrite"
	"github.com/mdhender/rewriter/rules"
	store "github.com/mdhender/rewriter/stores/sqlite"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func main() {
	os.Exit(execute(newRootCommand()))
}

// execute runs the command and logs the error, if any. It returns the
// process exit status.
func execute(cmdRoot *cobra.Command) int {
	if err := cmdRoot.Execute(); err != nil {
		log.Printf("rewriter: %v\n", err)
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	addFlags := func(cmd *cobra.Command) error {
		cmd.PersistentFlags().Bool("debug", false, "log debugging information")
		cmd.PersistentFlags().Bool("log-with-default-flags", false, "log with default flags")
		cmd.PersistentFlags().Bool("log-with-shortfile", true, "log with short file name")
		cmd.PersistentFlags().Bool("log-with-timestamp", false, "log with timestamp")
		cmd.PersistentFlags().Bool("quiet", false, "log less information")
		cmd.PersistentFlags().String("rules-file", "", "load additional rules from a YAML file")
		cmd.PersistentFlags().Bool("show-version", false, "show version")
		cmd.PersistentFlags().Bool("verbose", false, "log more information")
		return nil
	}
	var cmdRoot = &cobra.Command{
		Use:   "rewriter",
		Short: "rewrite lines of source text into a new syntax",
		Long:  `Rewrite C++ opcode tables and palette initializers, or any line format described by a rule, into a new target syntax.`,
		// errors are logged by execute
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logWithDefaultFlags, _ := cmd.Flags().GetBool("log-with-default-flags")
			logWithShortFileName, _ := cmd.Flags().GetBool("log-with-shortfile")
			logWithTimestamp, _ := cmd.Flags().GetBool("log-with-timestamp")
			logFlags := 0
			if logWithShortFileName {
				logFlags |= log.Lshortfile
			}
			if logWithTimestamp {
				logFlags |= log.Ltime
			}
			if logWithDefaultFlags || logFlags == 0 {
				logFlags = log.LstdFlags
			}
			log.SetFlags(logFlags)

			if showVersion, _ := cmd.Flags().GetBool("show-version"); showVersion {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "rewriter: version %q\n", rewriter.Version().Core())
			}

			return nil
		},
	}
	cmdRoot.AddCommand(cmdRewrite())
	cmdRoot.AddCommand(cmdRules())
	cmdRoot.AddCommand(cmdHistory())
	cmdRoot.AddCommand(cmdInitDB())
	cmdRoot.AddCommand(cmdCompactDB())
	cmdRoot.AddCommand(cmdVersion())
	if err := addFlags(cmdRoot); err != nil {
		log.Fatal(err)
	}
	return cmdRoot
}

func cmdRewrite() *cobra.Command {
	ruleName := "lookup"
	autoEOL := true
	appendOutput := false
	check := false
	dropUnmatched := false
	var ledgerFile string
	addFlags := func(cmd *cobra.Command) error {
		cmd.Flags().StringVarP(&ruleName, "rule", "r", ruleName, "name of the rule to apply")
		cmd.Flags().BoolVar(&autoEOL, "auto-eol", autoEOL, "automatically convert line endings")
		cmd.Flags().BoolVar(&appendOutput, "append", appendOutput, "append to the output instead of replacing it")
		cmd.Flags().BoolVar(&check, "check", check, "fail if the output file is not up to date (output is not written)")
		cmd.Flags().BoolVar(&dropUnmatched, "drop-unmatched", dropUnmatched, "omit output lines for input lines with no match")
		cmd.Flags().StringVar(&ledgerFile, "ledger", ledgerFile, "record the run in a ledger database")
		return nil
	}
	var cmd = &cobra.Command{
		Use:          "rewrite [<input-file> [<output-file>]]",
		Short:        "rewrite every line of the input file using a rule",
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			quiet, _ := cmd.Flags().GetBool("quiet")
			verbose, _ := cmd.Flags().GetBool("verbose")
			debug, _ := cmd.Flags().GetBool("debug")
			if quiet {
				verbose = false
			}

			reg, err := loadRules(cmd)
			if err != nil {
				return err
			}
			rule, ok := reg.Get(ruleName)
			if !ok {
				return fmt.Errorf("rewrite: unknown rule %q (see the rules command)", ruleName)
			}

			input, output := rule.Input, rule.Output
			if len(args) > 0 {
				input = args[0]
			}
			if len(args) > 1 {
				output = args[1]
			}
			if input == "" || output == "" {
				return fmt.Errorf("rewrite: rule %q has no default paths; name the input and output files", rule.Name)
			}

			policy := rewrite.Truncate
			if appendOutput {
				policy = rewrite.Append
			}
			rw, err := rewrite.New(rule,
				rewrite.WithPolicy(policy),
				rewrite.WithAutoEOL(autoEOL),
				rewrite.WithDropUnmatched(dropUnmatched),
				rewrite.WithLogger(newLogger(quiet, verbose, debug)),
			)
			if err != nil {
				return err
			}

			started := time.Now()
			var result *rewrite.Result
			if check {
				result, err = rw.Check(ctx, input, output)
			} else {
				result, err = rw.Run(ctx, input, output)
			}

			if ledgerFile != "" {
				run := &store.Run{
					Rule:         rule.Name,
					Input:        input,
					Output:       output,
					Policy:       policy.String(),
					StartedAt:    started,
					FinishedAt:   time.Now(),
					ErrorCode:    rewrite.ErrorCode(err),
					ErrorMessage: errorMessage(err),
				}
				if check {
					run.Policy = "check"
					reportLastRun(ctx, ledgerFile, output, err)
				}
				if result != nil {
					run.Lines, run.Records, run.Unmatched = result.Lines, result.Records, result.Unmatched
					run.Bytes, run.Digest = result.Bytes, result.Digest
				}
				if lerr := recordRun(ctx, ledgerFile, run); lerr != nil {
					log.Printf("ledger: %v\n", lerr)
				} else if debug {
					log.Printf("ledger: %s: recorded run %d\n", ledgerFile, run.ID)
				}
			}
			if err != nil {
				return err
			}

			if !quiet {
				log.Printf("%s: %d lines, %d records, %d unmatched in %v\n", output, result.Lines, result.Records, result.Unmatched, time.Since(started))
			}
			return nil
		},
	}
	if err := addFlags(cmd); err != nil {
		log.Fatal(err)
	}
	return cmd
}

func recordRun(ctx context.Context, path string, run *store.Run) error {
	s, err := store.NewSQLiteStoreWithConfig(store.StoreConfig{Path: path, InitSchema: true})
	if err != nil {
		return err
	}
	defer s.Close()
	_, err = s.InsertRun(ctx, run)
	return err
}

// reportLastRun logs how a stale output compares with the last run the
// ledger recorded for it.
func reportLastRun(ctx context.Context, path, output string, err error) {
	var stale *rewrite.ErrStaleOutput
	if !errors.As(err, &stale) {
		return
	}
	last, lerr := lastRunFor(ctx, path, output)
	if lerr != nil {
		log.Printf("ledger: %v\n", lerr)
		return
	} else if last == nil {
		log.Printf("ledger: %s: no run recorded\n", output)
		return
	}
	if last.Digest == stale.Have {
		log.Printf("ledger: %s: written by run %d at %s, input has changed since\n", output, last.ID, last.FinishedAt.Local().Format(time.DateTime))
	} else {
		log.Printf("ledger: %s: modified since run %d at %s (digest %s)\n", output, last.ID, last.FinishedAt.Local().Format(time.DateTime), last.Digest)
	}
}

func lastRunFor(ctx context.Context, path, output string) (*store.Run, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	s, err := store.NewSQLiteStoreWithConfig(store.StoreConfig{Path: path})
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.LastRunFor(ctx, output)
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func cmdRules() *cobra.Command {
	var cmd = &cobra.Command{
		Use:          "rules",
		Short:        "list the rules that can be applied",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRules(cmd)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintf(tw, "NAME\tGROUPS\tINPUT\tOUTPUT\tTEMPLATE\n")
			for _, name := range reg.Names() {
				rule, _ := reg.Get(name)
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%q\n", rule.Name, rule.Groups(), rule.Input, rule.Output, rule.Template())
			}
			return tw.Flush()
		},
	}
	return cmd
}

func cmdHistory() *cobra.Command {
	var ledgerFile, outputFile string
	limit := 20
	addFlags := func(cmd *cobra.Command) error {
		cmd.Flags().StringVar(&ledgerFile, "ledger", ledgerFile, "ledger database to read")
		cmd.Flags().IntVarP(&limit, "limit", "n", limit, "number of runs to show (0 for all)")
		cmd.Flags().StringVar(&outputFile, "output", outputFile, "show only the last successful run that wrote this file")
		return cmd.MarkFlagRequired("ledger")
	}
	var cmd = &cobra.Command{
		Use:          "history",
		Short:        "show recorded rewrite runs, newest first",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.NewSQLiteStoreWithConfig(store.StoreConfig{Path: ledgerFile})
			if err != nil {
				return err
			}
			defer s.Close()

			var runs []*store.Run
			if outputFile != "" {
				run, err := s.LastRunFor(cmd.Context(), outputFile)
				if err != nil {
					return err
				} else if run == nil {
					return fmt.Errorf("history: %s: no successful run recorded", outputFile)
				}
				runs = append(runs, run)
			} else if runs, err = s.ListRuns(cmd.Context(), limit); err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
	if err := addFlags(cmd); err != nil {
		log.Fatal(err)
	}
	return cmd
}

func printRuns(w io.Writer, runs []*store.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID\tSTARTED\tRULE\tPOLICY\tOUTPUT\tLINES\tRECORDS\tSTATUS\tDIGEST\n")
	for _, run := range runs {
		status := "ok"
		if run.Failed() {
			status = run.ErrorCode
		}
		digest := run.Digest
		if len(digest) > 12 {
			digest = digest[:12]
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			run.ID, run.StartedAt.Local().Format(time.DateTime), run.Rule, run.Policy, run.Output,
			run.Lines, run.Records, status, digest)
	}
	return tw.Flush()
}

func cmdInitDB() *cobra.Command {
	var cmd = &cobra.Command{
		Use:          "init-db <ledger-file>",
		Short:        "create a new ledger database",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.InitDatabase(args[0]); err != nil {
				return err
			}
			log.Printf("%s: created ledger\n", args[0])
			return nil
		},
	}
	return cmd
}

func cmdCompactDB() *cobra.Command {
	var cmd = &cobra.Command{
		Use:          "compact-db <ledger-file>",
		Short:        "compact a ledger database into a single file",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.CompactDatabase(args[0]); err != nil {
				return err
			}
			log.Printf("%s: compacted\n", args[0])
			return nil
		},
	}
	return cmd
}

func cmdVersion() *cobra.Command {
	showBuildInfo := false
	addFlags := func(cmd *cobra.Command) error {
		cmd.Flags().BoolVar(&showBuildInfo, "build-info", showBuildInfo, "show build information")
		return nil
	}
	var cmd = &cobra.Command{
		Use:   "version",
		Short: "display the application's version number",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showBuildInfo {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), rewriter.Version().String())
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), rewriter.Version().Core())
			return nil
		},
	}
	if err := addFlags(cmd); err != nil {
		log.Fatal(err)
	}
	return cmd
}

// loadRules returns the built-in rules plus any from --rules-file.
func loadRules(cmd *cobra.Command) (*rules.Registry, error) {
	reg := rules.Builtins()
	rulesFile, _ := cmd.Flags().GetString("rules-file")
	if rulesFile == "" {
		return reg, nil
	}
	f, err := config.Load(afero.NewOsFs(), rulesFile)
	if err != nil {
		return nil, err
	}
	return f.Registry(reg)
}

// newLogger returns the logger handed to the rewriter. Library messages
// go to stderr through slog; the command's own messages use log.
func newLogger(quiet, verbose, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	} else if verbose {
		level = slog.LevelInfo
	} else if quiet {
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
