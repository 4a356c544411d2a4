// Package cmd implements the SmartRecon CLI: a cobra command tree over
// the reconciliation core, following the teacher's
// cmd/reconciler/cmd's structure (persistent config/verbose flags bound
// through viper, cobra.OnInitialize for config-file loading, a single
// reconcile subcommand carrying the bulk of the flag surface).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"smartrecon/internal/obslog"
	"smartrecon/internal/reconconfig"
	"smartrecon/internal/reconerrs"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	appViper = reconconfig.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "smartrecon",
	Short: "Reconcile a general-ledger export against a bank statement export",
	Long: `SmartRecon is a command-line batch reconciliation tool. It loads a
general-ledger CSV and a bank-statement CSV, normalises both to a common
schema, matches transactions by exact and fuzzy strategies, and classifies
what's left over into prioritised exceptions.

Examples:
  smartrecon reconcile --gl ledger.csv --bank statement.csv
  smartrecon reconcile --gl ledger.csv --bank statement.csv --output-format json
  smartrecon reconcile --gl ledger.csv --bank statement.csv --bank-profile chase`,
	Version: getVersionString(),
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	appViper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile != "" {
		appViper.SetConfigFile(cfgFile)
		if err := appViper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}
		if appViper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", appViper.ConfigFileUsed())
		}
	}

	level := obslog.InfoLevel
	if appViper.GetBool("verbose") {
		level = obslog.DebugLevel
	}
	logCfg := obslog.DefaultConfig()
	logCfg.Level = level
	if logger, err := obslog.New(logCfg); err == nil {
		obslog.SetGlobal(logger)
	}
}

// SetVersionInfo sets the build-time version metadata reported by
// `smartrecon --version`.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}

// ExitCodeFor maps a command error to the process exit code spec.md §6
// defines: 0 success, 2 schema error, 3 parse-exhaustion, 1 everything
// else (config errors, CLI usage errors, unrecognised failures).
func ExitCodeFor(err error) int {
	return reconerrs.ExitCode(err)
}
