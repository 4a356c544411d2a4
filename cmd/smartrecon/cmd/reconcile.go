package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"smartrecon/internal/domain"
	"smartrecon/internal/obslog"
	"smartrecon/internal/orchestrator"
	"smartrecon/internal/reconconfig"
	"smartrecon/internal/reportsink"
)

var (
	glFile       string
	bankFile     string
	outputFormat string
	outputFile   string
	bankProfile  string
	showProgress bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a general-ledger file against a bank statement file",
	Long: `Reconcile loads the GL file and the bank file, runs them through schema
normalisation, field cleaning, quality scoring, exact and fuzzy matching, and
exception classification, then renders the result.

Examples:
  # Basic reconciliation, console report on stdout
  smartrecon reconcile --gl ledger.csv --bank statement.csv

  # JSON report written to a file
  smartrecon reconcile --gl ledger.csv --bank statement.csv \
    --output-format json --output-file report.json

  # Starter column mapping for a named bank export format
  smartrecon reconcile --gl ledger.csv --bank statement.csv --bank-profile chase`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&glFile, "gl", "", "path to the general-ledger CSV file (required)")
	reconcileCmd.Flags().StringVar(&bankFile, "bank", "", "path to the bank-statement CSV file (required)")
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().StringVar(&bankProfile, "bank-profile", "", "starter column mapping for a named bank export (standard, chase, wells_fargo, bank_of_america)")
	reconcileCmd.Flags().BoolVar(&showProgress, "progress", false, "print a line per pipeline stage as it completes")

	reconcileCmd.MarkFlagRequired("gl")
	reconcileCmd.MarkFlagRequired("bank")

	appViper.BindPFlag("gl", reconcileCmd.Flags().Lookup("gl"))
	appViper.BindPFlag("bank", reconcileCmd.Flags().Lookup("bank"))
	appViper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	appViper.BindPFlag("output-file", reconcileCmd.Flags().Lookup("output-file"))
	appViper.BindPFlag("bank-profile", reconcileCmd.Flags().Lookup("bank-profile"))
	appViper.BindPFlag("progress", reconcileCmd.Flags().Lookup("progress"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	glFile = appViper.GetString("gl")
	bankFile = appViper.GetString("bank")
	outputFormat = appViper.GetString("output-format")
	outputFile = appViper.GetString("output-file")
	bankProfile = appViper.GetString("bank-profile")
	showProgress = appViper.GetBool("progress")

	if glFile == "" {
		return fmt.Errorf("--gl is required")
	}
	if bankFile == "" {
		return fmt.Errorf("--bank is required")
	}
	if err := validateFileExists(glFile, "GL file"); err != nil {
		return err
	}
	if err := validateFileExists(bankFile, "bank file"); err != nil {
		return err
	}

	switch reportsink.OutputFormat(outputFormat) {
	case reportsink.FormatConsole, reportsink.FormatJSON, reportsink.FormatCSV:
	default:
		return fmt.Errorf("invalid output format %q. Valid formats: console, json, csv", outputFormat)
	}

	if bankProfile != "" {
		if _, err := reconconfig.BankProfileByName(bankProfile); err != nil {
			return err
		}
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func validateFileExists(path, description string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, path)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, path)
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	log := obslog.WithComponent("cli")

	cfg := reconconfig.LoadFromViper(appViper)
	if bankProfile != "" {
		profile, err := reconconfig.BankProfileByName(bankProfile)
		if err != nil {
			return err
		}
		cfg.ApplyBankProfile(profile)
	}

	result, err := orchestrator.Run(glFile, bankFile, cfg, reconcileOptions()...)
	if err != nil {
		return err
	}

	for _, warning := range cfg.UnknownKeyWarnings {
		log.WithField("key", warning).Warn("unknown configuration key ignored")
	}

	sinkCfg := reportsink.DefaultConfig()
	sinkCfg.Format = reportsink.OutputFormat(outputFormat)

	out := os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		return reportsink.Render(f, result, sinkCfg)
	}
	return reportsink.Render(out, result, sinkCfg)
}

func reconcileOptions() []orchestrator.Option {
	var opts []orchestrator.Option
	if showProgress {
		opts = append(opts, orchestrator.WithProgress(func(event domain.AuditEvent) {
			fmt.Fprintf(os.Stderr, "  [%s] %d -> %d in %s\n", event.Stage, event.Input, event.Output, event.Elapsed)
		}))
	}
	return opts
}
