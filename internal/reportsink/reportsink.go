// Package reportsink renders a domain.Result to console, JSON, or CSV
// output. It is an external collaborator, not part of the
// reconciliation core: spec.md §6 draws the Report sink's contract at
// "the orchestrator emits a Result; serialisation is external," so
// this package never feeds back into the pipeline and the core never
// imports it.
package reportsink

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"smartrecon/internal/domain"
)

// OutputFormat selects how Render serialises a Result.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// Config controls how much of a Result is rendered and in which format.
type Config struct {
	Format              OutputFormat
	IncludeMatches      bool
	IncludeSuggestions  bool
	IncludeExceptions   bool
	IncludeResiduals    bool
	CSVDelimiter        rune
}

// DefaultConfig renders everything as a console report.
func DefaultConfig() Config {
	return Config{
		Format:             FormatConsole,
		IncludeMatches:     true,
		IncludeSuggestions: true,
		IncludeExceptions:  true,
		IncludeResiduals:   true,
		CSVDelimiter:       ',',
	}
}

func (c Config) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("reportsink: invalid output format %q", c.Format)
	}
	return nil
}

// Render writes result to w according to cfg.Format.
func Render(w io.Writer, result *domain.Result, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	switch cfg.Format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatCSV:
		return renderCSV(w, result, cfg)
	default:
		return renderConsole(w, result, cfg)
	}
}

func renderJSON(w io.Writer, result *domain.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func renderConsole(w io.Writer, result *domain.Result, cfg Config) error {
	fmt.Fprintf(w, "SmartRecon reconciliation summary\n")
	fmt.Fprintf(w, "  GL records:        %d\n", result.Summary.TotalGL)
	fmt.Fprintf(w, "  Bank records:      %d\n", result.Summary.TotalBank)
	fmt.Fprintf(w, "  Matches:           %d\n", result.Summary.MatchedCount)
	fmt.Fprintf(w, "  Suggestions:       %d\n", result.Summary.SuggestionCount)
	fmt.Fprintf(w, "  Exceptions:        %d\n", result.Summary.ExceptionCount)
	fmt.Fprintf(w, "  GL parse drops:    %d\n", result.Summary.ParseExceptionsGL)
	fmt.Fprintf(w, "  Bank parse drops:  %d\n", result.Summary.ParseExceptionsBank)
	fmt.Fprintf(w, "  Total GL amount:   %s\n", result.Summary.TotalGLAmount.StringFixed(2))
	fmt.Fprintf(w, "  Total Bank amount: %s\n", result.Summary.TotalBankAmount.StringFixed(2))

	if cfg.IncludeMatches && len(result.Matches) > 0 {
		fmt.Fprintf(w, "\nMatches:\n")
		for _, m := range result.Matches {
			fmt.Fprintf(w, "  %s <-> %s  [%s] confidence=%.2f\n", m.GLTxnID, m.BankTxnID, m.Strategy, m.Confidence)
		}
	}

	if cfg.IncludeSuggestions && len(result.Suggestions) > 0 {
		fmt.Fprintf(w, "\nSuggestions:\n")
		for _, s := range result.Suggestions {
			fmt.Fprintf(w, "  %s ~ %s  [%s] confidence=%.2f\n", s.GLTxnID, s.BankTxnID, s.Strategy, s.Confidence)
		}
	}

	if cfg.IncludeExceptions && len(result.Exceptions) > 0 {
		fmt.Fprintf(w, "\nExceptions (priority DESC, |amount| DESC, txn_id ASC):\n")
		for _, e := range result.Exceptions {
			fmt.Fprintf(w, "  [%s] %s  %s  amount=%s  %s\n", e.Priority, e.TxnID, e.Category, e.Amount.StringFixed(2), e.Rationale)
		}
	}

	if cfg.IncludeResiduals {
		fmt.Fprintf(w, "\nResiduals: gl=%d bank=%d\n", len(result.ResidualsGL), len(result.ResidualsBank))
	}

	return nil
}

// renderCSV writes one row per exception, the most actionable part of
// a Result for spreadsheet consumption, sorted by txn_id ascending
// (the console report keeps the Result's priority order instead).
func renderCSV(w io.Writer, result *domain.Result, cfg Config) error {
	writer := csv.NewWriter(w)
	writer.Comma = cfg.CSVDelimiter
	defer writer.Flush()

	if err := writer.Write([]string{"txn_id", "category", "priority", "amount", "rationale", "suggestion_count"}); err != nil {
		return err
	}

	exceptions := append([]domain.Exception(nil), result.Exceptions...)
	sort.SliceStable(exceptions, func(i, j int) bool { return exceptions[i].TxnID < exceptions[j].TxnID })

	for _, e := range exceptions {
		row := []string{
			e.TxnID,
			string(e.Category),
			string(e.Priority),
			e.Amount.StringFixed(2),
			e.Rationale,
			fmt.Sprintf("%d", len(e.Suggestions)),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	return writer.Error()
}
