// Package domain defines the canonical data model shared by every stage
// of the reconciliation pipeline: SourceRow, CanonicalTxn, QualityScore,
// MatchCandidate, Match, MatchSuggestion, Exception and the Result bundle.
// All types here are treated as immutable once produced by their
// originating stage.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Role identifies which ledger a row or transaction originated from.
type Role string

const (
	RoleGL   Role = "GL"
	RoleBank Role = "BANK"
)

func (r Role) String() string { return string(r) }

// SourceRow is a raw record keyed by (source, row_index), exactly as
// yielded by the Loader. raw_columns preserves the source's declared
// column names verbatim.
type SourceRow struct {
	Source     Role
	RowIndex   int
	RawColumns map[string]string
}

// TxnID returns the stable identifier f"{source}:{row_index}".
func (r *SourceRow) TxnID() string {
	return fmt.Sprintf("%s:%d", r.Source, r.RowIndex)
}

// PartialTxn is the output of C1: a CanonicalTxn whose date, amount,
// description and reference fields are still unparsed strings.
type PartialTxn struct {
	TxnID       string
	Source      Role
	DateRaw     string
	AmountRaw   string
	Description string
	Reference   string
	Original    *SourceRow
}

// QualityScore carries per-record quality indicators computed once by C3.
type QualityScore struct {
	Completeness float64
	Validity     float64
	Consistency  float64
	Overall      float64
}

// CanonicalTxn is the fully cleaned, scored transaction record that
// flows through C3, C4, C5 and C6.
type CanonicalTxn struct {
	TxnID       string
	Source      Role
	Date        time.Time // calendar date, truncated to midnight UTC
	Amount      decimal.Decimal
	Description string
	Reference   string
	Quality     QualityScore
	Original    *SourceRow
}

// MatchCandidate is an ephemeral pairing proposal produced inside C4/C5.
type MatchCandidate struct {
	GLTxnID   string
	BankTxnID string
	Strategy  string
	Score     float64
	Evidence  map[string]float64
}

// Match is a final, accepted pairing.
type Match struct {
	GLTxnID            string
	BankTxnID          string
	Strategy           string
	Confidence         float64
	TolerancesApplied  map[string]float64
	Timestamp          time.Time
}

// MatchSuggestion is a candidate pairing that did not clear the
// auto-match bar; it is surfaced for human review rather than accepted.
type MatchSuggestion struct {
	GLTxnID    string
	BankTxnID  string
	Confidence float64
	Strategy   string
}

// ExceptionCategory is the closed classification set from C6.
type ExceptionCategory string

const (
	CategoryTimingDifference  ExceptionCategory = "TIMING_DIFFERENCE"
	CategoryAmountMismatch    ExceptionCategory = "AMOUNT_MISMATCH"
	CategoryMissingCounterpart ExceptionCategory = "MISSING_COUNTERPART"
	CategoryDuplicateSuspected ExceptionCategory = "DUPLICATE_SUSPECTED"
	CategoryAmbiguousMatch    ExceptionCategory = "AMBIGUOUS_MATCH"
	CategoryDataQuality       ExceptionCategory = "DATA_QUALITY"
	CategoryUnclassified      ExceptionCategory = "UNCLASSIFIED"
)

// Priority is the exception priority level assigned by C6.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MED"
	PriorityHigh   Priority = "HIGH"
)

// Exception is a classified residual.
type Exception struct {
	TxnID       string
	Category    ExceptionCategory
	Priority    Priority
	Suggestions []MatchSuggestion
	Rationale   string
	Amount      decimal.Decimal
}

// AuditEvent records one pipeline stage's execution for the Result's
// audit trail: stage name, input/output sizes, elapsed time, warnings.
type AuditEvent struct {
	Stage     string
	Input     int
	Output    int
	Elapsed   time.Duration
	Warnings  []string
	Timestamp time.Time
}

// SummaryStats is a compact numeric summary of a run.
type SummaryStats struct {
	TotalGL            int
	TotalBank          int
	MatchedCount       int
	SuggestionCount    int
	ExceptionCount     int
	ParseExceptionsGL  int
	ParseExceptionsBank int
	TotalGLAmount      decimal.Decimal
	TotalBankAmount    decimal.Decimal
}

// Result is the orchestrator's sole persistent artefact: the complete,
// atomic output of one reconciliation run.
type Result struct {
	Matches       []Match
	Suggestions   []MatchSuggestion
	Exceptions    []Exception
	ResidualsGL   []CanonicalTxn
	ResidualsBank []CanonicalTxn
	Summary       SummaryStats
	Audit         []AuditEvent

	// Txns indexes every canonical transaction seen this run by TxnID,
	// so Match/Exception can refer to transactions by ID (per
	// SPEC_FULL.md's design note against object cycles) without the
	// Report sink needing to re-walk residual slices to resolve one.
	Txns map[string]CanonicalTxn
}

// ParseException records a single row that failed date or amount
// coercion in C2: the row is ejected here and never enters matching.
type ParseException struct {
	TxnID   string
	Source  Role
	Field   string
	Raw     string
	Reason  string
}
