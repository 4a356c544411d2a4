// Package reconconfig implements the Configuration source external
// collaborator from spec.md §6: an immutable value object, built once
// by the CLI from flags/env/file via viper (SPEC_FULL.md §10.3), and
// passed by reference through the orchestrator. No component mutates
// it; there is no module-level configuration singleton.
package reconconfig

import (
	"fmt"

	"smartrecon/internal/reconerrs"
)

// SignConvention names which dual-column combination a source's amount
// normalisation uses (spec.md §4.1, Open Question #1 in SPEC_FULL.md §13).
type SignConvention string

const (
	SignConventionDebitCredit       SignConvention = "debit-credit"
	SignConventionDepositWithdrawal SignConvention = "deposit-withdrawal"
)

// RoleMapping holds one source's column mapping: an explicit map from
// canonical field name to the source's declared column name, plus a
// ranked synonym list per canonical field used when the explicit
// mapping omits it (spec.md §4.1).
type RoleMapping struct {
	Explicit map[string]string   // canonical field -> declared column name
	Synonyms map[string][]string // canonical field -> ranked synonym list
}

// ExactStrategy names one of C4's five deterministic matching rules.
type ExactStrategy string

const (
	StrategyReferenceExact  ExactStrategy = "reference_exact"
	StrategyAmountDateExact ExactStrategy = "amount_date_exact"
	StrategyAmountDateDesc  ExactStrategy = "amount_date_desc"
	StrategyCompositeKey    ExactStrategy = "composite_key"
	StrategyAmountDateWindow ExactStrategy = "amount_date_window"
)

// DefaultExactStrategyOrder is the default order from spec.md §4.4.
func DefaultExactStrategyOrder() []ExactStrategy {
	return []ExactStrategy{
		StrategyReferenceExact,
		StrategyAmountDateExact,
		StrategyAmountDateDesc,
		StrategyCompositeKey,
		StrategyAmountDateWindow,
	}
}

// FuzzyWeights are the per-field weights used by C5's confidence score;
// they must sum to 1 (spec.md §6).
type FuzzyWeights struct {
	Amount      float64
	Date        float64
	Description float64
	Reference   float64
}

// QualityWeights are the weights used to compute QualityScore.Overall
// (spec.md §4.3's default 0.4/0.3/0.3).
type QualityWeights struct {
	Completeness float64
	Validity     float64
	Consistency  float64
}

// Config is the complete, typed configuration schema from spec.md §6.
type Config struct {
	ColumnMappingGL   RoleMapping
	ColumnMappingBank RoleMapping

	SignConventionGL   SignConvention
	SignConventionBank SignConvention

	DateFormats   []string
	AmountPrecision int32
	Abbreviations map[string]string

	ExactStrategies       []ExactStrategy
	ExactAmountTolerance  float64
	ExactDateToleranceDays int

	FuzzyWeights               FuzzyWeights
	FuzzyAutoMatchThreshold    float64
	FuzzyReviewRequiredThreshold float64
	FuzzyConfidenceEpsilon     float64
	FuzzyAmountBucket          float64
	FuzzyDateWindowDays        int

	QualityWeights      QualityWeights
	MinQualityForFuzzy  float64

	ExceptionsHighAmountThreshold    float64
	ExceptionsAgingThresholdDays     int
	ExceptionsTimingWindowDays       int
	ExceptionsAmountMismatchTolerance float64
	ExceptionsMaxSuggestions         int

	// UnknownKeyWarnings accumulates "unknown configuration key"
	// audit warnings discovered while loading (spec.md §6: "Unknown
	// keys ⇒ warning in audit, not fatal").
	UnknownKeyWarnings []string
}

// Default returns the configuration schema's documented defaults
// (spec.md §6 table): empty explicit column mappings and a ranked
// synonym list per canonical field for each role, which
// ApplyBankProfile can overlay for the bank side.
func Default() *Config {
	return &Config{
		ColumnMappingGL: RoleMapping{
			Explicit: map[string]string{},
			Synonyms: map[string][]string{
				"date":        {"transaction_date", "posting_date", "date"},
				"amount":      {"amount", "debit", "value"},
				"description": {"description", "memo", "narrative"},
				"reference":   {"reference", "ref", "ref_number"},
				"debit":       {"debit"},
				"credit":      {"credit"},
			},
		},
		ColumnMappingBank: RoleMapping{
			Explicit: map[string]string{},
			Synonyms: map[string][]string{
				"date":        {"value_date", "posting_date", "date"},
				"amount":      {"amount", "withdrawal", "deposit"},
				"description": {"description", "narrative", "details"},
				"reference":   {"reference", "ref", "reference_number"},
				"deposit":     {"deposit"},
				"withdrawal":  {"withdrawal"},
			},
		},
		SignConventionGL:   SignConventionDebitCredit,
		SignConventionBank: SignConventionDepositWithdrawal,
		DateFormats: []string{
			"2006-01-02",
			"01/02/2006",
			"02/01/2006",
			"20060102",
			"02-Jan-2006",
			"2006-01-02T15:04:05Z07:00",
			"2006-01-02 15:04:05",
			"Jan 2, 2006",
			"January 2, 2006",
			"02-01-2006",
			"2006/01/02",
			"01-02-2006",
			"2 January 2006",
			"Jan-02-2006",
			"02 Jan 2006",
		},
		AmountPrecision: 2,
		Abbreviations:   map[string]string{},
		ExactStrategies: DefaultExactStrategyOrder(),
		ExactAmountTolerance: 0.01,
		ExactDateToleranceDays: 0,
		FuzzyWeights: FuzzyWeights{
			Amount: 0.4, Date: 0.3, Description: 0.2, Reference: 0.1,
		},
		FuzzyAutoMatchThreshold:    0.95,
		FuzzyReviewRequiredThreshold: 0.70,
		FuzzyConfidenceEpsilon:     0.02,
		FuzzyAmountBucket:          1.00,
		FuzzyDateWindowDays:        3,
		QualityWeights: QualityWeights{
			Completeness: 0.4, Validity: 0.3, Consistency: 0.3,
		},
		MinQualityForFuzzy: 0.5,
		ExceptionsHighAmountThreshold: 10000,
		ExceptionsAgingThresholdDays:  30,
		ExceptionsTimingWindowDays:    14,
		ExceptionsAmountMismatchTolerance: 0.05,
		ExceptionsMaxSuggestions:      3,
	}
}

// Validate checks the invariants spec.md §7 lists as fatal ConfigError
// causes: weights not summing to 1, unknown strategy name, threshold
// inversion.
func (c *Config) Validate() error {
	if sum := c.FuzzyWeights.Amount + c.FuzzyWeights.Date + c.FuzzyWeights.Description + c.FuzzyWeights.Reference; !approxOne(sum) {
		return reconerrs.Config(fmt.Sprintf("fuzzy.weights must sum to 1, got %f", sum), nil)
	}
	if sum := c.QualityWeights.Completeness + c.QualityWeights.Validity + c.QualityWeights.Consistency; !approxOne(sum) {
		return reconerrs.Config(fmt.Sprintf("quality weights must sum to 1, got %f", sum), nil)
	}
	if len(c.ExactStrategies) == 0 {
		return reconerrs.Config("exact.strategies must not be empty", nil)
	}
	known := map[ExactStrategy]bool{
		StrategyReferenceExact: true, StrategyAmountDateExact: true,
		StrategyAmountDateDesc: true, StrategyCompositeKey: true,
		StrategyAmountDateWindow: true,
	}
	for _, s := range c.ExactStrategies {
		if !known[s] {
			return reconerrs.Config(fmt.Sprintf("unknown exact strategy: %s", s), nil)
		}
	}
	if c.FuzzyReviewRequiredThreshold >= c.FuzzyAutoMatchThreshold {
		return reconerrs.Config(fmt.Sprintf(
			"fuzzy.review_required_threshold (%f) must be < fuzzy.auto_match_threshold (%f)",
			c.FuzzyReviewRequiredThreshold, c.FuzzyAutoMatchThreshold), nil)
	}
	if c.ExactAmountTolerance < 0 || c.FuzzyConfidenceEpsilon < 0 || c.ExceptionsAmountMismatchTolerance < 0 {
		return reconerrs.Config("tolerances must be non-negative", nil)
	}
	if c.AmountPrecision < 0 {
		return reconerrs.Config("amount_precision must be non-negative", nil)
	}
	if len(c.DateFormats) == 0 {
		return reconerrs.Config("date_formats must not be empty", nil)
	}
	return nil
}

func approxOne(v float64) bool {
	const eps = 1e-6
	return v > 1-eps && v < 1+eps
}

// Clone returns a deep copy so a caller can override a few fields
// without aliasing the original (the orchestrator never mutates the
// Config it receives, but CLI-layer overrides build on a copy).
func (c *Config) Clone() *Config {
	cp := *c
	cp.ColumnMappingGL = cloneMapping(c.ColumnMappingGL)
	cp.ColumnMappingBank = cloneMapping(c.ColumnMappingBank)
	cp.DateFormats = append([]string(nil), c.DateFormats...)
	cp.Abbreviations = cloneStringMap(c.Abbreviations)
	cp.ExactStrategies = append([]ExactStrategy(nil), c.ExactStrategies...)
	cp.UnknownKeyWarnings = append([]string(nil), c.UnknownKeyWarnings...)
	return &cp
}

func cloneMapping(m RoleMapping) RoleMapping {
	out := RoleMapping{Explicit: cloneStringMap(m.Explicit), Synonyms: map[string][]string{}}
	for k, v := range m.Synonyms {
		out.Synonyms[k] = append([]string(nil), v...)
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
