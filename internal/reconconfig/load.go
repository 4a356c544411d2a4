package reconconfig

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix SmartRecon binds under,
// mirroring the teacher's RECONCILER prefix (cmd/reconciler/cmd/root.go).
const EnvPrefix = "SMARTRECON"

// knownKeys lists every settable configuration key, plus the keys the
// CLI binds from its own flags onto the same viper instance, used to
// detect and warn on keys set in a config file or on v that this
// version does not recognise (spec.md §6: unknown keys warn, not fail).
// Environment variables are only read for keys viper already knows, so
// an unrecognised SMARTRECON_* variable is not detected.
var knownKeys = []string{
	"gl", "bank", "output-format", "output-file", "bank-profile", "progress", "verbose",
	"column_mapping.gl", "column_mapping.bank",
	"sign_convention.gl", "sign_convention.bank",
	"date_formats", "amount_precision", "abbreviations",
	"exact.strategies", "exact.amount_tolerance", "exact.date_tolerance_days",
	"fuzzy.weights", "fuzzy.auto_match_threshold", "fuzzy.review_required_threshold",
	"fuzzy.confidence_epsilon", "fuzzy.amount_bucket", "fuzzy.date_window_days",
	"quality.weights", "min_quality_for_fuzzy",
	"exceptions.high_amount_threshold", "exceptions.aging_threshold_days",
	"exceptions.timing_window_days", "exceptions.amount_mismatch_tolerance",
	"exceptions.max_suggestions",
}

// NewViper builds a *viper.Viper prepared to read SmartRecon
// configuration: env vars under the SMARTRECON_ prefix take precedence
// over a config file, which takes precedence over the schema's
// defaults. Flag binding is left to the CLI layer (cmd/smartrecon),
// which owns the cobra flag set.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadFromViper builds a Config by layering v's bound flags/env/file
// values over Default(), recording any key present in v's settings
// that this schema does not recognise as an UnknownKeyWarnings entry
// rather than failing (spec.md §6).
func LoadFromViper(v *viper.Viper) *Config {
	cfg := Default()

	if m := v.GetStringMapString("column_mapping.gl"); len(m) > 0 {
		cfg.ColumnMappingGL.Explicit = m
	}
	if m := v.GetStringMapString("column_mapping.bank"); len(m) > 0 {
		cfg.ColumnMappingBank.Explicit = m
	}
	if s := v.GetString("sign_convention.gl"); s != "" {
		cfg.SignConventionGL = SignConvention(s)
	}
	if s := v.GetString("sign_convention.bank"); s != "" {
		cfg.SignConventionBank = SignConvention(s)
	}
	if fs := v.GetStringSlice("date_formats"); len(fs) > 0 {
		cfg.DateFormats = fs
	}
	if v.IsSet("amount_precision") {
		cfg.AmountPrecision = int32(v.GetInt("amount_precision"))
	}
	if m := v.GetStringMapString("abbreviations"); len(m) > 0 {
		cfg.Abbreviations = m
	}
	if ss := v.GetStringSlice("exact.strategies"); len(ss) > 0 {
		strategies := make([]ExactStrategy, len(ss))
		for i, s := range ss {
			strategies[i] = ExactStrategy(s)
		}
		cfg.ExactStrategies = strategies
	}
	if v.IsSet("exact.amount_tolerance") {
		cfg.ExactAmountTolerance = v.GetFloat64("exact.amount_tolerance")
	}
	if v.IsSet("exact.date_tolerance_days") {
		cfg.ExactDateToleranceDays = v.GetInt("exact.date_tolerance_days")
	}
	if v.IsSet("fuzzy.weights.amount") {
		cfg.FuzzyWeights.Amount = v.GetFloat64("fuzzy.weights.amount")
	}
	if v.IsSet("fuzzy.weights.date") {
		cfg.FuzzyWeights.Date = v.GetFloat64("fuzzy.weights.date")
	}
	if v.IsSet("fuzzy.weights.description") {
		cfg.FuzzyWeights.Description = v.GetFloat64("fuzzy.weights.description")
	}
	if v.IsSet("fuzzy.weights.reference") {
		cfg.FuzzyWeights.Reference = v.GetFloat64("fuzzy.weights.reference")
	}
	if v.IsSet("fuzzy.auto_match_threshold") {
		cfg.FuzzyAutoMatchThreshold = v.GetFloat64("fuzzy.auto_match_threshold")
	}
	if v.IsSet("fuzzy.review_required_threshold") {
		cfg.FuzzyReviewRequiredThreshold = v.GetFloat64("fuzzy.review_required_threshold")
	}
	if v.IsSet("fuzzy.confidence_epsilon") {
		cfg.FuzzyConfidenceEpsilon = v.GetFloat64("fuzzy.confidence_epsilon")
	}
	if v.IsSet("fuzzy.amount_bucket") {
		cfg.FuzzyAmountBucket = v.GetFloat64("fuzzy.amount_bucket")
	}
	if v.IsSet("fuzzy.date_window_days") {
		cfg.FuzzyDateWindowDays = v.GetInt("fuzzy.date_window_days")
	}
	if v.IsSet("quality.weights.completeness") {
		cfg.QualityWeights.Completeness = v.GetFloat64("quality.weights.completeness")
	}
	if v.IsSet("quality.weights.validity") {
		cfg.QualityWeights.Validity = v.GetFloat64("quality.weights.validity")
	}
	if v.IsSet("quality.weights.consistency") {
		cfg.QualityWeights.Consistency = v.GetFloat64("quality.weights.consistency")
	}
	if v.IsSet("min_quality_for_fuzzy") {
		cfg.MinQualityForFuzzy = v.GetFloat64("min_quality_for_fuzzy")
	}
	if v.IsSet("exceptions.high_amount_threshold") {
		cfg.ExceptionsHighAmountThreshold = v.GetFloat64("exceptions.high_amount_threshold")
	}
	if v.IsSet("exceptions.aging_threshold_days") {
		cfg.ExceptionsAgingThresholdDays = v.GetInt("exceptions.aging_threshold_days")
	}
	if v.IsSet("exceptions.timing_window_days") {
		cfg.ExceptionsTimingWindowDays = v.GetInt("exceptions.timing_window_days")
	}
	if v.IsSet("exceptions.amount_mismatch_tolerance") {
		cfg.ExceptionsAmountMismatchTolerance = v.GetFloat64("exceptions.amount_mismatch_tolerance")
	}
	if v.IsSet("exceptions.max_suggestions") {
		cfg.ExceptionsMaxSuggestions = v.GetInt("exceptions.max_suggestions")
	}

	cfg.UnknownKeyWarnings = unknownKeys(v)
	return cfg
}

func unknownKeys(v *viper.Viper) []string {
	known := make(map[string]bool, len(knownKeys))
	for _, k := range knownKeys {
		known[k] = true
	}
	var warnings []string
	for _, k := range v.AllKeys() {
		if !known[k] && !isKnownPrefix(k, known) {
			warnings = append(warnings, k)
		}
	}
	return warnings
}

func isKnownPrefix(key string, known map[string]bool) bool {
	for k := range known {
		if strings.HasPrefix(key, k+".") {
			return true
		}
	}
	return false
}
