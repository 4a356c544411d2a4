// Package orchestrator implements the Reconciliation Orchestrator
// (C7): it sequences the Loader and the C1–C6 components into one
// atomic, deterministic run and assembles the final domain.Result.
// Rendering the Result is left to the caller (the CLI uses
// internal/reportsink).
package orchestrator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"smartrecon/internal/classifier"
	"smartrecon/internal/cleaner"
	"smartrecon/internal/domain"
	"smartrecon/internal/loader"
	"smartrecon/internal/matcher"
	"smartrecon/internal/normalizer"
	"smartrecon/internal/obslog"
	"smartrecon/internal/quality"
	"smartrecon/internal/reconconfig"
	"smartrecon/internal/reconerrs"
)

// ProgressFunc is an optional per-stage callback. It is never required
// for correctness — Run's return value is always the complete Result —
// and exists purely so a CLI can report progress as stages complete.
type ProgressFunc func(event domain.AuditEvent)

// Option configures a Run.
type Option func(*runConfig)

type runConfig struct {
	onProgress ProgressFunc
	loaderCfg  loader.Config
}

// WithProgress registers a callback invoked once per completed stage,
// in stage order, with the same AuditEvent appended to Result.Audit.
func WithProgress(fn ProgressFunc) Option {
	return func(rc *runConfig) { rc.onProgress = fn }
}

// WithLoaderConfig overrides the CSV loading parameters (delimiter,
// whitespace trimming, empty-row handling).
func WithLoaderConfig(cfg loader.Config) Option {
	return func(rc *runConfig) { rc.loaderCfg = cfg }
}

// runState accumulates AuditEvents across stages and fires the
// optional progress callback. Elapsed time is measured off the
// monotonic clock and excluded from the idempotence contract, along
// with AuditEvent.Timestamp, per spec.md §4.7.
type runState struct {
	onProgress ProgressFunc
	events     []domain.AuditEvent
}

func (rs *runState) record(stage string, input, output int, elapsed time.Duration, warnings []string) {
	event := domain.AuditEvent{
		Stage:     stage,
		Input:     input,
		Output:    output,
		Elapsed:   elapsed,
		Warnings:  warnings,
		Timestamp: time.Now(),
	}
	rs.events = append(rs.events, event)
	if rs.onProgress != nil {
		rs.onProgress(event)
	}
}

// Run executes one complete reconciliation: load both sources, run
// C1–C6 in sequence, and assemble the Result. It either returns a
// fully populated Result or a single fatal error — no partial state is
// ever handed to a caller (spec.md §4.7's atomicity guarantee).
func Run(glPath, bankPath string, cfg *reconconfig.Config, opts ...Option) (*domain.Result, error) {
	rc := &runConfig{loaderCfg: loader.DefaultConfig()}
	for _, opt := range opts {
		opt(rc)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := obslog.WithComponent("orchestrator")
	rs := &runState{onProgress: rc.onProgress}
	if len(cfg.UnknownKeyWarnings) > 0 {
		rs.record("config", 0, 0, 0, cfg.UnknownKeyWarnings)
	}

	glRows, err := stageLoad(rs, "load_gl", glPath, domain.RoleGL, rc.loaderCfg)
	if err != nil {
		return nil, err
	}
	bankRows, err := stageLoad(rs, "load_bank", bankPath, domain.RoleBank, rc.loaderCfg)
	if err != nil {
		return nil, err
	}

	glPartials, err := stageNormalise(rs, "normalize_gl", glRows, domain.RoleGL, cfg)
	if err != nil {
		return nil, err
	}
	bankPartials, err := stageNormalise(rs, "normalize_bank", bankRows, domain.RoleBank, cfg)
	if err != nil {
		return nil, err
	}

	glCanonical, glParseExceptions, err := stageClean(rs, "clean_gl", glPartials, cfg)
	if err != nil {
		return nil, err
	}
	bankCanonical, bankParseExceptions, err := stageClean(rs, "clean_bank", bankPartials, cfg)
	if err != nil {
		return nil, err
	}

	if len(glCanonical) == 0 && len(bankCanonical) == 0 {
		return nil, reconerrs.ParseExhausted("orchestrator", "no rows survived cleaning for either source")
	}

	glScored := stageQuality(rs, "quality_gl", glCanonical, cfg)
	bankScored := stageQuality(rs, "quality_bank", bankCanonical, cfg)

	exactResult := stageExactMatch(rs, glScored, bankScored, cfg)
	fuzzyResult := stageFuzzyMatch(rs, exactResult.ResidualsGL, exactResult.ResidualsBank, cfg)

	asOf := latestDate(glScored, bankScored)
	exceptions := stageClassify(rs, fuzzyResult, cfg, asOf)

	matches := orderMatches(exactResult.Matches, fuzzyResult.Matches, cfg)

	result := &domain.Result{
		Matches:       matches,
		Suggestions:   fuzzyResult.Suggestions,
		Exceptions:    exceptions,
		ResidualsGL:   fuzzyResult.ResidualsGL,
		ResidualsBank: fuzzyResult.ResidualsBank,
		Summary: summarize(glScored, bankScored, matches, fuzzyResult.Suggestions, exceptions,
			glParseExceptions, bankParseExceptions),
		Audit: rs.events,
		Txns:  indexTxns(glScored, bankScored),
	}

	log.WithField("matches", len(matches)).
		WithField("exceptions", len(exceptions)).
		Info("reconciliation run complete")
	return result, nil
}

func stageLoad(rs *runState, stage, path string, role domain.Role, loaderCfg loader.Config) ([]domain.SourceRow, error) {
	start := time.Now()
	rows, err := loader.Load(path, role, loaderCfg)
	if err != nil {
		return nil, err
	}
	rs.record(stage, 0, len(rows), time.Since(start), nil)
	return rows, nil
}

func stageNormalise(rs *runState, stage string, rows []domain.SourceRow, role domain.Role, cfg *reconconfig.Config) (
	[]domain.PartialTxn, error,
) {
	start := time.Now()
	partials, warnings, err := normalizer.Normalise(rows, role, cfg)
	if err != nil {
		return nil, err
	}
	rs.record(stage, len(rows), len(partials), time.Since(start), warnings)
	return partials, nil
}

func stageClean(rs *runState, stage string, partials []domain.PartialTxn, cfg *reconconfig.Config) (
	[]domain.CanonicalTxn, []domain.ParseException, error,
) {
	start := time.Now()
	canonical, parseExceptions, err := cleaner.Clean(partials, cfg)
	if err != nil {
		return nil, nil, err
	}
	warnings := make([]string, len(parseExceptions))
	for i, p := range parseExceptions {
		warnings[i] = p.Reason
	}
	rs.record(stage, len(partials), len(canonical), time.Since(start), warnings)
	return canonical, parseExceptions, nil
}

func stageQuality(rs *runState, stage string, txns []domain.CanonicalTxn, cfg *reconconfig.Config) []domain.CanonicalTxn {
	start := time.Now()
	scored := quality.Score(txns, cfg)
	rs.record(stage, len(txns), len(scored), time.Since(start), nil)
	return scored
}

func stageExactMatch(rs *runState, gl, bank []domain.CanonicalTxn, cfg *reconconfig.Config) matcher.ExactResult {
	start := time.Now()
	result := matcher.MatchExact(gl, bank, cfg)
	rs.record("exact_match", len(gl)+len(bank), len(result.Matches)*2, time.Since(start), result.Warnings)
	return result
}

func stageFuzzyMatch(rs *runState, residualGL, residualBank []domain.CanonicalTxn, cfg *reconconfig.Config) matcher.FuzzyResult {
	start := time.Now()
	result := matcher.MatchFuzzy(residualGL, residualBank, cfg)
	rs.record("fuzzy_match", len(residualGL)+len(residualBank), len(result.Matches)*2, time.Since(start), nil)
	return result
}

func stageClassify(rs *runState, fuzzyResult matcher.FuzzyResult, cfg *reconconfig.Config, asOf time.Time) []domain.Exception {
	start := time.Now()
	exceptions := classifier.Classify(fuzzyResult.ResidualsGL, fuzzyResult.ResidualsBank, fuzzyResult.Suggestions, cfg, asOf)
	rs.record("classify", len(fuzzyResult.ResidualsGL)+len(fuzzyResult.ResidualsBank), len(exceptions), time.Since(start), nil)
	return exceptions
}

// latestDate is the classifier's age-priority reference point: the
// maximum transaction date observed across both sources. Computed from
// the data itself rather than wall-clock time, so priority assignment
// stays deterministic across repeated runs (spec.md §4.7).
func latestDate(gl, bank []domain.CanonicalTxn) time.Time {
	var latest time.Time
	has := false
	for _, t := range gl {
		if !has || t.Date.After(latest) {
			latest, has = t.Date, true
		}
	}
	for _, t := range bank {
		if !has || t.Date.After(latest) {
			latest, has = t.Date, true
		}
	}
	return latest
}

// orderMatches lays out all exact matches in the order their strategy
// was applied (cfg.ExactStrategies), each strategy's own matches
// sorted by (gl_txn_id, bank_txn_id) ascending — never a single sort
// across the whole exact collection, which would let a later-applied
// strategy's lexicographically-smaller txn_id jump ahead of an
// earlier-applied strategy's matches. Fuzzy matches follow, sorted by
// descending confidence with the same txn_id tie-break.
func orderMatches(exact, fuzzy []domain.Match, cfg *reconconfig.Config) []domain.Match {
	byStrategy := make(map[string][]domain.Match, len(cfg.ExactStrategies))
	for _, m := range exact {
		byStrategy[m.Strategy] = append(byStrategy[m.Strategy], m)
	}

	out := make([]domain.Match, 0, len(exact)+len(fuzzy))
	seen := make(map[string]bool, len(cfg.ExactStrategies))
	for _, strategy := range cfg.ExactStrategies {
		key := string(strategy)
		seen[key] = true
		group := byStrategy[key]
		sort.SliceStable(group, func(i, j int) bool { return lessMatchID(group[i], group[j]) })
		out = append(out, group...)
	}

	// Any match whose strategy isn't in cfg.ExactStrategies is appended
	// after the configured groups rather than dropped, so every match
	// is still accounted for even if the config changed after matching.
	var leftover []string
	for key := range byStrategy {
		if !seen[key] {
			leftover = append(leftover, key)
		}
	}
	sort.Strings(leftover)
	for _, key := range leftover {
		group := byStrategy[key]
		sort.SliceStable(group, func(i, j int) bool { return lessMatchID(group[i], group[j]) })
		out = append(out, group...)
	}

	sort.SliceStable(fuzzy, func(i, j int) bool {
		if fuzzy[i].Confidence != fuzzy[j].Confidence {
			return fuzzy[i].Confidence > fuzzy[j].Confidence
		}
		return lessMatchID(fuzzy[i], fuzzy[j])
	})
	out = append(out, fuzzy...)
	return out
}

func lessMatchID(a, b domain.Match) bool {
	if a.GLTxnID != b.GLTxnID {
		return a.GLTxnID < b.GLTxnID
	}
	return a.BankTxnID < b.BankTxnID
}

func indexTxns(gl, bank []domain.CanonicalTxn) map[string]domain.CanonicalTxn {
	idx := make(map[string]domain.CanonicalTxn, len(gl)+len(bank))
	for _, t := range gl {
		idx[t.TxnID] = t
	}
	for _, t := range bank {
		idx[t.TxnID] = t
	}
	return idx
}

func summarize(
	gl, bank []domain.CanonicalTxn,
	matches []domain.Match,
	suggestions []domain.MatchSuggestion,
	exceptions []domain.Exception,
	glParseExceptions, bankParseExceptions []domain.ParseException,
) domain.SummaryStats {
	return domain.SummaryStats{
		TotalGL:             len(gl),
		TotalBank:           len(bank),
		MatchedCount:        len(matches),
		SuggestionCount:     len(suggestions),
		ExceptionCount:      len(exceptions),
		ParseExceptionsGL:   len(glParseExceptions),
		ParseExceptionsBank: len(bankParseExceptions),
		TotalGLAmount:       sumAmounts(gl),
		TotalBankAmount:     sumAmounts(bank),
	}
}

func sumAmounts(txns []domain.CanonicalTxn) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		total = total.Add(t.Amount)
	}
	return total
}
