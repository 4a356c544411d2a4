// Package classifier implements the Exception Classifier (C6): it
// assigns every residual transaction a single ExceptionCategory via
// ordered first-match-wins rules, a HIGH/MED/LOW priority, and up to
// max_suggestions attached MatchSuggestions.
package classifier

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"smartrecon/internal/domain"
	"smartrecon/internal/obslog"
	"smartrecon/internal/reconconfig"
)

// Classify evaluates every residual GL and Bank record against the
// seven ordered category rules and returns one Exception per record,
// ordered (priority DESC, |amount| DESC, txn_id ASC) per spec.md §5.
//
// asOf is the reference date age is measured against. It is supplied
// by the orchestrator as the maximum transaction date observed across
// the whole run (never wall-clock time, to keep classification
// deterministic — see SPEC_FULL.md §13).
func Classify(
	residualGL, residualBank []domain.CanonicalTxn,
	suggestions []domain.MatchSuggestion,
	cfg *reconconfig.Config,
	asOf time.Time,
) []domain.Exception {
	log := obslog.WithComponent("classifier")

	suggestionsByTxn := groupSuggestions(suggestions)
	dupClustersGL := duplicateClusters(residualGL, cfg)
	dupClustersBank := duplicateClusters(residualBank, cfg)

	exceptions := make([]domain.Exception, 0, len(residualGL)+len(residualBank))
	for _, t := range residualGL {
		exceptions = append(exceptions, classifyOne(t, residualBank, suggestionsByTxn, dupClustersGL, cfg, asOf))
	}
	for _, t := range residualBank {
		exceptions = append(exceptions, classifyOne(t, residualGL, suggestionsByTxn, dupClustersBank, cfg, asOf))
	}

	sort.SliceStable(exceptions, func(i, j int) bool {
		return lessException(exceptions[i], exceptions[j])
	})

	log.WithField("exceptions", len(exceptions)).Debug("classified residuals")
	return exceptions
}

func lessException(a, b domain.Exception) bool {
	pa, pb := priorityRank(a.Priority), priorityRank(b.Priority)
	if pa != pb {
		return pa > pb
	}
	aa, ab := a.Amount.Abs(), b.Amount.Abs()
	if !aa.Equal(ab) {
		return aa.GreaterThan(ab)
	}
	return a.TxnID < b.TxnID
}

func priorityRank(p domain.Priority) int {
	switch p {
	case domain.PriorityHigh:
		return 2
	case domain.PriorityMedium:
		return 1
	default:
		return 0
	}
}

func groupSuggestions(suggestions []domain.MatchSuggestion) map[string][]domain.MatchSuggestion {
	byTxn := make(map[string][]domain.MatchSuggestion)
	for _, s := range suggestions {
		byTxn[s.GLTxnID] = append(byTxn[s.GLTxnID], s)
		byTxn[s.BankTxnID] = append(byTxn[s.BankTxnID], s)
	}
	for _, list := range byTxn {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Confidence > list[j].Confidence })
	}
	return byTxn
}

// duplicateClusters reports, for each txn_id, whether it shares a
// near-duplicate (date, amount, description) key with another record
// in the same source. Amounts are bucketed on exact.amount_tolerance
// (spec.md §4.6 names no dedicated epsilon for this rule, so the
// exact-matcher's amount tolerance is reused rather than inventing a
// new, unconfigurable constant); dates must fall on the same calendar
// day and descriptions must be equal.
func duplicateClusters(txns []domain.CanonicalTxn, cfg *reconconfig.Config) map[string]bool {
	counts := make(map[string]int)
	keyOf := func(t domain.CanonicalTxn) string {
		return duplicateBucketKey(t, cfg)
	}
	for _, t := range txns {
		counts[keyOf(t)]++
	}
	dup := make(map[string]bool, len(txns))
	for _, t := range txns {
		if counts[keyOf(t)] > 1 {
			dup[t.TxnID] = true
		}
	}
	return dup
}

func duplicateBucketKey(t domain.CanonicalTxn, cfg *reconconfig.Config) string {
	amountBucket := roundToTolerance(t.Amount, cfg.ExactAmountTolerance)
	return t.Date.Format("2006-01-02") + "|" + amountBucket + "|" + t.Description
}

func roundToTolerance(amount decimal.Decimal, tolerance float64) string {
	if tolerance <= 0 {
		return amount.StringFixed(2)
	}
	scale := decimal.NewFromFloat(tolerance)
	return amount.Div(scale).Round(0).String()
}

func classifyOne(
	t domain.CanonicalTxn,
	otherSide []domain.CanonicalTxn,
	suggestionsByTxn map[string][]domain.MatchSuggestion,
	dupCluster map[string]bool,
	cfg *reconconfig.Config,
	asOf time.Time,
) domain.Exception {
	own := suggestionsByTxn[t.TxnID]

	category, rationale := categorize(t, otherSide, own, dupCluster, cfg)
	priority := priorityOf(t, asOf, cfg)

	capped := own
	if len(capped) > cfg.ExceptionsMaxSuggestions {
		capped = capped[:cfg.ExceptionsMaxSuggestions]
	}

	return domain.Exception{
		TxnID:       t.TxnID,
		Category:    category,
		Priority:    priority,
		Suggestions: capped,
		Rationale:   rationale,
		Amount:      t.Amount,
	}
}

func categorize(
	t domain.CanonicalTxn,
	otherSide []domain.CanonicalTxn,
	ownSuggestions []domain.MatchSuggestion,
	dupCluster map[string]bool,
	cfg *reconconfig.Config,
) (domain.ExceptionCategory, string) {
	if len(ownSuggestions) > 0 {
		return domain.CategoryAmbiguousMatch, "one or more fuzzy match suggestions were not auto-accepted"
	}
	if dupCluster[t.TxnID] {
		return domain.CategoryDuplicateSuspected, "shares (date, amount, description) with another record in its own source"
	}
	if t.Quality.Overall < cfg.MinQualityForFuzzy {
		return domain.CategoryDataQuality, "quality score below the fuzzy-matching floor"
	}
	if timingCounterpart(t, otherSide, cfg) {
		return domain.CategoryTimingDifference, "matching amount found in the other source outside the exact date tolerance but within the timing window"
	}
	if amountMismatchCounterpart(t, otherSide, cfg) {
		return domain.CategoryAmountMismatch, "matching date found in the other source with amount within the mismatch tolerance"
	}
	if !hasPlausibleCounterpart(t, otherSide, cfg) {
		return domain.CategoryMissingCounterpart, "no plausible counterpart found in the other source"
	}
	return domain.CategoryUnclassified, "residual did not match any exception rule"
}

func timingCounterpart(t domain.CanonicalTxn, other []domain.CanonicalTxn, cfg *reconconfig.Config) bool {
	for _, o := range other {
		if !amountsMatch(t, o, cfg.ExactAmountTolerance) {
			continue
		}
		deltaDays := absDays(t.Date, o.Date)
		if deltaDays > cfg.ExactDateToleranceDays && deltaDays <= cfg.ExceptionsTimingWindowDays {
			return true
		}
	}
	return false
}

func amountMismatchCounterpart(t domain.CanonicalTxn, other []domain.CanonicalTxn, cfg *reconconfig.Config) bool {
	for _, o := range other {
		if !t.Date.Equal(o.Date) {
			continue
		}
		if amountsMatch(t, o, cfg.ExactAmountTolerance) {
			continue // an exact match would already have been paired upstream
		}
		if withinRelativeTolerance(t.Amount, o.Amount, cfg.ExceptionsAmountMismatchTolerance) {
			return true
		}
	}
	return false
}

// hasPlausibleCounterpart is a coarse net: any record in the other
// source within the timing window on date, regardless of amount,
// counts as "plausible" — a record with nothing nearby in time is
// genuinely missing its counterpart rather than merely mismatched.
func hasPlausibleCounterpart(t domain.CanonicalTxn, other []domain.CanonicalTxn, cfg *reconconfig.Config) bool {
	for _, o := range other {
		if absDays(t.Date, o.Date) <= cfg.ExceptionsTimingWindowDays {
			return true
		}
	}
	return false
}

// amountsMatch compares a against b with b sign-inverted when the two
// records come from opposite sources, mirroring the GL-vs-(-Bank)
// convention the exact matcher uses for cross-source amount equality.
func amountsMatch(a, b domain.CanonicalTxn, tolerance float64) bool {
	signed := b.Amount
	if a.Source != b.Source {
		signed = b.Amount.Neg()
	}
	diff := a.Amount.Sub(signed).Abs()
	tol := decimal.NewFromFloat(tolerance)
	return diff.LessThanOrEqual(tol)
}

func withinRelativeTolerance(a, b decimal.Decimal, relTolerance float64) bool {
	signed := b.Neg()
	base := a.Abs()
	if base.IsZero() {
		base = signed.Abs()
	}
	if base.IsZero() {
		return true
	}
	diff := a.Sub(signed).Abs()
	ratio, _ := diff.Div(base).Float64()
	return ratio <= relTolerance
}

func absDays(a, b time.Time) int {
	delta := int(a.Sub(b).Hours() / 24)
	if delta < 0 {
		delta = -delta
	}
	return delta
}

func priorityOf(t domain.CanonicalTxn, asOf time.Time, cfg *reconconfig.Config) domain.Priority {
	amountF, _ := t.Amount.Abs().Float64()
	ageDays := absDays(asOf, t.Date)

	highAmount := amountF >= cfg.ExceptionsHighAmountThreshold
	highAge := float64(ageDays) >= float64(cfg.ExceptionsAgingThresholdDays)
	if highAmount || highAge {
		return domain.PriorityHigh
	}

	nearAmount := amountF >= 0.5*cfg.ExceptionsHighAmountThreshold
	nearAge := float64(ageDays) >= 0.5*float64(cfg.ExceptionsAgingThresholdDays)
	if nearAmount || nearAge {
		return domain.PriorityMedium
	}
	return domain.PriorityLow
}
