// Package matcher implements the Exact Matcher (C4) and Fuzzy Matcher
// (C5). Both operate on residual pools of domain.CanonicalTxn and
// produce domain.Match/domain.MatchSuggestion values without ever
// scanning the full N×M cross product.
package matcher

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"smartrecon/internal/domain"
	"smartrecon/internal/obslog"
	"smartrecon/internal/reconconfig"
)

// AmbiguityHint records a txn left unpaired by a strictly ambiguous
// group, so C6 can attach an AMBIGUOUS_MATCH classification hint.
type AmbiguityHint struct {
	TxnID    string
	Strategy string
}

// ExactResult is C4's complete output.
type ExactResult struct {
	Matches        []domain.Match
	ResidualsGL    []domain.CanonicalTxn
	ResidualsBank  []domain.CanonicalTxn
	AmbiguityHints []AmbiguityHint
	Warnings       []string
}

// MatchExact runs the configured exact-match strategies in order, each
// against the residuals left by the previous one.
func MatchExact(gl, bank []domain.CanonicalTxn, cfg *reconconfig.Config) ExactResult {
	log := obslog.WithComponent("exact_matcher")

	residualGL := append([]domain.CanonicalTxn(nil), gl...)
	residualBank := append([]domain.CanonicalTxn(nil), bank...)

	var result ExactResult

	for _, strategy := range cfg.ExactStrategies {
		matches, remainingGL, remainingBank, hints, warnings := applyStrategy(strategy, residualGL, residualBank, cfg)
		result.Matches = append(result.Matches, matches...)
		result.AmbiguityHints = append(result.AmbiguityHints, hints...)
		result.Warnings = append(result.Warnings, warnings...)
		residualGL = remainingGL
		residualBank = remainingBank

		log.WithField("strategy", strategy).
			WithField("matched", len(matches)).
			WithField("residual_gl", len(residualGL)).
			WithField("residual_bank", len(residualBank)).
			Debug("applied exact-match strategy")
	}

	result.ResidualsGL = residualGL
	result.ResidualsBank = residualBank
	return result
}

func applyStrategy(strategy reconconfig.ExactStrategy, gl, bank []domain.CanonicalTxn, cfg *reconconfig.Config) (
	matches []domain.Match, remainingGL, remainingBank []domain.CanonicalTxn, hints []AmbiguityHint, warnings []string,
) {
	switch strategy {
	case reconconfig.StrategyReferenceExact:
		return matchByKey(strategy, gl, bank, referenceKey, cfg)
	case reconconfig.StrategyAmountDateExact:
		return matchByKey(strategy, gl, bank, amountDateKey, cfg)
	case reconconfig.StrategyAmountDateDesc:
		return matchByKey(strategy, gl, bank, amountDateDescKey, cfg)
	case reconconfig.StrategyCompositeKey:
		return matchByKey(strategy, gl, bank, compositeKey, cfg)
	case reconconfig.StrategyAmountDateWindow:
		return matchAmountDateWindow(gl, bank, cfg)
	default:
		return nil, gl, bank, nil, nil
	}
}

// keyFunc derives a strategy's grouping key for one side's record.
// Keys from opposite sides are compared for pairing using the sign
// inversion spec.md §4.4 requires for amount equality: gl.amount is
// compared to -bank.amount, so amountDateKey and friends key on
// gl.amount / -bank.amount respectively via the side-aware signature.
type keyFunc func(t domain.CanonicalTxn, tolerance float64) (string, bool)

func referenceKey(t domain.CanonicalTxn, _ float64) (string, bool) {
	if t.Reference == "" {
		return "", false
	}
	return t.Reference, true
}

func roundedAmountKey(amount decimal.Decimal, tolerance float64) string {
	// Bucket to the tolerance grid: amounts that round to the same
	// multiple of amount_tolerance share a key (tolerance 0 ⇒ exact
	// cents). Two amounts within tolerance of each other that round to
	// neighbouring multiples (100.00 and 100.01 at 0.01) get different
	// keys and are not grouped.
	if tolerance <= 0 {
		return amount.StringFixed(2)
	}
	scale := decimal.NewFromFloat(tolerance)
	bucket := amount.Div(scale).Round(0)
	return bucket.String()
}

func amountDateKey(t domain.CanonicalTxn, tolerance float64) (string, bool) {
	signed := t.Amount
	if t.Source == domain.RoleBank {
		signed = signed.Neg()
	}
	return fmt.Sprintf("%s|%s", roundedAmountKey(signed, tolerance), t.Date.Format("2006-01-02")), true
}

func amountDateDescKey(t domain.CanonicalTxn, tolerance float64) (string, bool) {
	k, ok := amountDateKey(t, tolerance)
	if !ok {
		return "", false
	}
	return k + "|" + t.Description, true
}

func firstToken(s string) string {
	for i, r := range s {
		if r == ' ' {
			return s[:i]
		}
	}
	return s
}

func compositeKey(t domain.CanonicalTxn, tolerance float64) (string, bool) {
	signed := t.Amount
	if t.Source == domain.RoleBank {
		signed = signed.Neg()
	}
	return fmt.Sprintf("%s|%s|%s|%s",
		t.Date.Format("2006-01-02"), roundedAmountKey(signed, tolerance), t.Reference, firstToken(t.Description)), true
}

// matchByKey groups both sides by keyFn and resolves each group,
// running in O((N+M) log(N+M)) via map grouping plus per-group sorts
// bounded by the group's (typically small) size.
func matchByKey(strategy reconconfig.ExactStrategy, gl, bank []domain.CanonicalTxn, keyFn keyFunc, cfg *reconconfig.Config) (
	[]domain.Match, []domain.CanonicalTxn, []domain.CanonicalTxn, []AmbiguityHint, []string,
) {
	glGroups := groupBy(gl, keyFn, cfg.ExactAmountTolerance)
	bankGroups := groupBy(bank, keyFn, cfg.ExactAmountTolerance)

	usedGL := make(map[string]bool)
	usedBank := make(map[string]bool)
	var matches []domain.Match
	var hints []AmbiguityHint
	var warnings []string

	keys := make([]string, 0, len(glGroups))
	for k := range glGroups {
		if _, ok := bankGroups[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		glCands := glGroups[key]
		bankCands := bankGroups[key]
		resolved, groupHints := resolveGroup(string(strategy), glCands, bankCands)
		for _, m := range resolved {
			matches = append(matches, m)
			usedGL[m.GLTxnID] = true
			usedBank[m.BankTxnID] = true
		}
		if len(groupHints) > 0 {
			hints = append(hints, groupHints...)
			warnings = append(warnings, fmt.Sprintf("%s: ambiguous group at key %q left %d candidates unpaired", strategy, key, len(groupHints)))
		}
	}

	return matches, filterUnused(gl, usedGL), filterUnused(bank, usedBank), hints, warnings
}

func groupBy(txns []domain.CanonicalTxn, keyFn keyFunc, tolerance float64) map[string][]domain.CanonicalTxn {
	groups := make(map[string][]domain.CanonicalTxn)
	for _, t := range txns {
		key, ok := keyFn(t, tolerance)
		if !ok {
			continue
		}
		groups[key] = append(groups[key], t)
	}
	return groups
}

func filterUnused(txns []domain.CanonicalTxn, used map[string]bool) []domain.CanonicalTxn {
	out := make([]domain.CanonicalTxn, 0, len(txns))
	for _, t := range txns {
		if !used[t.TxnID] {
			out = append(out, t)
		}
	}
	return out
}

// resolveGroup pairs a key-group's candidates. The trivial 1:1 case
// always pairs. A group where both sides have more than one candidate
// is strictly ambiguous (no configured field distinguishes any pair,
// since they all share the grouping key already) and produces no
// matches. A group with exactly one multi-candidate side resolves via
// secondary scoring (count of additional exactly-matching fields) with
// lexicographic txn_id as the final tie-break — but only when that
// scoring actually distinguishes a unique winner. Two candidates on the
// multi side that tie on every configured field (e.g. true duplicate
// source rows) are indistinguishable by definition and must not be
// arbitrarily broken by txn_id, per spec.md §8's duplicate-source
// boundary behaviour: they stay ambiguous instead.
func resolveGroup(strategy string, glCands, bankCands []domain.CanonicalTxn) ([]domain.Match, []AmbiguityHint) {
	if len(glCands) == 1 && len(bankCands) == 1 {
		return []domain.Match{buildMatch(strategy, glCands[0], bankCands[0])}, nil
	}
	if len(glCands) > 1 && len(bankCands) > 1 {
		return nil, ambiguityHints(strategy, glCands, bankCands)
	}

	// Exactly one side has multiple candidates: pick the best partner
	// by secondary score, tie-broken lexicographically by txn_id —
	// unless the top two candidates tie on score too, in which case
	// nothing actually distinguishes them.
	type pair struct {
		gl, bank domain.CanonicalTxn
		score    int
	}
	var pairs []pair
	for _, g := range glCands {
		for _, b := range bankCands {
			pairs = append(pairs, pair{g, b, secondaryScore(g, b)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score > pairs[j].score
		}
		if pairs[i].gl.TxnID != pairs[j].gl.TxnID {
			return pairs[i].gl.TxnID < pairs[j].gl.TxnID
		}
		return pairs[i].bank.TxnID < pairs[j].bank.TxnID
	})

	best := pairs[0]
	if len(pairs) > 1 && pairs[1].score == best.score {
		return nil, ambiguityHints(strategy, glCands, bankCands)
	}
	return []domain.Match{buildMatch(strategy, best.gl, best.bank)}, nil
}

func secondaryScore(gl, bank domain.CanonicalTxn) int {
	score := 0
	if gl.Description == bank.Description {
		score++
	}
	if gl.Reference != "" && gl.Reference == bank.Reference {
		score++
	}
	if gl.Date.Equal(bank.Date) {
		score++
	}
	return score
}

func ambiguityHints(strategy string, glCands, bankCands []domain.CanonicalTxn) []AmbiguityHint {
	hints := make([]AmbiguityHint, 0, len(glCands)+len(bankCands))
	for _, g := range glCands {
		hints = append(hints, AmbiguityHint{TxnID: g.TxnID, Strategy: strategy})
	}
	for _, b := range bankCands {
		hints = append(hints, AmbiguityHint{TxnID: b.TxnID, Strategy: strategy})
	}
	return hints
}

func buildMatch(strategy string, gl, bank domain.CanonicalTxn) domain.Match {
	return domain.Match{
		GLTxnID:   gl.TxnID,
		BankTxnID: bank.TxnID,
		Strategy:  strategy,
		Confidence: 1.0,
		TolerancesApplied: map[string]float64{},
	}
}

// matchAmountDateWindow is strategy 5: like amountDateKey but within
// date_tolerance_days rather than requiring equal dates, so it cannot
// use a single grouping key — it buckets by amount only, then scans
// each amount bucket's small candidate set for a date within window.
func matchAmountDateWindow(gl, bank []domain.CanonicalTxn, cfg *reconconfig.Config) (
	[]domain.Match, []domain.CanonicalTxn, []domain.CanonicalTxn, []AmbiguityHint, []string,
) {
	strategy := string(reconconfig.StrategyAmountDateWindow)
	amountKeyOf := func(t domain.CanonicalTxn) string {
		signed := t.Amount
		if t.Source == domain.RoleBank {
			signed = signed.Neg()
		}
		return roundedAmountKey(signed, cfg.ExactAmountTolerance)
	}

	glByAmount := make(map[string][]domain.CanonicalTxn)
	for _, t := range gl {
		glByAmount[amountKeyOf(t)] = append(glByAmount[amountKeyOf(t)], t)
	}
	bankByAmount := make(map[string][]domain.CanonicalTxn)
	for _, t := range bank {
		bankByAmount[amountKeyOf(t)] = append(bankByAmount[amountKeyOf(t)], t)
	}

	usedGL := make(map[string]bool)
	usedBank := make(map[string]bool)
	var matches []domain.Match
	var hints []AmbiguityHint
	var warnings []string

	keys := make([]string, 0, len(glByAmount))
	for k := range glByAmount {
		if _, ok := bankByAmount[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	dayTol := cfg.ExactDateToleranceDays
	for _, key := range keys {
		resolved, groupHints := resolveWindowBucket(glByAmount[key], bankByAmount[key], strategy, dayTol)
		for _, m := range resolved {
			matches = append(matches, m)
			usedGL[m.GLTxnID] = true
			usedBank[m.BankTxnID] = true
		}
		if len(groupHints) > 0 {
			hints = append(hints, groupHints...)
			warnings = append(warnings, fmt.Sprintf("%s: ambiguous candidates at key %q left %d candidates unpaired", strategy, key, len(groupHints)))
		}
	}

	return matches, filterUnused(gl, usedGL), filterUnused(bank, usedBank), hints, warnings
}

func withinDays(a, b time.Time, tolerance int) bool {
	delta := int(a.Sub(b).Hours() / 24)
	if delta < 0 {
		delta = -delta
	}
	return delta <= tolerance
}

// resolveWindowBucket pairs an amount bucket's GL and Bank records
// using each record's own direct within-window candidate set, per
// spec.md §4.4's ambiguity test, instead of transitively unioning the
// whole bucket into connected components first. Date proximity is not
// transitive (g1 near b1 and b1 near g2 says nothing about g1's
// distance from g2's own partner b2), so a chain of direct pairs can
// share an intermediate record without every member of the chain
// actually contending for the same partner.
//
// A pair is accepted outright when it is mutual: g's only candidate is
// b, and b's only candidate is g. A one-sided star (one record with
// several direct candidates, none of which reaches any other record)
// resolves the same way matchByKey resolves a one-sided group: the
// unique top secondary score pairs, and a tie on the top score leaves
// the star unpaired with ambiguity hints. Anything left — a
// record with more than one direct candidate, or whose sole candidate
// is itself contested — surfaces an ambiguity hint instead of forcing
// every record in its chain to be rejected wholesale.
func resolveWindowBucket(gl, bank []domain.CanonicalTxn, strategy string, dayTolerance int) ([]domain.Match, []AmbiguityHint) {
	bankCandidatesOf := make(map[string][]domain.CanonicalTxn, len(gl))
	glCandidatesOf := make(map[string][]domain.CanonicalTxn, len(bank))
	for _, g := range gl {
		for _, b := range bank {
			if withinDays(g.Date, b.Date, dayTolerance) {
				bankCandidatesOf[g.TxnID] = append(bankCandidatesOf[g.TxnID], b)
				glCandidatesOf[b.TxnID] = append(glCandidatesOf[b.TxnID], g)
			}
		}
	}

	sortedGL := append([]domain.CanonicalTxn(nil), gl...)
	sort.Slice(sortedGL, func(i, j int) bool { return sortedGL[i].TxnID < sortedGL[j].TxnID })
	sortedBank := append([]domain.CanonicalTxn(nil), bank...)
	sort.Slice(sortedBank, func(i, j int) bool { return sortedBank[i].TxnID < sortedBank[j].TxnID })

	matchedGL := make(map[string]bool, len(gl))
	matchedBank := make(map[string]bool, len(bank))
	var matches []domain.Match

	// Pass 1: trivial mutual 1:1 pairs.
	for _, g := range sortedGL {
		cands := bankCandidatesOf[g.TxnID]
		if len(cands) != 1 {
			continue
		}
		b := cands[0]
		if len(glCandidatesOf[b.TxnID]) != 1 {
			continue
		}
		matches = append(matches, buildMatch(strategy, g, b))
		matchedGL[g.TxnID] = true
		matchedBank[b.TxnID] = true
	}

	// A star is "clean" when none of its leaves reaches outside the
	// star, meaning the star could never have been part of a larger
	// chain in the first place.
	cleanStarOnBank := func(b domain.CanonicalTxn) bool {
		for _, g := range glCandidatesOf[b.TxnID] {
			if len(bankCandidatesOf[g.TxnID]) != 1 {
				return false
			}
		}
		return true
	}
	cleanStarOnGL := func(g domain.CanonicalTxn) bool {
		for _, b := range bankCandidatesOf[g.TxnID] {
			if len(glCandidatesOf[b.TxnID]) != 1 {
				return false
			}
		}
		return true
	}

	// Pass 2: genuine one-sided stars, resolved by secondary score.
	for _, b := range sortedBank {
		if matchedBank[b.TxnID] {
			continue
		}
		cands := glCandidatesOf[b.TxnID]
		if len(cands) < 2 || !cleanStarOnBank(b) {
			continue
		}
		resolved, _ := resolveGroup(strategy, cands, []domain.CanonicalTxn{b})
		for _, m := range resolved {
			matches = append(matches, m)
			matchedGL[m.GLTxnID] = true
			matchedBank[m.BankTxnID] = true
		}
	}
	for _, g := range sortedGL {
		if matchedGL[g.TxnID] {
			continue
		}
		cands := bankCandidatesOf[g.TxnID]
		if len(cands) < 2 || !cleanStarOnGL(g) {
			continue
		}
		resolved, _ := resolveGroup(strategy, []domain.CanonicalTxn{g}, cands)
		for _, m := range resolved {
			matches = append(matches, m)
			matchedGL[m.GLTxnID] = true
			matchedBank[m.BankTxnID] = true
		}
	}

	var hints []AmbiguityHint
	for _, g := range gl {
		if !matchedGL[g.TxnID] && len(bankCandidatesOf[g.TxnID]) > 0 {
			hints = append(hints, AmbiguityHint{TxnID: g.TxnID, Strategy: strategy})
		}
	}
	for _, b := range bank {
		if !matchedBank[b.TxnID] && len(glCandidatesOf[b.TxnID]) > 0 {
			hints = append(hints, AmbiguityHint{TxnID: b.TxnID, Strategy: strategy})
		}
	}
	return matches, hints
}
