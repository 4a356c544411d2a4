// Package quality implements the Quality Scorer (C3): it computes a
// per-record completeness/validity/consistency/overall QualityScore,
// gating which records are eligible for fuzzy matching in C5.
package quality

import (
	"fmt"

	"smartrecon/internal/domain"
	"smartrecon/internal/obslog"
	"smartrecon/internal/reconconfig"
)

// Score computes a QualityScore for each txn and returns a new slice of
// scored copies (inputs are never mutated; domain values are
// treated as immutable once produced). Records that already survived
// C2 score validity=1 by construction — any record that failed
// parsing was already ejected to the parse-exception stream.
func Score(txns []domain.CanonicalTxn, cfg *reconconfig.Config) []domain.CanonicalTxn {
	log := obslog.WithComponent("quality")

	duplicateCounts := countDuplicateKeys(txns)
	n := len(txns)

	scored := make([]domain.CanonicalTxn, len(txns))
	for i, t := range txns {
		completeness := completenessOf(t)
		validity := 1.0
		consistency := consistencyOf(t, duplicateCounts, n)
		overall := weightedMean(cfg.QualityWeights, completeness, validity, consistency)

		t.Quality = domain.QualityScore{
			Completeness: completeness,
			Validity:     validity,
			Consistency:  consistency,
			Overall:      overall,
		}
		scored[i] = t
	}

	log.WithField("records", n).Debug("scored canonical transactions")
	return scored
}

// completenessOf reports the fraction of required canonical fields
// (date, amount, description, reference) that are non-empty. Date and
// amount are always present by the time a record reaches C3 (a parse
// failure would have ejected it in C2), so this reduces to whether
// description and reference carry content.
func completenessOf(t domain.CanonicalTxn) float64 {
	required := 4.0
	present := 2.0 // date, amount: guaranteed present post-C2
	if t.Description != "" {
		present++
	}
	if t.Reference != "" {
		present++
	}
	return present / required
}

// duplicateKey returns the (date, amount, reference) key spec.md §4.3
// defines for consistency scoring.
func duplicateKey(t domain.CanonicalTxn) string {
	return fmt.Sprintf("%s|%s|%s", t.Date.Format("2006-01-02"), t.Amount.String(), t.Reference)
}

func countDuplicateKeys(txns []domain.CanonicalTxn) map[string]int {
	counts := make(map[string]int, len(txns))
	for _, t := range txns {
		counts[duplicateKey(t)]++
	}
	return counts
}

// consistencyOf is 1 − (duplicate-key collisions within source) /
// (records in source). A record whose key occurs k>1 times
// contributes (k-1) collisions; the whole-source rate is shared
// across every record from that source, since spec.md §4.3 defines
// consistency as a source-wide rate rather than per-record.
func consistencyOf(t domain.CanonicalTxn, duplicateCounts map[string]int, totalInSource int) float64 {
	if totalInSource == 0 {
		return 1.0
	}
	collisions := 0
	for _, count := range duplicateCounts {
		if count > 1 {
			collisions += count - 1
		}
	}
	return 1.0 - float64(collisions)/float64(totalInSource)
}

func weightedMean(w reconconfig.QualityWeights, completeness, validity, consistency float64) float64 {
	return w.Completeness*completeness + w.Validity*validity + w.Consistency*consistency
}
