package quality

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"smartrecon/internal/domain"
	"smartrecon/internal/reconconfig"
)

func txn(txnID, ref, desc string, amount string, date string) domain.CanonicalTxn {
	d, _ := time.Parse("2006-01-02", date)
	return domain.CanonicalTxn{
		TxnID: txnID, Source: domain.RoleGL, Date: d,
		Amount: decimal.RequireFromString(amount), Description: desc, Reference: ref,
	}
}

func TestScoreFullyCompleteRecordHasCompletenessOne(t *testing.T) {
	cfg := reconconfig.Default()
	txns := []domain.CanonicalTxn{txn("GL:0", "REF1", "payment", "100.00", "2024-01-01")}

	scored := Score(txns, cfg)
	if scored[0].Quality.Completeness != 1.0 {
		t.Fatalf("expected completeness 1.0, got %f", scored[0].Quality.Completeness)
	}
	if scored[0].Quality.Validity != 1.0 {
		t.Fatalf("expected validity 1.0 for a surviving record, got %f", scored[0].Quality.Validity)
	}
}

func TestScoreMissingOptionalFieldsReducesCompleteness(t *testing.T) {
	cfg := reconconfig.Default()
	txns := []domain.CanonicalTxn{txn("GL:0", "", "", "100.00", "2024-01-01")}

	scored := Score(txns, cfg)
	if scored[0].Quality.Completeness != 0.5 {
		t.Fatalf("expected completeness 0.5 (date+amount only), got %f", scored[0].Quality.Completeness)
	}
}

func TestScoreDuplicateKeysReduceConsistency(t *testing.T) {
	cfg := reconconfig.Default()
	txns := []domain.CanonicalTxn{
		txn("GL:0", "REF1", "payment", "100.00", "2024-01-01"),
		txn("GL:1", "REF1", "payment", "100.00", "2024-01-01"),
	}

	scored := Score(txns, cfg)
	if scored[0].Quality.Consistency >= 1.0 {
		t.Fatalf("expected consistency < 1.0 for duplicate keys, got %f", scored[0].Quality.Consistency)
	}
}

func TestScoreOverallIsWeightedMean(t *testing.T) {
	cfg := reconconfig.Default()
	txns := []domain.CanonicalTxn{txn("GL:0", "REF1", "payment", "100.00", "2024-01-01")}

	scored := Score(txns, cfg)
	q := scored[0].Quality
	want := cfg.QualityWeights.Completeness*q.Completeness +
		cfg.QualityWeights.Validity*q.Validity +
		cfg.QualityWeights.Consistency*q.Consistency
	if q.Overall != want {
		t.Fatalf("overall = %f, want weighted mean %f", q.Overall, want)
	}
}
