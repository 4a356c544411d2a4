package classifier

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"smartrecon/internal/domain"
	"smartrecon/internal/reconconfig"
)

func exTxn(id string, role domain.Role, date, amount string, desc string, quality float64) domain.CanonicalTxn {
	d, _ := time.Parse("2006-01-02", date)
	return domain.CanonicalTxn{
		TxnID: id, Source: role, Date: d,
		Amount: decimal.RequireFromString(amount), Description: desc,
		Quality: domain.QualityScore{Overall: quality},
	}
}

func TestClassifyAmbiguousMatchTakesPriorityOverEverythingElse(t *testing.T) {
	cfg := reconconfig.Default()
	gl := []domain.CanonicalTxn{exTxn("GL:0", domain.RoleGL, "2024-01-01", "100.00", "a", 0.9)}
	suggestions := []domain.MatchSuggestion{{GLTxnID: "GL:0", BankTxnID: "BANK:9", Confidence: 0.8, Strategy: "fuzzy"}}

	exceptions := Classify(gl, nil, suggestions, cfg, mustDate("2024-01-01"))
	if len(exceptions) != 1 {
		t.Fatalf("expected 1 exception, got %d", len(exceptions))
	}
	if exceptions[0].Category != domain.CategoryAmbiguousMatch {
		t.Fatalf("expected AMBIGUOUS_MATCH, got %s", exceptions[0].Category)
	}
	if len(exceptions[0].Suggestions) != 1 {
		t.Fatalf("expected the suggestion to be attached")
	}
}

func TestClassifyDuplicateSuspected(t *testing.T) {
	cfg := reconconfig.Default()
	gl := []domain.CanonicalTxn{
		exTxn("GL:0", domain.RoleGL, "2024-01-01", "100.00", "payment", 0.9),
		exTxn("GL:1", domain.RoleGL, "2024-01-01", "100.00", "payment", 0.9),
	}

	exceptions := Classify(gl, nil, nil, cfg, mustDate("2024-01-01"))
	for _, e := range exceptions {
		if e.Category != domain.CategoryDuplicateSuspected {
			t.Fatalf("expected DUPLICATE_SUSPECTED for %s, got %s", e.TxnID, e.Category)
		}
	}
}

func TestClassifyDataQualityBelowFloor(t *testing.T) {
	cfg := reconconfig.Default()
	gl := []domain.CanonicalTxn{exTxn("GL:0", domain.RoleGL, "2024-01-01", "100.00", "x", 0.1)}

	exceptions := Classify(gl, nil, nil, cfg, mustDate("2024-01-01"))
	if exceptions[0].Category != domain.CategoryDataQuality {
		t.Fatalf("expected DATA_QUALITY, got %s", exceptions[0].Category)
	}
}

func TestClassifyTimingDifference(t *testing.T) {
	cfg := reconconfig.Default()
	gl := []domain.CanonicalTxn{exTxn("GL:0", domain.RoleGL, "2024-01-01", "100.00", "x", 0.9)}
	bank := []domain.CanonicalTxn{exTxn("BANK:0", domain.RoleBank, "2024-01-10", "-100.00", "y", 0.9)}

	exceptions := Classify(gl, bank, nil, cfg, mustDate("2024-01-10"))
	var glException domain.Exception
	for _, e := range exceptions {
		if e.TxnID == "GL:0" {
			glException = e
		}
	}
	if glException.Category != domain.CategoryTimingDifference {
		t.Fatalf("expected TIMING_DIFFERENCE, got %s", glException.Category)
	}
}

func TestClassifyAmountMismatch(t *testing.T) {
	cfg := reconconfig.Default()
	gl := []domain.CanonicalTxn{exTxn("GL:0", domain.RoleGL, "2024-01-01", "100.00", "x", 0.9)}
	bank := []domain.CanonicalTxn{exTxn("BANK:0", domain.RoleBank, "2024-01-01", "-102.00", "y", 0.9)}

	exceptions := Classify(gl, bank, nil, cfg, mustDate("2024-01-01"))
	var glException domain.Exception
	for _, e := range exceptions {
		if e.TxnID == "GL:0" {
			glException = e
		}
	}
	if glException.Category != domain.CategoryAmountMismatch {
		t.Fatalf("expected AMOUNT_MISMATCH, got %s", glException.Category)
	}
}

func TestClassifyMissingCounterpart(t *testing.T) {
	cfg := reconconfig.Default()
	gl := []domain.CanonicalTxn{exTxn("GL:0", domain.RoleGL, "2024-01-01", "100.00", "x", 0.9)}
	bank := []domain.CanonicalTxn{exTxn("BANK:0", domain.RoleBank, "2025-06-01", "-500.00", "y", 0.9)}

	exceptions := Classify(gl, bank, nil, cfg, mustDate("2025-06-01"))
	var glException domain.Exception
	for _, e := range exceptions {
		if e.TxnID == "GL:0" {
			glException = e
		}
	}
	if glException.Category != domain.CategoryMissingCounterpart {
		t.Fatalf("expected MISSING_COUNTERPART, got %s", glException.Category)
	}
}

func TestClassifyHighAmountPriorityIsHigh(t *testing.T) {
	cfg := reconconfig.Default()
	gl := []domain.CanonicalTxn{exTxn("GL:0", domain.RoleGL, "2024-01-01", "50000.00", "x", 0.9)}

	exceptions := Classify(gl, nil, nil, cfg, mustDate("2024-01-01"))
	if exceptions[0].Priority != domain.PriorityHigh {
		t.Fatalf("expected HIGH priority for an amount over the threshold, got %s", exceptions[0].Priority)
	}
}

func TestClassifyOrderingIsPriorityThenAmountThenTxnID(t *testing.T) {
	cfg := reconconfig.Default()
	gl := []domain.CanonicalTxn{
		exTxn("GL:1", domain.RoleGL, "2024-01-01", "10.00", "x", 0.9),
		exTxn("GL:0", domain.RoleGL, "2024-01-01", "50000.00", "x", 0.9),
	}

	exceptions := Classify(gl, nil, nil, cfg, mustDate("2024-01-01"))
	if exceptions[0].TxnID != "GL:0" {
		t.Fatalf("expected the HIGH-priority, higher-amount exception first, got %s", exceptions[0].TxnID)
	}
}

func TestClassifySuggestionsCappedAtMaxSuggestions(t *testing.T) {
	cfg := reconconfig.Default()
	cfg.ExceptionsMaxSuggestions = 1
	gl := []domain.CanonicalTxn{exTxn("GL:0", domain.RoleGL, "2024-01-01", "100.00", "x", 0.9)}
	suggestions := []domain.MatchSuggestion{
		{GLTxnID: "GL:0", BankTxnID: "BANK:1", Confidence: 0.8, Strategy: "fuzzy"},
		{GLTxnID: "GL:0", BankTxnID: "BANK:2", Confidence: 0.75, Strategy: "fuzzy"},
	}

	exceptions := Classify(gl, nil, suggestions, cfg, mustDate("2024-01-01"))
	if len(exceptions[0].Suggestions) != 1 {
		t.Fatalf("expected suggestions capped at 1, got %d", len(exceptions[0].Suggestions))
	}
	if exceptions[0].Suggestions[0].BankTxnID != "BANK:1" {
		t.Fatalf("expected the higher-confidence suggestion to survive capping")
	}
}

func mustDate(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}
