package reportsink

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"smartrecon/internal/domain"
)

func sampleResult() *domain.Result {
	return &domain.Result{
		Matches: []domain.Match{
			{GLTxnID: "GL:0", BankTxnID: "BANK:0", Strategy: "reference_exact", Confidence: 1.0},
		},
		Exceptions: []domain.Exception{
			{TxnID: "GL:1", Category: domain.CategoryMissingCounterpart, Priority: domain.PriorityHigh,
				Amount: decimal.RequireFromString("500.00"), Rationale: "no plausible counterpart found"},
		},
		Summary: domain.SummaryStats{
			TotalGL: 2, TotalBank: 1, MatchedCount: 1, ExceptionCount: 1,
			TotalGLAmount: decimal.RequireFromString("600.00"), TotalBankAmount: decimal.RequireFromString("-100.00"),
		},
	}
}

func TestRenderConsoleIncludesSummaryAndMatches(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleResult(), DefaultConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "GL:0 <-> BANK:0") {
		t.Fatalf("expected the match line in console output, got:\n%s", out)
	}
	if !strings.Contains(out, "MISSING_COUNTERPART") {
		t.Fatalf("expected the exception category in console output, got:\n%s", out)
	}
}

func TestRenderJSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	if err := Render(&buf, sampleResult(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded domain.Result
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v", err)
	}
	if len(decoded.Matches) != 1 {
		t.Fatalf("expected 1 match after round-trip, got %d", len(decoded.Matches))
	}
}

func TestRenderCSVWritesOneRowPerException(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatCSV
	if err := Render(&buf, sampleResult(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 { // header + 1 exception
		t.Fatalf("expected header + 1 row, got %d lines: %v", len(lines), lines)
	}
}

func TestRenderInvalidFormatErrors(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = "xml"
	if err := Render(&buf, sampleResult(), cfg); err == nil {
		t.Fatalf("expected an error for an unsupported format")
	}
}
