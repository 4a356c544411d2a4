package reconconfig

import "testing"

func TestBankProfileByNameKnownProfile(t *testing.T) {
	p, err := BankProfileByName("chase")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.DateFormat != "01/02/2006" {
		t.Fatalf("expected Chase's MM/DD/YYYY date format, got %q", p.DateFormat)
	}
}

func TestBankProfileByNameUnknownProfile(t *testing.T) {
	if _, err := BankProfileByName("nonexistent"); err == nil {
		t.Fatalf("expected an error for an unknown profile name")
	}
}

func TestApplyBankProfileDoesNotOverrideExplicitMapping(t *testing.T) {
	cfg := Default()
	cfg.ColumnMappingBank.Explicit["date"] = "txn_date"

	p, err := BankProfileByName("standard")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.ApplyBankProfile(p)

	if _, stillExplicit := cfg.ColumnMappingBank.Explicit["date"]; !stillExplicit {
		t.Fatalf("expected explicit date mapping to survive ApplyBankProfile")
	}
}

func TestApplyBankProfilePrependsDateFormatOnce(t *testing.T) {
	cfg := Default()
	p, err := BankProfileByName("chase")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := len(cfg.DateFormats)
	cfg.ApplyBankProfile(p)
	cfg.ApplyBankProfile(p)
	if len(cfg.DateFormats) != before {
		t.Fatalf("expected applying the same profile twice not to duplicate its date format, got %d date formats", len(cfg.DateFormats))
	}
	if cfg.DateFormats[0] != "01/02/2006" {
		t.Fatalf("expected the profile's date format to take priority, got %q first", cfg.DateFormats[0])
	}
}
