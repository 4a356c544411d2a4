package loader

import (
	"os"
	"path/filepath"
	"testing"

	"smartrecon/internal/domain"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp csv: %v", err)
	}
	return path
}

func TestLoadYieldsSourceRowsInOrder(t *testing.T) {
	path := writeTempCSV(t, "date,amount,description,reference\n2024-01-01,100.00,Payment A,REF1\n2024-01-02,-50.00,Payment B,REF2\n")

	rows, err := Load(path, domain.RoleGL, DefaultConfig())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].RowIndex != 0 || rows[1].RowIndex != 1 {
		t.Fatalf("expected sequential row indices, got %d, %d", rows[0].RowIndex, rows[1].RowIndex)
	}
	if rows[0].Source != domain.RoleGL {
		t.Fatalf("expected RoleGL, got %s", rows[0].Source)
	}
	if rows[0].RawColumns["description"] != "Payment A" {
		t.Fatalf("expected raw column passthrough, got %q", rows[0].RawColumns["description"])
	}
	if got, want := rows[0].TxnID(), "GL:0"; got != want {
		t.Fatalf("TxnID() = %q, want %q", got, want)
	}
}

func TestLoadSkipsEmptyRows(t *testing.T) {
	path := writeTempCSV(t, "date,amount\n2024-01-01,10\n,\n2024-01-02,20\n")

	rows, err := Load(path, domain.RoleBank, DefaultConfig())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected empty row to be skipped, got %d rows", len(rows))
	}
}

func TestLoadMissingFileIsSchemaError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.csv"), domain.RoleGL, DefaultConfig())
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadEmptyFileIsSchemaError(t *testing.T) {
	path := writeTempCSV(t, "")
	_, err := Load(path, domain.RoleGL, DefaultConfig())
	if err == nil {
		t.Fatal("expected an error for an empty file")
	}
}
