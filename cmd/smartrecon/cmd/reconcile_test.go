package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := filepath.Join(tmpDir, "valid.csv")
	if err := os.WriteFile(validFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name        string
		filePath    string
		expectError bool
	}{
		{"valid file", validFile, false},
		{"non-existent file", "/non/existent/file.csv", true},
		{"directory instead of file", tmpDir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "test file")
			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateReconcileFlagsAcceptsExistingFiles(t *testing.T) {
	tmpDir := t.TempDir()
	gl := filepath.Join(tmpDir, "gl.csv")
	bank := filepath.Join(tmpDir, "bank.csv")
	if err := os.WriteFile(gl, []byte("date,amount,description,reference\n2024-01-01,100.00,x,y\n"), 0o644); err != nil {
		t.Fatalf("failed to write gl fixture: %v", err)
	}
	if err := os.WriteFile(bank, []byte("date,amount,description,reference\n2024-01-01,-100.00,x,y\n"), 0o644); err != nil {
		t.Fatalf("failed to write bank fixture: %v", err)
	}

	appViper.Set("gl", gl)
	appViper.Set("bank", bank)
	appViper.Set("output-format", "console")
	appViper.Set("bank-profile", "")
	appViper.Set("output-file", "")

	if err := validateReconcileFlags(reconcileCmd, nil); err != nil {
		t.Fatalf("expected valid flags to pass, got: %v", err)
	}
}

func TestValidateReconcileFlagsRejectsMissingGL(t *testing.T) {
	appViper.Set("gl", "")
	appViper.Set("bank", "/tmp/does-not-matter.csv")

	if err := validateReconcileFlags(reconcileCmd, nil); err == nil {
		t.Fatalf("expected an error when --gl is not set")
	}
}

func TestValidateReconcileFlagsRejectsUnknownOutputFormat(t *testing.T) {
	tmpDir := t.TempDir()
	gl := filepath.Join(tmpDir, "gl.csv")
	bank := filepath.Join(tmpDir, "bank.csv")
	os.WriteFile(gl, []byte("x"), 0o644)
	os.WriteFile(bank, []byte("x"), 0o644)

	appViper.Set("gl", gl)
	appViper.Set("bank", bank)
	appViper.Set("output-format", "xml")

	if err := validateReconcileFlags(reconcileCmd, nil); err == nil {
		t.Fatalf("expected an error for an unsupported output format")
	}
}

func TestValidateReconcileFlagsRejectsUnknownBankProfile(t *testing.T) {
	tmpDir := t.TempDir()
	gl := filepath.Join(tmpDir, "gl.csv")
	bank := filepath.Join(tmpDir, "bank.csv")
	os.WriteFile(gl, []byte("x"), 0o644)
	os.WriteFile(bank, []byte("x"), 0o644)

	appViper.Set("gl", gl)
	appViper.Set("bank", bank)
	appViper.Set("output-format", "console")
	appViper.Set("bank-profile", "not-a-real-profile")

	if err := validateReconcileFlags(reconcileCmd, nil); err == nil {
		t.Fatalf("expected an error for an unknown bank profile")
	}
}
