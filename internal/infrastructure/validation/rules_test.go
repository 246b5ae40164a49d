package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/docuflow/capture/internal/core/domain"
)

func TestDefaultRulesFlagMissingRequiredFields(t *testing.T) {
	v, err := New(DefaultRules())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	findings := v.Validate(map[string]string{
		domain.FieldDate:   "",
		domain.FieldAmount: "12.50",
		domain.FieldVendor: "Cafe Rosa",
	})
	dateFindings := findings[domain.FieldDate]
	if len(dateFindings) != 1 || dateFindings[0].Code != "required" {
		t.Fatalf("expected required finding on date, got %+v", findings)
	}
	if dateFindings[0].Severity != domain.SeverityError {
		t.Fatalf("expected error severity, got %s", dateFindings[0].Severity)
	}
	if _, ok := findings[domain.FieldAmount]; ok {
		t.Fatalf("unexpected finding on amount: %+v", findings[domain.FieldAmount])
	}
}

func TestValidateReportsPatternMismatch(t *testing.T) {
	v, err := New(DefaultRules())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	findings := v.Validate(map[string]string{
		domain.FieldDate:   "03/01/2026",
		domain.FieldAmount: "twelve",
		domain.FieldVendor: "Cafe Rosa",
	})
	if findings[domain.FieldDate][0].Code != "pattern_mismatch" {
		t.Fatalf("expected pattern finding on date, got %+v", findings[domain.FieldDate])
	}
	if findings[domain.FieldAmount][0].Code != "pattern_mismatch" {
		t.Fatalf("expected pattern finding on amount, got %+v", findings[domain.FieldAmount])
	}
}

func TestLoadParsesRuleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
fields:
  vendor:
    required: true
    severity: error
    message: Vendor is required.
  notes:
    max_length: 10
    severity: warning
    message: Too long.
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	v, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	findings := v.Validate(map[string]string{
		domain.FieldVendor: "",
		domain.FieldNotes:  "this is far too long",
	})
	if findings[domain.FieldVendor][0].Code != "required" {
		t.Fatalf("expected vendor finding, got %+v", findings)
	}
	if findings[domain.FieldNotes][0].Severity != domain.SeverityWarning {
		t.Fatalf("expected warning on notes, got %+v", findings[domain.FieldNotes])
	}
}

func TestNewRejectsUnknownFieldAndBadSeverity(t *testing.T) {
	_, err := New(map[string]FieldRule{
		"surname": {Required: true, Severity: "error"},
	})
	if err == nil {
		t.Fatalf("expected error for unknown field")
	}

	_, err = New(map[string]FieldRule{
		domain.FieldVendor: {Required: true, Severity: "fatal"},
	})
	if err == nil {
		t.Fatalf("expected error for invalid severity")
	}
}
