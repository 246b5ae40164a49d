package domain

import "time"

// Canonical draft field names. updateField addresses fields by these names;
// the typed classification seeds them on initialization.
const (
	FieldDate      = "date"
	FieldCategory  = "category"
	FieldAmount    = "amount"
	FieldReference = "reference"
	FieldTaxNumber = "tax_number"
	FieldVendor    = "vendor"
	FieldLocation  = "location"
	FieldNotes     = "notes"
)

// DraftFieldNames lists every editable field in canonical order.
var DraftFieldNames = []string{
	FieldDate,
	FieldCategory,
	FieldAmount,
	FieldReference,
	FieldTaxNumber,
	FieldVendor,
	FieldLocation,
	FieldNotes,
}

// Severity grades a field validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// FieldError is one validation finding on a draft field. The editor stores
// findings verbatim; validity policy lives outside the core.
type FieldError struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Draft is the mutable working copy of the eventual final record.
type Draft struct {
	Fields         map[string]string       `json:"fields"`
	ModifiedFields map[string]bool         `json:"modified_fields"`
	FieldErrors    map[string][]FieldError `json:"field_errors"`
	IsDirty        bool                    `json:"is_dirty"`
	IsValid        bool                    `json:"is_valid"`
	IsSaving       bool                    `json:"is_saving"`
	SaveError      string                  `json:"save_error,omitempty"`
	LastSavedAt    *time.Time              `json:"last_saved_at,omitempty"`
}

// NewDraftFromResult builds the initial draft from a processing result,
// applying classification defaults for anything missing.
func NewDraftFromResult(result *ProcessingResult) *Draft {
	cls := DocumentClassification{}
	notes := ""
	if result != nil {
		cls = result.Classification.Normalized()
		notes = result.ExtractedText
	}
	return &Draft{
		Fields: map[string]string{
			FieldDate:      cls.Date,
			FieldCategory:  cls.Category,
			FieldAmount:    cls.Amount,
			FieldReference: cls.Reference,
			FieldTaxNumber: cls.TaxNumber,
			FieldVendor:    cls.Vendor,
			FieldLocation:  cls.Location,
			FieldNotes:     notes,
		},
		ModifiedFields: make(map[string]bool),
		FieldErrors:    make(map[string][]FieldError),
		IsValid:        true,
	}
}

// Clone returns a deep copy of the draft.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	out := *d

	out.Fields = make(map[string]string, len(d.Fields))
	for k, v := range d.Fields {
		out.Fields[k] = v
	}
	out.ModifiedFields = make(map[string]bool, len(d.ModifiedFields))
	for k, v := range d.ModifiedFields {
		out.ModifiedFields[k] = v
	}
	out.FieldErrors = make(map[string][]FieldError, len(d.FieldErrors))
	for k, v := range d.FieldErrors {
		out.FieldErrors[k] = append([]FieldError(nil), v...)
	}
	if d.LastSavedAt != nil {
		at := *d.LastSavedAt
		out.LastSavedAt = &at
	}
	return &out
}

// HasBlockingErrors reports whether any stored finding has error severity.
func (d *Draft) HasBlockingErrors() bool {
	for _, findings := range d.FieldErrors {
		for _, f := range findings {
			if f.Severity == SeverityError {
				return true
			}
		}
	}
	return false
}
