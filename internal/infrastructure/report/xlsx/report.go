// Package xlsx renders a completed capture flow as a spreadsheet report
// with the extracted record and the journey that produced it.
package xlsx

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/docuflow/capture/internal/core/domain"
)

const (
	summarySheet = "Summary"
	journeySheet = "Journey"
)

type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Write renders the report for a completed flow. The flow must carry a
// result and a draft; incomplete flows have nothing to report.
func (b *Builder) Write(w io.Writer, flow *domain.Flow) error {
	if flow == nil || flow.Result == nil || flow.Draft == nil {
		return fmt.Errorf("report requires a completed flow with result and draft")
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(journeySheet); err != nil {
		return fmt.Errorf("create journey sheet: %w", err)
	}

	if err := writeSummary(f, flow); err != nil {
		return err
	}
	if err := writeJourney(f, flow); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, flow *domain.Flow) error {
	rows := [][]any{
		{"Field", "Value"},
		{"Flow ID", flow.ID},
		{"Image", flow.ImageRef},
		{"Captured At", flow.CreatedAt.Format(time.RFC3339)},
	}
	for _, field := range domain.DraftFieldNames {
		rows = append(rows, []any{fieldLabel(field), flow.Draft.Fields[field]})
	}
	rows = append(rows,
		[]any{"Extraction Confidence", flow.Result.Confidence},
		[]any{"Classification Confidence", flow.Result.Classification.Confidence},
		[]any{"Original Size (bytes)", flow.Result.Optimization.OriginalBytes},
		[]any{"Optimized Size (bytes)", flow.Result.Optimization.OptimizedBytes},
		[]any{"Size Reduction (%)", flow.Result.Optimization.ReductionPct},
	)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("summary cell name: %w", err)
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 28); err != nil {
		return fmt.Errorf("set summary col width: %w", err)
	}
	if err := f.SetColWidth(summarySheet, "B", "B", 48); err != nil {
		return fmt.Errorf("set summary col width: %w", err)
	}
	return nil
}

func writeJourney(f *excelize.File, flow *domain.Flow) error {
	rows := [][]any{
		{"At", "From", "To", "Reason"},
	}
	for _, tr := range flow.Transitions {
		rows = append(rows, []any{
			tr.Timestamp.Format(time.RFC3339),
			string(tr.From),
			string(tr.To),
			string(tr.Reason),
		})
	}

	rows = append(rows, []any{}, []any{"Step", "Duration"})
	for _, step := range flow.StepHistory {
		rows = append(rows, []any{string(step), flow.Metrics.StepDurations[step].String()})
	}

	if len(flow.ErrorHistory) > 0 {
		rows = append(rows, []any{}, []any{"Error At", "Code", "Message"})
		for _, rec := range flow.ErrorHistory {
			rows = append(rows, []any{
				rec.Timestamp.Format(time.RFC3339),
				string(rec.Code),
				rec.Message,
			})
		}
	}

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("journey cell name: %w", err)
		}
		if err := f.SetSheetRow(journeySheet, cell, &row); err != nil {
			return fmt.Errorf("write journey row: %w", err)
		}
	}
	if err := f.SetColWidth(journeySheet, "A", "D", 26); err != nil {
		return fmt.Errorf("set journey col width: %w", err)
	}
	return nil
}

func fieldLabel(field string) string {
	switch field {
	case domain.FieldDate:
		return "Date"
	case domain.FieldCategory:
		return "Category"
	case domain.FieldAmount:
		return "Amount"
	case domain.FieldReference:
		return "Reference"
	case domain.FieldTaxNumber:
		return "Tax Number"
	case domain.FieldVendor:
		return "Vendor"
	case domain.FieldLocation:
		return "Location"
	case domain.FieldNotes:
		return "Notes"
	default:
		return field
	}
}
