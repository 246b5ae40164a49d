package xlsx

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/docuflow/capture/internal/core/domain"
)

func completedFlow() *domain.Flow {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	result := &domain.ProcessingResult{
		ExtractedText: "TOTAL 12.50",
		Classification: domain.DocumentClassification{
			Date:       "2026-03-01",
			Category:   "meals",
			Amount:     "12.50",
			Vendor:     "Cafe Rosa",
			Confidence: 0.91,
		},
		Optimization: domain.OptimizationMetrics{
			OriginalBytes:  4096,
			OptimizedBytes: 1024,
			ReductionPct:   75,
		},
		Confidence: 0.93,
	}
	return &domain.Flow{
		ID:          "flow-1",
		ImageRef:    "receipt.jpg",
		CurrentStep: domain.StepReport,
		CreatedAt:   created,
		IsComplete:  true,
		StepHistory: []domain.Step{domain.StepCapture, domain.StepProcessing, domain.StepReview, domain.StepReport},
		Transitions: []domain.StepTransition{
			{From: domain.StepCapture, To: domain.StepProcessing, Reason: domain.ReasonAutoAdvance, Timestamp: created},
			{From: domain.StepProcessing, To: domain.StepReview, Reason: domain.ReasonAutoAdvance, Timestamp: created.Add(5 * time.Second)},
		},
		Metrics: domain.FlowMetrics{
			StepDurations: map[domain.Step]time.Duration{
				domain.StepProcessing: 5 * time.Second,
			},
		},
		Result: result,
		Draft:  domain.NewDraftFromResult(result),
	}
}

func TestWriteRendersSummaryAndJourney(t *testing.T) {
	var buf bytes.Buffer
	if err := NewBuilder().Write(&buf, completedFlow()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	flowID, err := f.GetCellValue(summarySheet, "B2")
	if err != nil {
		t.Fatalf("read summary cell: %v", err)
	}
	if flowID != "flow-1" {
		t.Fatalf("expected flow id in summary, got %q", flowID)
	}

	vendor := findRowValue(t, f, summarySheet, "Vendor")
	if vendor != "Cafe Rosa" {
		t.Fatalf("expected vendor in summary, got %q", vendor)
	}

	journeyRows, err := f.GetRows(journeySheet)
	if err != nil {
		t.Fatalf("read journey rows: %v", err)
	}
	if len(journeyRows) < 3 {
		t.Fatalf("expected journey rows, got %d", len(journeyRows))
	}
	if journeyRows[1][1] != "capture" || journeyRows[1][2] != "processing" {
		t.Fatalf("unexpected first transition row: %v", journeyRows[1])
	}
}

func TestWriteRejectsIncompleteFlow(t *testing.T) {
	var buf bytes.Buffer
	err := NewBuilder().Write(&buf, &domain.Flow{ID: "flow-2"})
	if err == nil {
		t.Fatalf("expected error for flow without result")
	}
}

func findRowValue(t *testing.T, f *excelize.File, sheet, label string) string {
	t.Helper()
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("read %s rows: %v", sheet, err)
	}
	for _, row := range rows {
		if len(row) >= 2 && row[0] == label {
			return row[1]
		}
	}
	t.Fatalf("label %q not found in %s", label, sheet)
	return ""
}
