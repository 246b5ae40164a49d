package domain

import "time"

// DocumentClassification is the structured record the remote service
// extracts from a document.
type DocumentClassification struct {
	Date       string  `json:"date"`
	Category   string  `json:"category"`
	Amount     string  `json:"amount"`
	Reference  string  `json:"reference"`
	TaxNumber  string  `json:"tax_number"`
	Vendor     string  `json:"vendor"`
	Location   string  `json:"location"`
	Confidence float64 `json:"confidence"`
}

// Normalized fills defaults for any field the backend left empty.
func (c DocumentClassification) Normalized() DocumentClassification {
	out := c
	if out.Category == "" {
		out.Category = "uncategorized"
	}
	if out.Amount == "" {
		out.Amount = "0.00"
	}
	if out.Vendor == "" {
		out.Vendor = "unknown"
	}
	return out
}

// OptimizationMetrics records what the optimization stage did to the image.
type OptimizationMetrics struct {
	OriginalBytes   int64         `json:"original_bytes"`
	OptimizedBytes  int64         `json:"optimized_bytes"`
	OriginalWidth   int           `json:"original_width"`
	OriginalHeight  int           `json:"original_height"`
	OptimizedWidth  int           `json:"optimized_width"`
	OptimizedHeight int           `json:"optimized_height"`
	ReductionPct    float64       `json:"reduction_pct"`
	Duration        time.Duration `json:"duration"`
}

// ProcessingResult is the immutable output of one successful pipeline run.
// It is produced exactly once per run and never mutated afterward; the Draft
// is the mutable counterpart.
type ProcessingResult struct {
	ExtractedText  string                 `json:"extracted_text"`
	Classification DocumentClassification `json:"classification"`
	Optimization   OptimizationMetrics    `json:"optimization"`
	ProcessedAt    time.Time              `json:"processed_at"`
	Confidence     float64                `json:"confidence"`
}

// Clone returns a copy so holders cannot alias the original.
func (r *ProcessingResult) Clone() *ProcessingResult {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}
