package pipeline

// Stage identifies one phase of a pipeline run.
type Stage string

const (
	StageValidation       Stage = "validation"
	StageOptimization     Stage = "optimization"
	StageUpload           Stage = "upload"
	StageProcessingStart  Stage = "processing_start"
	StageRemoteProcessing Stage = "remote_processing"
	StageFinalize         Stage = "finalize"
)

// band is the slice of the 0-100 progress scale a stage contributes.
type band struct {
	start float64
	end   float64
}

// Stage weighting. Bands are contiguous and monotonic and together cover the
// full scale: validation 0-5, optimization 5-15, upload 15-30, processing
// start 30-35, remote processing 35-90, finalize 90-100.
var stageBands = map[Stage]band{
	StageValidation:       {start: 0, end: 5},
	StageOptimization:     {start: 5, end: 15},
	StageUpload:           {start: 15, end: 30},
	StageProcessingStart:  {start: 30, end: 35},
	StageRemoteProcessing: {start: 35, end: 90},
	StageFinalize:         {start: 90, end: 100},
}

// stageProgress maps a fraction of completion within a stage onto the
// overall 0-100 scale.
func stageProgress(stage Stage, fraction float64) float64 {
	b, ok := stageBands[stage]
	if !ok {
		return 0
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return b.start + fraction*(b.end-b.start)
}
