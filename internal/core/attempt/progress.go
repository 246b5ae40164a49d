package attempt

// Attempt-level progress bands. The mapping is monotonic as the state
// advances: optimizing 0-20, uploading 20-50, processing and extracting
// 50-80, classifying 80-100, everything from review on 100.
const (
	optimizingLo, optimizingHi   = 0.0, 20.0
	uploadingLo, uploadingHi     = 20.0, 50.0
	processingLo, processingHi   = 50.0, 80.0
	classifyingLo, classifyingHi = 80.0, 100.0
)

// stateProgress is the pure aggregate-progress function of a state. The
// fraction stored on a progress-carrying state positions it inside its band.
func stateProgress(s State) float64 {
	switch v := s.(type) {
	case Idle:
		return 0
	case Capturing:
		return 0
	case Optimizing:
		return within(optimizingLo, optimizingHi, v.Progress)
	case Uploading:
		return within(uploadingLo, uploadingHi, v.Progress)
	case Processing:
		return within(processingLo, processingHi, v.Progress)
	case Extracting:
		return within(processingLo, processingHi, v.Progress)
	case Classifying:
		return within(classifyingLo, classifyingHi, v.Progress)
	case Reviewing:
		return 100
	case Editing:
		return 100
	case Saving:
		return 100
	case Complete:
		return 100
	case Errored:
		if v.Previous != nil {
			return stateProgress(v.Previous)
		}
		return 0
	default:
		return 0
	}
}

// within positions a 0-1 fraction inside a band.
func within(lo, hi, fraction float64) float64 {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return lo + fraction*(hi-lo)
}

// bandFraction converts an overall pipeline percentage into a 0-1 fraction
// of the pipeline band it belongs to.
func bandFraction(pct, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	f := (pct - lo) / (hi - lo)
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return f
}
