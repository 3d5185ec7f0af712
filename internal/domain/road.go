package domain

// RoadState is the classified condition of the road surface.
type RoadState string

const (
	RoadInsufficientData RoadState = "Not enough data"
	RoadEven             RoadState = "Even"
	RoadPit              RoadState = "Pit"
	RoadSpeedingBump     RoadState = "Speeding bump"
)

// Default window parameters.
const (
	DefaultWindowSize       = 5
	DefaultAnomalyThreshold = 0.01
)

// Window is the bounded FIFO history of accelerometer samples for a single
// session. It is not safe for concurrent use; callers hold one writer per
// window.
type Window struct {
	size      int
	threshold float64
	samples   []Accelerometer
}

// NewWindow creates a window retaining at most size samples. Sizes below two
// are raised to two, the smallest window that can classify anything.
func NewWindow(size int, threshold float64) *Window {
	if size < 2 {
		size = 2
	}
	return &Window{
		size:      size,
		threshold: threshold,
		samples:   make([]Accelerometer, 0, size+1),
	}
}

// Len returns the number of retained samples.
func (w *Window) Len() int {
	return len(w.samples)
}

// Push appends a sample, evicting the oldest beyond capacity, and classifies
// the window with the new sample as the most recent.
func (w *Window) Push(sample Accelerometer) RoadState {
	w.samples = append(w.samples, sample)
	if len(w.samples) > w.size {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.size]
	}
	return ClassifyRoad(w.samples, w.threshold)
}

// ClassifyRoad classifies samples, oldest first, by comparing the last z
// against every earlier one. NaN products never satisfy either inequality.
func ClassifyRoad(samples []Accelerometer, threshold float64) RoadState {
	if len(samples) < 2 {
		return RoadInsufficientData
	}

	last := float64(samples[len(samples)-1].Z)
	prev := samples[:len(samples)-1]

	upper, lower := true, true
	for _, p := range prev {
		z := float64(p.Z)
		if !(last > z*(1+threshold)) {
			upper = false
		}
		if !(last < z*(1-threshold)) {
			lower = false
		}
	}

	switch {
	case upper:
		return RoadSpeedingBump
	case lower:
		return RoadPit
	default:
		return RoadEven
	}
}
