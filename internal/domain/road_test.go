package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func zs(values ...int) []Accelerometer {
	out := make([]Accelerometer, len(values))
	for i, z := range values {
		out[i] = Accelerometer{Z: z}
	}
	return out
}

func TestClassifyRoad(t *testing.T) {
	cases := []struct {
		name   string
		window []Accelerometer
		want   RoadState
	}{
		{name: "empty", window: nil, want: RoadInsufficientData},
		{name: "single sample", window: zs(100), want: RoadInsufficientData},
		{name: "rising past all", window: zs(100, 102, 104, 106, 110), want: RoadSpeedingBump},
		{name: "falling past all", window: zs(110, 106, 104, 102, 100), want: RoadPit},
		{name: "mixed", window: zs(100, 102, 98, 105, 100), want: RoadEven},
		{name: "within threshold", window: zs(100, 101), want: RoadEven},
		{name: "one older sample suppresses bump", window: zs(120, 100, 100, 100, 110), want: RoadEven},
		{name: "two samples bump", window: zs(100, 102), want: RoadSpeedingBump},
		{name: "two samples pit", window: zs(100, 98), want: RoadPit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyRoad(tc.window, DefaultAnomalyThreshold))
		})
	}
}

func TestClassifyRoad_NaNThresholdIsEven(t *testing.T) {
	assert.Equal(t, RoadEven, ClassifyRoad(zs(100, 200), math.NaN()))
}

func TestWindow_PushEvictsOldest(t *testing.T) {
	w := NewWindow(3, DefaultAnomalyThreshold)

	assert.Equal(t, RoadInsufficientData, w.Push(Accelerometer{Z: 500}))
	assert.Equal(t, RoadPit, w.Push(Accelerometer{Z: 100}))
	assert.Equal(t, RoadEven, w.Push(Accelerometer{Z: 300}))
	assert.Equal(t, 3, w.Len())

	// 500 falls out of the window here, so 400 rises past 100 and 300.
	assert.Equal(t, RoadSpeedingBump, w.Push(Accelerometer{Z: 400}))
	assert.Equal(t, 3, w.Len())
}

func TestWindow_ReferenceSequences(t *testing.T) {
	cases := []struct {
		name string
		zs   []int
		want RoadState
	}{
		{name: "bump", zs: []int{100, 102, 104, 106, 110}, want: RoadSpeedingBump},
		{name: "pit", zs: []int{110, 106, 104, 102, 100}, want: RoadPit},
		{name: "even", zs: []int{100, 102, 98, 105, 100}, want: RoadEven},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWindow(DefaultWindowSize, DefaultAnomalyThreshold)
			var got RoadState
			for _, z := range tc.zs {
				got = w.Push(Accelerometer{Z: z})
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewWindow_MinimumSize(t *testing.T) {
	w := NewWindow(0, DefaultAnomalyThreshold)
	w.Push(Accelerometer{Z: 1})
	w.Push(Accelerometer{Z: 2})
	w.Push(Accelerometer{Z: 3})
	assert.Equal(t, 2, w.Len())
}
