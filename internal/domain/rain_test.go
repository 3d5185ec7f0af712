package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketRain(t *testing.T) {
	cases := []struct {
		intensity float64
		want      RainState
	}{
		{0, RainClear},
		{0.15, RainDrizzle},
		{0.2, RainDrizzle},
		{0.35, RainSprinkle},
		{0.55, RainShower},
		{0.75, RainRain},
		{0.8, RainRain},
		{0.95, RainDownpour},
		{1.0, RainDownpour},
		{1.5, RainInvalid},
		{-0.1, RainInvalid},
		{math.NaN(), RainInvalid},
		{math.Inf(1), RainInvalid},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, BucketRain(tc.intensity), "intensity %v", tc.intensity)
	}
}

func TestBucketRain_Deterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		assert.Equal(t, RainShower, BucketRain(0.5))
	}
}
