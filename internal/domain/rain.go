package domain

import "math"

// RainState is the bucketed rain intensity.
type RainState string

const (
	RainClear    RainState = "Clear"
	RainDrizzle  RainState = "Drizzle"
	RainSprinkle RainState = "Sprinkle"
	RainShower   RainState = "Shower"
	RainRain     RainState = "Rain"
	RainDownpour RainState = "Downpour"
	RainInvalid  RainState = "Invalid"
)

// BucketRain maps an intensity onto the rain scale. Values outside [0, 1],
// including NaN, are Invalid.
func BucketRain(intensity float64) RainState {
	switch {
	case math.IsNaN(intensity):
		return RainInvalid
	case intensity == 0:
		return RainClear
	case intensity > 0 && intensity <= 0.2:
		return RainDrizzle
	case intensity > 0.2 && intensity <= 0.4:
		return RainSprinkle
	case intensity > 0.4 && intensity <= 0.6:
		return RainShower
	case intensity > 0.6 && intensity <= 0.8:
		return RainRain
	case intensity > 0.8 && intensity <= 1.0:
		return RainDownpour
	default:
		return RainInvalid
	}
}
