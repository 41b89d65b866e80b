// Package simulate generates synthetic station telemetry: a bounded random
// walk around per-sensor baselines. The trainer uses it to build a normal
// corpus; the stream tool layers anomaly spikes on top of it.
package simulate

import "math/rand"

// Baselines and walk parameters for each sensor channel.
const (
	BaseTemperatureC = 70.0
	BaseHumidityPct  = 45.0
	BaseSoundDB      = 65.0

	stepTemperatureC = 0.4
	stepHumidityPct  = 0.6
	stepSoundDB      = 0.5

	// Pull back toward the baseline so the walk never wanders off for good.
	meanReversion = 0.02

	MinTemperatureC = 40.0
	MaxTemperatureC = 120.0
	MinHumidityPct  = 10.0
	MaxHumidityPct  = 90.0
	MinSoundDB      = 30.0
	MaxSoundDB      = 110.0
)

// Reading is one step of simulated telemetry.
type Reading struct {
	TemperatureC float64
	HumidityPct  float64
	SoundDB      float64
}

// Walk is a seeded random walk over the three sensor channels. Not safe for
// concurrent use; each goroutine gets its own Walk.
type Walk struct {
	rng  *rand.Rand
	temp float64
	hum  float64
	snd  float64
}

// NewWalk starts a walk at the baselines. The same seed replays the same
// sequence of readings.
func NewWalk(seed int64) *Walk {
	return &Walk{
		rng:  rand.New(rand.NewSource(seed)),
		temp: BaseTemperatureC,
		hum:  BaseHumidityPct,
		snd:  BaseSoundDB,
	}
}

// Next advances the walk one step and returns the new reading.
func (w *Walk) Next() Reading {
	w.temp = step(w.rng, w.temp, BaseTemperatureC, stepTemperatureC, MinTemperatureC, MaxTemperatureC)
	w.hum = step(w.rng, w.hum, BaseHumidityPct, stepHumidityPct, MinHumidityPct, MaxHumidityPct)
	w.snd = step(w.rng, w.snd, BaseSoundDB, stepSoundDB, MinSoundDB, MaxSoundDB)
	return Reading{TemperatureC: w.temp, HumidityPct: w.hum, SoundDB: w.snd}
}

func step(rng *rand.Rand, cur, base, stepSize, lo, hi float64) float64 {
	next := cur + rng.NormFloat64()*stepSize + meanReversion*(base-cur)
	if next < lo {
		return lo
	}
	if next > hi {
		return hi
	}
	return next
}
