package simulate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWalkStaysBounded(t *testing.T) {
	w := NewWalk(1)
	for i := 0; i < 10_000; i++ {
		r := w.Next()
		assert.GreaterOrEqual(t, r.TemperatureC, MinTemperatureC)
		assert.LessOrEqual(t, r.TemperatureC, MaxTemperatureC)
		assert.GreaterOrEqual(t, r.HumidityPct, MinHumidityPct)
		assert.LessOrEqual(t, r.HumidityPct, MaxHumidityPct)
		assert.GreaterOrEqual(t, r.SoundDB, MinSoundDB)
		assert.LessOrEqual(t, r.SoundDB, MaxSoundDB)
	}
}

func TestWalkReproducible(t *testing.T) {
	a, b := NewWalk(42), NewWalk(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestWalkSeedsDiverge(t *testing.T) {
	a, b := NewWalk(1), NewWalk(2)
	same := true
	for i := 0; i < 20; i++ {
		if a.Next() != b.Next() {
			same = false
		}
	}
	assert.False(t, same, "different seeds should produce different walks")
}

func TestWalkHoversNearBaselines(t *testing.T) {
	w := NewWalk(7)
	var sumT, sumH, sumS float64
	const n = 50_000
	for i := 0; i < n; i++ {
		r := w.Next()
		sumT += r.TemperatureC
		sumH += r.HumidityPct
		sumS += r.SoundDB
	}
	assert.InDelta(t, BaseTemperatureC, sumT/n, 5)
	assert.InDelta(t, BaseHumidityPct, sumH/n, 7)
	assert.InDelta(t, BaseSoundDB, sumS/n, 6)
}
