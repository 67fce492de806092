package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineZeroForIdenticalPoints(t *testing.T) {
	p := Point{Lat: 51.5, Lon: -0.1}
	assert.InDelta(t, 0.0, Haversine(p, p), 1e-6)
}

func TestHaversineSymmetric(t *testing.T) {
	a := Point{Lat: 40.7128, Lon: -74.0060}
	b := Point{Lat: 51.5074, Lon: -0.1278}
	assert.Equal(t, Haversine(a, b), Haversine(b, a))
}

func TestHaversineKnownDistance(t *testing.T) {
	// London to Paris, roughly 344 km great-circle.
	london := Point{Lat: 51.5074, Lon: -0.1278}
	paris := Point{Lat: 48.8566, Lon: 2.3522}
	d := Haversine(london, paris)
	assert.InDelta(t, 344000.0, d, 10000.0)
}

func TestInterpFloatBothPresent(t *testing.T) {
	a, b := 10.0, 20.0
	got := InterpFloat(&a, &b, 0.5)
	assert.NotNil(t, got)
	assert.InDelta(t, 15.0, *got, 1e-9)
}

func TestInterpFloatOneAbsent(t *testing.T) {
	b := 20.0
	got := InterpFloat(nil, &b, 0.3)
	assert.NotNil(t, got)
	assert.Equal(t, 20.0, *got)
}

func TestInterpFloatBothAbsent(t *testing.T) {
	assert.Nil(t, InterpFloat(nil, nil, 0.5))
}

func TestInterpIntRounds(t *testing.T) {
	a, b := 100, 101
	got := InterpInt(&a, &b, 0.5)
	assert.NotNil(t, got)
	assert.Equal(t, int(math.Round(100.5)), *got)
}
