// Package sun derives clear-sky solar capacity factors from the sun's
// position.
package sun

import (
	"fmt"
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
)

// Altitude returns the sun altitude in radians at t.
func Altitude(t time.Time, lat, lon float64) float64 {
	return suncalc.GetPosition(t, lat, lon).Altitude
}

// CapacityFactor returns sin(altitude) clipped at zero, which is 1 with
// the sun at zenith and 0 below the horizon.
func CapacityFactor(t time.Time, lat, lon float64) float64 {
	return math.Max(math.Sin(Altitude(t, lat, lon)), 0)
}

// CapacityFactors returns one capacity factor per snapshot, sampled at the
// middle of each hour.
func CapacityFactors(lat, lon float64, snapshots []time.Time) ([]float64, error) {
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("latitude %.4f out of range", lat)
	}
	if lon < -180 || lon > 180 {
		return nil, fmt.Errorf("longitude %.4f out of range", lon)
	}
	out := make([]float64, len(snapshots))
	for i, t := range snapshots {
		out[i] = CapacityFactor(t.Add(30*time.Minute), lat, lon)
	}
	return out, nil
}
