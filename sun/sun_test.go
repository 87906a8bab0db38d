package sun

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapacityFactors(t *testing.T) {
	start := time.Date(2015, 6, 21, 0, 0, 0, 0, time.UTC)
	snapshots := make([]time.Time, 24)
	for i := range snapshots {
		snapshots[i] = start.Add(time.Duration(i) * time.Hour)
	}

	// Equator on the Greenwich meridian
	cf, err := CapacityFactors(0, 0, snapshots)
	require.NoError(t, err)
	require.Len(t, cf, 24)

	for _, v := range cf {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, 0.0, cf[0], "night")
	assert.Greater(t, cf[11], 0.85, "around solar noon")
	assert.Greater(t, cf[11], cf[8])
}

func TestCapacityFactorsPolarNight(t *testing.T) {
	start := time.Date(2015, 12, 21, 0, 0, 0, 0, time.UTC)
	snapshots := []time.Time{start.Add(11 * time.Hour), start.Add(12 * time.Hour)}

	// Svalbard
	cf, err := CapacityFactors(78.22, 15.65, snapshots)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, cf)
}

func TestCapacityFactorsInvalidLocation(t *testing.T) {
	_, err := CapacityFactors(91, 0, nil)
	assert.Error(t, err)
	_, err = CapacityFactors(0, 181, nil)
	assert.Error(t, err)
}
