package industry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRiskFromSecurity(t *testing.T) {
	testCases := []struct {
		security float64
		expected string
	}{
		{0.9, RiskLow},
		{0.6, RiskLow},
		{0.5, RiskLow},
		{0.4, RiskMedium},
		{0.0, RiskMedium},
		{-0.3, RiskHigh},
		{-1.0, RiskHigh},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, RiskFromSecurity(tc.security),
			"security %v", tc.security)
	}
}

func TestPriorityBandThresholds(t *testing.T) {
	assert.Equal(t, PriorityHigh, PriorityBand(80))
	assert.Equal(t, PriorityMedium, PriorityBand(79))
	assert.Equal(t, PriorityMedium, PriorityBand(50))
	assert.Equal(t, PriorityLow, PriorityBand(49))
	assert.Equal(t, PriorityLow, PriorityBand(0))
}

func TestPriorityScoreWeighsTimeHeaviest(t *testing.T) {
	// anything finishing inside an hour is high on its own
	assert.Equal(t, PriorityHigh, PriorityBand(priorityScore(0.5, 0, 0)))

	// distant cheap early jobs are low
	assert.Equal(t, PriorityLow, PriorityBand(priorityScore(200, 50_000, 10)))

	// cost and progress push a mid-range job up
	assert.Equal(t, PriorityHigh, PriorityBand(priorityScore(12, 15_000_000, 95)))
}

func TestPriorityMonotonicInTimeRemaining(t *testing.T) {
	bandRank := map[string]int{PriorityLow: 0, PriorityMedium: 1, PriorityHigh: 2}

	remaining := []float64{200, 71, 23, 5.5, 0.5}
	previous := -1
	for _, hours := range remaining {
		rank := bandRank[PriorityBand(priorityScore(hours, 500_000, 40))]
		assert.GreaterOrEqual(t, rank, previous,
			"band dropped as time remaining shrank to %vh", hours)
		previous = rank
	}
}

func TestEfficiencyRating(t *testing.T) {
	assert.Equal(t, 100.0, efficiencyRating(0.9, "unknown"))
	// bonuses never push past the cap
	assert.Equal(t, 100.0, efficiencyRating(0.9, "structure"))

	assert.Equal(t, 80.0, efficiencyRating(0.3, "unknown"))
	assert.Equal(t, 85.0, efficiencyRating(0.3, "station"))
	assert.Equal(t, 60.0, efficiencyRating(-0.2, "unknown"))
	assert.Equal(t, 70.0, efficiencyRating(-0.2, "structure"))
}
