package industry

// Priority bands, ordered by urgency.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Risk levels derived from system security.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// priorityScore weighs completion proximity heaviest, then job cost,
// then progress. The weights are tuned so anything finishing inside an
// hour lands in the high band on its own.
func priorityScore(timeRemainingHours, cost, progress float64) int {
	score := 0

	switch {
	case timeRemainingHours < 1:
		score += 100
	case timeRemainingHours < 6:
		score += 80
	case timeRemainingHours < 24:
		score += 60
	case timeRemainingHours < 72:
		score += 40
	}

	switch {
	case cost > 10_000_000:
		score += 30
	case cost > 1_000_000:
		score += 20
	case cost > 100_000:
		score += 10
	}

	switch {
	case progress > 90:
		score += 50
	case progress > 75:
		score += 30
	case progress > 50:
		score += 20
	}

	return score
}

// PriorityBand maps a score to its ordinal band. Threshold ties fall
// into the higher band; everything below medium is low.
func PriorityBand(score int) string {
	switch {
	case score >= 80:
		return PriorityHigh
	case score >= 50:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// RiskFromSecurity classifies a job's risk from the hosting system's
// security scalar alone.
func RiskFromSecurity(security float64) string {
	switch {
	case security >= 0.5:
		return RiskLow
	case security >= 0.0:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// efficiencyRating scores the job's environment: penalties for low and
// null security, small bonuses for running in a structure or station.
// Clamped to 0..100.
func efficiencyRating(systemSecurity float64, locationKind string) float64 {
	rating := 100.0

	switch {
	case systemSecurity < 0.0:
		rating -= 40.0
	case systemSecurity < 0.5:
		rating -= 20.0
	}

	switch locationKind {
	case "structure":
		rating += 10.0
	case "station":
		rating += 5.0
	}

	if rating < 0 {
		return 0
	}
	if rating > 100 {
		return 100
	}
	return rating
}
