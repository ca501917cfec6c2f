package industry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/forgetrack/forgetrack/internal/esi"
)

func TestEnrichActiveJobDerivedFields(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	job := esi.Job{
		JobID:         42,
		ActivityID:    1,
		ProductTypeID: 34,
		Status:        "active",
		StartDate:     now.Add(-2 * time.Hour),
		EndDate:       now.Add(2 * time.Hour),
		Runs:          10,
		Cost:          250_000,
	}
	facts := JobFacts{
		ProductName:    "Tritanium",
		LocationName:   "Jita IV - Moon 4",
		LocationKind:   "station",
		SystemName:     "Jita",
		SystemSecurity: 0.9459,
	}

	enriched := EnrichJob(job, facts, 90000001, now)

	assert.Equal(t, int64(42), enriched.JobID)
	assert.Equal(t, int64(90000001), enriched.CharacterID)
	assert.Equal(t, "Manufacturing", enriched.ActivityName)
	assert.Equal(t, 4.0, enriched.DurationHours)
	assert.Equal(t, 2.0, enriched.TimeRemainingHours)
	assert.Equal(t, 50.0, enriched.ProgressPercentage)
	assert.False(t, enriched.Completed)
	assert.False(t, enriched.Paused)
	assert.Equal(t, RiskLow, enriched.RiskLevel)
}

func TestEnrichNonActiveJobIsComplete(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	job := esi.Job{
		JobID:     7,
		Status:    "delivered",
		StartDate: now.Add(-48 * time.Hour),
		EndDate:   now.Add(24 * time.Hour), // end still ahead, status wins
	}

	enriched := EnrichJob(job, JobFacts{}, 90000001, now)

	assert.True(t, enriched.Completed)
	assert.Equal(t, 100.0, enriched.ProgressPercentage)
	assert.Equal(t, 0.0, enriched.TimeRemainingHours)
}

func TestEnrichPausedJob(t *testing.T) {
	now := time.Now().UTC()
	enriched := EnrichJob(esi.Job{JobID: 8, Status: "paused"}, JobFacts{}, 1, now)

	assert.True(t, enriched.Paused)
	assert.True(t, enriched.Completed, "paused is not active")
}

func TestEnrichProgressClamped(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	// active job already past its end date: elapsed exceeds duration
	overdue := esi.Job{
		Status:    "active",
		StartDate: now.Add(-10 * time.Hour),
		EndDate:   now.Add(-1 * time.Hour),
	}
	enriched := EnrichJob(overdue, JobFacts{}, 1, now)
	assert.Equal(t, 100.0, enriched.ProgressPercentage)
	assert.Equal(t, 0.0, enriched.TimeRemainingHours)

	// job scheduled for the future
	future := esi.Job{
		Status:    "active",
		StartDate: now.Add(time.Hour),
		EndDate:   now.Add(3 * time.Hour),
	}
	enriched = EnrichJob(future, JobFacts{}, 1, now)
	assert.Equal(t, 0.0, enriched.ProgressPercentage)
}

func TestEnrichWithDefaultFacts(t *testing.T) {
	job := esi.Job{
		JobID:         9,
		ProductTypeID: 603,
		CorporationID: 98000001,
		Status:        "active",
	}

	enriched := EnrichJob(job, defaultJobFacts(job), 1, time.Now().UTC())

	assert.Equal(t, "Type 603", enriched.ProductName)
	assert.Equal(t, UnknownLocation, enriched.LocationName)
	assert.Equal(t, UnknownSystem, enriched.SystemName)
	assert.Equal(t, "Corp 98000001", enriched.CorporationName)
	assert.Equal(t, RiskMedium, enriched.RiskLevel, "missing security defaults to 0.0")
}

func TestActivityName(t *testing.T) {
	assert.Equal(t, "Manufacturing", ActivityName(1))
	assert.Equal(t, "Invention", ActivityName(9))
	assert.Equal(t, "Reaction", ActivityName(11))
	assert.Equal(t, "Activity 42", ActivityName(42))
}

func TestEnrichDoesNotMutateInput(t *testing.T) {
	now := time.Now().UTC()
	job := esi.Job{JobID: 1, Status: "active", Runs: 5, Cost: 100}
	original := job

	_ = EnrichJob(job, defaultJobFacts(job), 1, now)

	assert.Equal(t, original, job)
}
