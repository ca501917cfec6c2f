package industry

import (
	"fmt"
	"math"
	"time"

	"github.com/forgetrack/forgetrack/internal/esi"
)

// Defaults substituted when a reference lookup fails or the upstream
// record omits the field.
const (
	UnknownLocation = "Unknown Location"
	UnknownStation  = "Unknown Station"
	UnknownSystem   = "Unknown System"
	unknownKind     = "unknown"
)

var activityNames = map[int]string{
	1:  "Manufacturing",
	3:  "Researching Technology",
	4:  "Researching Time Efficiency",
	5:  "Researching Material Efficiency",
	6:  "Copying",
	7:  "Duplicating",
	8:  "Reverse Engineering",
	9:  "Invention",
	11: "Reaction",
}

// ActivityName returns the display name for an activity code.
func ActivityName(activityID int) string {
	if name, ok := activityNames[activityID]; ok {
		return name
	}
	return fmt.Sprintf("Activity %d", activityID)
}

// JobFacts are the reference lookups already resolved for one job. The
// enrichment itself performs no network or cache access.
type JobFacts struct {
	ProductName     string
	ProductVolume   float64
	ProductCategory int64
	ProductGroup    int64

	LocationName     string
	LocationKind     string
	LocationSecurity float64

	StationName string
	StationKind string

	SystemName     string
	SystemSecurity float64

	CorporationName string
}

// EnrichedJob is the flat, fully resolved job record, ready for direct
// serialization.
type EnrichedJob struct {
	JobID       int64 `json:"job_id"`
	CharacterID int64 `json:"character_id"`

	ProductTypeID   int64   `json:"product_type_id"`
	ProductName     string  `json:"product_name"`
	ProductVolume   float64 `json:"product_volume"`
	ProductCategory int64   `json:"product_category"`
	ProductGroup    int64   `json:"product_group"`

	ActivityID   int    `json:"activity_id"`
	ActivityName string `json:"activity_name"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	LocationID       int64   `json:"location_id"`
	LocationName     string  `json:"location_name"`
	LocationKind     string  `json:"location_type"`
	LocationSecurity float64 `json:"location_security"`

	StationID   int64  `json:"station_id"`
	StationName string `json:"station_name"`
	StationKind string `json:"station_type"`

	SystemID       int64   `json:"system_id"`
	SystemName     string  `json:"system_name"`
	SystemSecurity float64 `json:"system_security"`

	CorporationID   int64  `json:"corporation_id"`
	CorporationName string `json:"corporation_name"`

	Status string  `json:"status"`
	Runs   int     `json:"runs"`
	Cost   float64 `json:"cost"`

	DurationHours      float64 `json:"duration_hours"`
	TimeRemainingHours float64 `json:"time_remaining_hours"`
	Completed          bool    `json:"is_completed"`
	Paused             bool    `json:"is_paused"`
	ProgressPercentage float64 `json:"progress_percentage"`

	Efficiency float64 `json:"efficiency"`
	Priority   string  `json:"priority"`
	RiskLevel  string  `json:"risk_level"`
}

// EnrichJob overlays a raw job with its resolved facts and derived
// fields. Pure: the inputs are never mutated.
func EnrichJob(job esi.Job, facts JobFacts, characterID int64, now time.Time) EnrichedJob {
	duration := durationHours(job.StartDate, job.EndDate)
	remaining := timeRemainingHours(job, now)
	progress := progressPercentage(job, now)

	score := priorityScore(remaining, job.Cost, progress)

	return EnrichedJob{
		JobID:       job.JobID,
		CharacterID: characterID,

		ProductTypeID:   job.ProductTypeID,
		ProductName:     facts.ProductName,
		ProductVolume:   facts.ProductVolume,
		ProductCategory: facts.ProductCategory,
		ProductGroup:    facts.ProductGroup,

		ActivityID:   job.ActivityID,
		ActivityName: ActivityName(job.ActivityID),

		StartDate: job.StartDate,
		EndDate:   job.EndDate,

		LocationID:       job.LocationID,
		LocationName:     facts.LocationName,
		LocationKind:     facts.LocationKind,
		LocationSecurity: facts.LocationSecurity,

		StationID:   job.StationID,
		StationName: facts.StationName,
		StationKind: facts.StationKind,

		SystemID:       job.SystemID,
		SystemName:     facts.SystemName,
		SystemSecurity: facts.SystemSecurity,

		CorporationID:   job.CorporationID,
		CorporationName: facts.CorporationName,

		Status: job.Status,
		Runs:   job.Runs,
		Cost:   job.Cost,

		DurationHours:      duration,
		TimeRemainingHours: remaining,
		Completed:          job.Status != "active",
		Paused:             job.Status == "paused",
		ProgressPercentage: progress,

		Efficiency: efficiencyRating(facts.SystemSecurity, facts.LocationKind),
		Priority:   PriorityBand(score),
		RiskLevel:  RiskFromSecurity(facts.SystemSecurity),
	}
}

// defaultJobFacts fills every reference field with its documented
// fallback; resolvers overwrite what they manage to look up.
func defaultJobFacts(job esi.Job) JobFacts {
	return JobFacts{
		ProductName:     fmt.Sprintf("Type %d", job.ProductTypeID),
		LocationName:    UnknownLocation,
		LocationKind:    unknownKind,
		StationName:     UnknownStation,
		StationKind:     unknownKind,
		SystemName:      UnknownSystem,
		CorporationName: fmt.Sprintf("Corp %d", job.CorporationID),
	}
}

func durationHours(start, end time.Time) float64 {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return round2(end.Sub(start).Hours())
}

func timeRemainingHours(job esi.Job, now time.Time) float64 {
	if job.Status != "active" || job.EndDate.IsZero() {
		return 0
	}
	return math.Max(0, round2(job.EndDate.Sub(now).Hours()))
}

func progressPercentage(job esi.Job, now time.Time) float64 {
	if job.Status != "active" {
		return 100
	}
	if job.StartDate.IsZero() || job.EndDate.IsZero() {
		return 0
	}

	total := job.EndDate.Sub(job.StartDate).Seconds()
	if total <= 0 {
		return 0
	}

	elapsed := now.Sub(job.StartDate).Seconds()
	progress := elapsed / total * 100
	return round1(math.Min(100, math.Max(0, progress)))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
