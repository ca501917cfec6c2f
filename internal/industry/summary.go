package industry

import "sort"

// Summary is the per-character industry digest.
type Summary struct {
	CharacterID   int64 `json:"character_id"`
	TotalJobs     int   `json:"total_jobs"`
	ActiveJobs    int   `json:"active_jobs"`
	CompletedJobs int   `json:"completed_jobs"`
	PausedJobs    int   `json:"paused_jobs"`

	JobsByActivity map[string]int `json:"jobs_by_activity"`
	JobsByLocation map[string]int `json:"jobs_by_location"`
	JobsByPriority map[string]int `json:"jobs_by_priority"`

	TotalCost        float64        `json:"total_cost"`
	EfficiencyRating float64        `json:"efficiency_rating"`
	RiskDistribution map[string]int `json:"risk_distribution"`

	UpcomingCompletions []EnrichedJob `json:"upcoming_completions"`
	NeedsAttention      []EnrichedJob `json:"needs_attention"`
}

// summaryListCap bounds the upcoming/attention lists.
const summaryListCap = 10

// Summarize digests enriched jobs into per-character statistics. The
// upcoming list holds active jobs completing within 24 hours, soonest
// first; the attention list holds jobs completing within the hour,
// high-priority jobs and paused jobs.
func Summarize(characterID int64, jobs []EnrichedJob) Summary {
	summary := Summary{
		CharacterID:      characterID,
		TotalJobs:        len(jobs),
		JobsByActivity:   map[string]int{},
		JobsByLocation:   map[string]int{},
		JobsByPriority:   map[string]int{PriorityHigh: 0, PriorityMedium: 0, PriorityLow: 0},
		RiskDistribution: map[string]int{RiskHigh: 0, RiskMedium: 0, RiskLow: 0},
	}

	var efficiencyTotal float64
	var upcoming, attention []EnrichedJob

	for _, job := range jobs {
		if job.Status == "active" {
			summary.ActiveJobs++
		}
		if job.Completed {
			summary.CompletedJobs++
		}
		if job.Paused {
			summary.PausedJobs++
		}

		summary.JobsByActivity[job.ActivityName]++
		summary.JobsByLocation[job.LocationName]++
		summary.JobsByPriority[job.Priority]++
		summary.RiskDistribution[job.RiskLevel]++

		summary.TotalCost += job.Cost
		efficiencyTotal += job.Efficiency

		if job.Status == "active" && job.TimeRemainingHours <= 24 {
			upcoming = append(upcoming, job)
		}
		if (job.TimeRemainingHours < 1 && !job.Completed) ||
			job.Priority == PriorityHigh || job.Paused {
			attention = append(attention, job)
		}
	}

	if len(jobs) > 0 {
		summary.EfficiencyRating = round2(efficiencyTotal / float64(len(jobs)))
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].TimeRemainingHours < upcoming[j].TimeRemainingHours
	})
	sort.SliceStable(attention, func(i, j int) bool {
		return attention[i].TimeRemainingHours < attention[j].TimeRemainingHours
	})

	summary.UpcomingCompletions = truncateJobs(upcoming)
	summary.NeedsAttention = truncateJobs(attention)

	return summary
}

func truncateJobs(jobs []EnrichedJob) []EnrichedJob {
	if jobs == nil {
		return []EnrichedJob{}
	}
	if len(jobs) > summaryListCap {
		return jobs[:summaryListCap]
	}
	return jobs
}

// SecurityAnalysis classifies the systems hosting jobs by security
// band.
type SecurityAnalysis struct {
	HighSecLocations int `json:"high_sec_locations"`
	LowSecLocations  int `json:"low_sec_locations"`
	NullSecLocations int `json:"null_sec_locations"`

	JobsInHighSec int `json:"total_jobs_in_high_sec"`
	JobsInLowSec  int `json:"total_jobs_in_low_sec"`
	JobsInNullSec int `json:"total_jobs_in_null_sec"`

	RiskyLocations []RiskyLocation `json:"risky_locations"`
}

// RiskyLocation is a null-sec location hosting jobs.
type RiskyLocation struct {
	Location string  `json:"location"`
	Security float64 `json:"security"`
	JobCount int     `json:"job_count"`
}

// AnalyzeLocationSecurity groups jobs by location and classifies each
// location by the hosting system's security.
func AnalyzeLocationSecurity(jobs []EnrichedJob) SecurityAnalysis {
	type locationState struct {
		security float64
		count    int
	}

	locations := map[string]*locationState{}
	order := []string{}
	for _, job := range jobs {
		state, ok := locations[job.LocationName]
		if !ok {
			state = &locationState{security: job.SystemSecurity}
			locations[job.LocationName] = state
			order = append(order, job.LocationName)
		}
		state.count++
	}

	analysis := SecurityAnalysis{RiskyLocations: []RiskyLocation{}}
	for _, name := range order {
		state := locations[name]
		switch {
		case state.security >= 0.5:
			analysis.HighSecLocations++
			analysis.JobsInHighSec += state.count
		case state.security >= 0.0:
			analysis.LowSecLocations++
			analysis.JobsInLowSec += state.count
		default:
			analysis.NullSecLocations++
			analysis.JobsInNullSec += state.count
			analysis.RiskyLocations = append(analysis.RiskyLocations, RiskyLocation{
				Location: name,
				Security: state.security,
				JobCount: state.count,
			})
		}
	}

	return analysis
}
