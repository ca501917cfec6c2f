package industry

import (
	"fmt"
	"time"

	"github.com/forgetrack/forgetrack/internal/esi"
)

// extractorPinTypes identifies extractor control units among colony
// pins.
var extractorPinTypes = map[int64]struct{}{
	2250: {}, 2251: {}, 2252: {}, 2253: {}, 2254: {}, 2255: {},
}

// PlanetFacts are the resolved reference lookups for one colony.
type PlanetFacts struct {
	PlanetName string
	SystemName string
}

// PlanetJob is a synthetic job derived from an active extractor, so
// colony work shows up next to industry jobs.
type PlanetJob struct {
	JobID         string    `json:"job_id"`
	ProductName   string    `json:"product_name"`
	ProductTypeID int64     `json:"product_type_id"`
	ActivityID    int       `json:"activity_id"`
	ActivityName  string    `json:"activity_name"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	LocationID    int64     `json:"location_id"`
	LocationName  string    `json:"location_name"`
	Status        string    `json:"status"`
	Runs          int       `json:"runs"`
	Cost          float64   `json:"cost"`
	PlanetID      int64     `json:"planet_id"`
	ExtractorID   int64     `json:"extractor_id"`
	IsPlanetJob   bool      `json:"is_planet_job"`
}

// EnrichedPlanet is the fully resolved state of one colony.
type EnrichedPlanet struct {
	PlanetID         int64           `json:"planet_id"`
	PlanetName       string          `json:"planet_name"`
	SolarSystemID    int64           `json:"solar_system_id"`
	SolarSystemName  string          `json:"solar_system_name"`
	PlanetType       string          `json:"planet_type"`
	NeedsAttention   bool            `json:"needs_attention"`
	ActiveExtractors int             `json:"active_extractors"`
	ActiveJobs       int             `json:"active_jobs"`
	Jobs             []PlanetJob     `json:"jobs"`
	Extractors       []esi.Extractor `json:"extractors"`
	Pins             []esi.Pin       `json:"pins"`
}

// EnrichPlanet derives the colony state from its summary, layout and
// resolved facts. A colony needs attention when any active extractor
// has run past its expiry. Pure: inputs are never mutated.
func EnrichPlanet(planet esi.Planet, detail esi.PlanetDetail, facts PlanetFacts, now time.Time) EnrichedPlanet {
	needsAttention := false
	activeExtractors := 0

	for _, extractor := range detail.Extractors {
		if extractor.State != "active" {
			continue
		}
		activeExtractors++
		if !extractor.ExpiryTime.IsZero() && !extractor.ExpiryTime.After(now) {
			needsAttention = true
		}
	}

	activeJobs := 0
	for _, pin := range detail.Pins {
		if _, ok := extractorPinTypes[pin.TypeID]; ok && pin.State == "active" {
			activeJobs++
		}
	}

	status := "active"
	if needsAttention {
		status = "needs_attention"
	}

	locationName := fmt.Sprintf("%s - %s", facts.PlanetName, facts.SystemName)

	jobs := make([]PlanetJob, 0, activeExtractors)
	for _, extractor := range detail.Extractors {
		if extractor.State != "active" {
			continue
		}
		jobs = append(jobs, PlanetJob{
			JobID:         fmt.Sprintf("planet_%d_extractor_%d", planet.PlanetID, extractor.PinID),
			ProductName:   fmt.Sprintf("Extractor on %s", facts.PlanetName),
			ProductTypeID: extractor.TypeID,
			ActivityID:    7,
			ActivityName:  ActivityName(7),
			StartDate:     extractor.StartTime,
			EndDate:       extractor.ExpiryTime,
			LocationID:    planet.PlanetID,
			LocationName:  locationName,
			Status:        status,
			Runs:          1,
			PlanetID:      planet.PlanetID,
			ExtractorID:   extractor.PinID,
			IsPlanetJob:   true,
		})
	}

	return EnrichedPlanet{
		PlanetID:         planet.PlanetID,
		PlanetName:       facts.PlanetName,
		SolarSystemID:    planet.SolarSystemID,
		SolarSystemName:  facts.SystemName,
		PlanetType:       planet.PlanetType,
		NeedsAttention:   needsAttention,
		ActiveExtractors: activeExtractors,
		ActiveJobs:       activeJobs,
		Jobs:             jobs,
		Extractors:       detail.Extractors,
		Pins:             detail.Pins,
	}
}

func defaultPlanetFacts(planet esi.Planet) PlanetFacts {
	return PlanetFacts{
		PlanetName: fmt.Sprintf("Planet %d", planet.PlanetID),
		SystemName: fmt.Sprintf("System %d", planet.SolarSystemID),
	}
}
