package industry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/forgetrack/forgetrack/internal/esi"
	"github.com/forgetrack/forgetrack/internal/identity"
	"github.com/forgetrack/forgetrack/internal/sso"
)

// TokenSource keeps an identity's access token presentable.
type TokenSource interface {
	EnsureFresh(ctx context.Context, rec identity.Record) (identity.Record, error)
	Refresh(ctx context.Context, rec identity.Record) (identity.Record, error)
}

// Gateway is the upstream data surface the pipelines consume.
type Gateway interface {
	CharacterSkills(ctx context.Context, characterID int64, token string) ([]esi.Skill, error)
	CharacterJobs(ctx context.Context, characterID int64, token string) ([]esi.Job, error)
	CharacterPlanets(ctx context.Context, characterID int64, token string) ([]esi.Planet, error)
	CharacterPlanetDetail(ctx context.Context, characterID, planetID int64, token string) (esi.PlanetDetail, error)
	CharacterBlueprints(ctx context.Context, characterID int64, token string) ([]esi.Blueprint, error)
	CharacterAssets(ctx context.Context, characterID int64, token string) ([]esi.Asset, error)

	MarketOrders(ctx context.Context, regionID, typeID int64) ([]esi.MarketOrder, error)
	MarketPrices(ctx context.Context, regionID int64) ([]esi.MarketPrice, error)
	RegionInfo(ctx context.Context, regionID int64) (esi.RegionInfo, error)

	TypeInfo(ctx context.Context, typeID int64) (esi.TypeInfo, error)
	LocationInfo(ctx context.Context, locationID int64, token string) (esi.LocationInfo, error)
	StationInfo(ctx context.Context, stationID int64) (esi.StationInfo, error)
	SystemInfo(ctx context.Context, systemID int64) (esi.SystemInfo, error)
	CorporationInfo(ctx context.Context, corporationID int64) (esi.CorporationInfo, error)
	PlanetInfo(ctx context.Context, planetID int64) (esi.PlanetInfo, error)
}

// Service runs the per-identity pipelines: refresh-if-needed, fetch,
// enrich. Pipelines for different identities are independent and run
// concurrently; within one pipeline the steps are sequential.
type Service struct {
	identities identity.Store
	tokens     TokenSource
	gateway    Gateway
	profile    CapacityProfile

	now func() time.Time
}

func NewService(identities identity.Store, tokens TokenSource, gateway Gateway, profile CapacityProfile) *Service {
	return &Service{
		identities: identities,
		tokens:     tokens,
		gateway:    gateway,
		profile:    profile,
		now:        time.Now,
	}
}

// CharacterJobs is one character's fully enriched job list.
type CharacterJobs struct {
	CharacterID   int64         `json:"character_id"`
	CharacterName string        `json:"character_name"`
	Jobs          []EnrichedJob `json:"jobs"`
}

// CharacterColonies is one character's enriched colony list.
type CharacterColonies struct {
	CharacterID   int64            `json:"character_id"`
	CharacterName string           `json:"character_name"`
	Planets       []EnrichedPlanet `json:"planets"`
}

// CharacterCapacity is one character's slot usage.
type CharacterCapacity struct {
	CharacterID   int64           `json:"character_id"`
	CharacterName string          `json:"character_name"`
	Capacity      []CapacityUsage `json:"capacity"`
}

// JobsForAll fans out one jobs pipeline per active identity. A failed
// identity contributes an empty slice; the rest complete normally.
func (s *Service) JobsForAll(ctx context.Context) ([]CharacterJobs, error) {
	records, err := s.identities.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active identities: %w", err)
	}

	results := make([]CharacterJobs, len(records))

	// pipelines outlive an abandoned request so their fetches still
	// populate the cache for the next caller
	workCtx := context.WithoutCancel(ctx)

	var group errgroup.Group
	for i, rec := range records {
		group.Go(func() error {
			jobs, err := s.jobsFor(workCtx, rec)
			if err != nil {
				logPipelineFailure(rec, "jobs", err)
				jobs = []EnrichedJob{}
			}
			results[i] = CharacterJobs{
				CharacterID:   rec.CharacterID,
				CharacterName: rec.CharacterName,
				Jobs:          jobs,
			}
			return nil
		})
	}
	_ = group.Wait() // pipeline errors are contained, never propagated

	return results, nil
}

// JobsFor runs the jobs pipeline for a single character.
func (s *Service) JobsFor(ctx context.Context, characterID int64) ([]EnrichedJob, error) {
	rec, err := s.activeIdentity(ctx, characterID)
	if err != nil {
		return nil, err
	}
	return s.jobsFor(ctx, rec)
}

func (s *Service) jobsFor(ctx context.Context, rec identity.Record) ([]EnrichedJob, error) {
	rec, err := s.tokens.EnsureFresh(ctx, rec)
	if err != nil {
		return nil, err
	}

	jobs, rec, err := fetchWithRetry(ctx, s.tokens, rec, func(r identity.Record) ([]esi.Job, error) {
		return s.gateway.CharacterJobs(ctx, rec.CharacterID, r.AccessToken)
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	enriched := make([]EnrichedJob, 0, len(jobs))
	for _, job := range jobs {
		facts := s.resolveJobFacts(ctx, job, rec.AccessToken)
		enriched = append(enriched, EnrichJob(job, facts, rec.CharacterID, now))
	}

	return enriched, nil
}

// PlanetsForAll fans out one colony pipeline per active identity, with
// the same containment as JobsForAll.
func (s *Service) PlanetsForAll(ctx context.Context) ([]CharacterColonies, error) {
	records, err := s.identities.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active identities: %w", err)
	}

	results := make([]CharacterColonies, len(records))
	workCtx := context.WithoutCancel(ctx)

	var group errgroup.Group
	for i, rec := range records {
		group.Go(func() error {
			planets, err := s.planetsFor(workCtx, rec)
			if err != nil {
				logPipelineFailure(rec, "planets", err)
				planets = []EnrichedPlanet{}
			}
			results[i] = CharacterColonies{
				CharacterID:   rec.CharacterID,
				CharacterName: rec.CharacterName,
				Planets:       planets,
			}
			return nil
		})
	}
	_ = group.Wait() // pipeline errors are contained, never propagated

	return results, nil
}

// PlanetsFor runs the colony pipeline for a single character.
func (s *Service) PlanetsFor(ctx context.Context, characterID int64) ([]EnrichedPlanet, error) {
	rec, err := s.activeIdentity(ctx, characterID)
	if err != nil {
		return nil, err
	}
	return s.planetsFor(ctx, rec)
}

func (s *Service) planetsFor(ctx context.Context, rec identity.Record) ([]EnrichedPlanet, error) {
	rec, err := s.tokens.EnsureFresh(ctx, rec)
	if err != nil {
		return nil, err
	}

	planets, rec, err := fetchWithRetry(ctx, s.tokens, rec, func(r identity.Record) ([]esi.Planet, error) {
		return s.gateway.CharacterPlanets(ctx, rec.CharacterID, r.AccessToken)
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	enriched := make([]EnrichedPlanet, 0, len(planets))
	for _, planet := range planets {
		detail, err := s.gateway.CharacterPlanetDetail(ctx, rec.CharacterID, planet.PlanetID, rec.AccessToken)
		if err != nil {
			// one broken colony never sinks the rest
			log.Warn().Err(err).
				Int64("characterID", rec.CharacterID).
				Int64("planetID", planet.PlanetID).
				Msg("skipping colony, detail fetch failed")
			continue
		}

		facts := s.resolvePlanetFacts(ctx, planet)
		enriched = append(enriched, EnrichPlanet(planet, detail, facts, now))
	}

	return enriched, nil
}

// CapacityForAll computes slot usage for every active identity.
func (s *Service) CapacityForAll(ctx context.Context) ([]CharacterCapacity, error) {
	records, err := s.identities.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active identities: %w", err)
	}

	results := make([]CharacterCapacity, len(records))
	workCtx := context.WithoutCancel(ctx)

	var group errgroup.Group
	for i, rec := range records {
		group.Go(func() error {
			capacity, err := s.capacityFor(workCtx, rec)
			if err != nil {
				logPipelineFailure(rec, "capacity", err)
				capacity = []CapacityUsage{}
			}
			results[i] = CharacterCapacity{
				CharacterID:   rec.CharacterID,
				CharacterName: rec.CharacterName,
				Capacity:      capacity,
			}
			return nil
		})
	}
	_ = group.Wait() // pipeline errors are contained, never propagated

	return results, nil
}

// CapacityFor computes slot usage for a single character.
func (s *Service) CapacityFor(ctx context.Context, characterID int64) ([]CapacityUsage, error) {
	rec, err := s.activeIdentity(ctx, characterID)
	if err != nil {
		return nil, err
	}
	return s.capacityFor(ctx, rec)
}

func (s *Service) capacityFor(ctx context.Context, rec identity.Record) ([]CapacityUsage, error) {
	rec, err := s.tokens.EnsureFresh(ctx, rec)
	if err != nil {
		return nil, err
	}

	skills, rec, err := fetchWithRetry(ctx, s.tokens, rec, func(r identity.Record) ([]esi.Skill, error) {
		return s.gateway.CharacterSkills(ctx, rec.CharacterID, r.AccessToken)
	})
	if err != nil {
		return nil, err
	}

	jobs, rec, err := fetchWithRetry(ctx, s.tokens, rec, func(r identity.Record) ([]esi.Job, error) {
		return s.gateway.CharacterJobs(ctx, rec.CharacterID, r.AccessToken)
	})
	if err != nil {
		return nil, err
	}

	planets, _, err := fetchWithRetry(ctx, s.tokens, rec, func(r identity.Record) ([]esi.Planet, error) {
		return s.gateway.CharacterPlanets(ctx, rec.CharacterID, r.AccessToken)
	})
	if err != nil {
		return nil, err
	}

	return s.profile.Compute(skills, jobs, len(planets)), nil
}

// SummaryFor digests one character's enriched jobs.
func (s *Service) SummaryFor(ctx context.Context, characterID int64) (Summary, error) {
	jobs, err := s.JobsFor(ctx, characterID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(characterID, jobs), nil
}

// BlueprintsFor returns the character's raw blueprints.
func (s *Service) BlueprintsFor(ctx context.Context, characterID int64) ([]esi.Blueprint, error) {
	rec, err := s.activeIdentity(ctx, characterID)
	if err != nil {
		return nil, err
	}
	rec, err = s.tokens.EnsureFresh(ctx, rec)
	if err != nil {
		return nil, err
	}

	blueprints, _, err := fetchWithRetry(ctx, s.tokens, rec, func(r identity.Record) ([]esi.Blueprint, error) {
		return s.gateway.CharacterBlueprints(ctx, rec.CharacterID, r.AccessToken)
	})
	return blueprints, err
}

// AssetsFor returns the character's raw assets.
func (s *Service) AssetsFor(ctx context.Context, characterID int64) ([]esi.Asset, error) {
	rec, err := s.activeIdentity(ctx, characterID)
	if err != nil {
		return nil, err
	}
	rec, err = s.tokens.EnsureFresh(ctx, rec)
	if err != nil {
		return nil, err
	}

	assets, _, err := fetchWithRetry(ctx, s.tokens, rec, func(r identity.Record) ([]esi.Asset, error) {
		return s.gateway.CharacterAssets(ctx, rec.CharacterID, r.AccessToken)
	})
	return assets, err
}

func (s *Service) activeIdentity(ctx context.Context, characterID int64) (identity.Record, error) {
	rec, found, err := s.identities.Load(ctx, characterID)
	if err != nil {
		return identity.Record{}, fmt.Errorf("loading identity %d: %w", characterID, err)
	}
	if !found || !rec.Active {
		return identity.Record{}, sso.AuthExpiredError{CharacterID: characterID}
	}
	return rec, nil
}

// fetchWithRetry runs an authenticated fetch and, on an upstream auth
// rejection, refreshes the token and retries exactly once. A second
// rejection is terminal.
func fetchWithRetry[T any](ctx context.Context, tokens TokenSource, rec identity.Record, fetch func(identity.Record) (T, error)) (T, identity.Record, error) {
	out, err := fetch(rec)
	if err == nil || !errors.Is(err, esi.ErrUnauthorized) {
		return out, rec, err
	}

	refreshed, refreshErr := tokens.Refresh(ctx, rec)
	if refreshErr != nil {
		var zero T
		return zero, rec, refreshErr
	}

	out, err = fetch(refreshed)
	if errors.Is(err, esi.ErrUnauthorized) {
		var zero T
		return zero, refreshed, sso.AuthExpiredError{CharacterID: rec.CharacterID, Cause: err}
	}
	return out, refreshed, err
}

// resolveJobFacts performs the reference lookups a job's enrichment
// needs, substituting the documented defaults for anything that cannot
// be resolved.
func (s *Service) resolveJobFacts(ctx context.Context, job esi.Job, token string) JobFacts {
	facts := defaultJobFacts(job)

	if job.ProductTypeID != 0 {
		if info, err := s.gateway.TypeInfo(ctx, job.ProductTypeID); err == nil {
			facts.ProductName = info.Name
			facts.ProductVolume = info.Volume
			facts.ProductCategory = info.CategoryID
			facts.ProductGroup = info.GroupID
		}
	}

	if job.LocationID != 0 {
		if info, err := s.gateway.LocationInfo(ctx, job.LocationID, token); err == nil {
			facts.LocationName = info.Name
			facts.LocationKind = info.Kind
			facts.LocationSecurity = info.SecurityStatus
		}
	}

	if job.StationID != 0 {
		if info, err := s.gateway.StationInfo(ctx, job.StationID); err == nil {
			facts.StationName = info.Name
			facts.StationKind = "station"
		}
	}

	if job.SystemID != 0 {
		if info, err := s.gateway.SystemInfo(ctx, job.SystemID); err == nil {
			facts.SystemName = info.Name
			facts.SystemSecurity = info.SecurityStatus
		}
	}

	if job.CorporationID != 0 {
		if info, err := s.gateway.CorporationInfo(ctx, job.CorporationID); err == nil {
			facts.CorporationName = info.Name
		}
	}

	return facts
}

func (s *Service) resolvePlanetFacts(ctx context.Context, planet esi.Planet) PlanetFacts {
	facts := defaultPlanetFacts(planet)

	if info, err := s.gateway.PlanetInfo(ctx, planet.PlanetID); err == nil && info.Name != "" {
		facts.PlanetName = info.Name
	}
	if info, err := s.gateway.SystemInfo(ctx, planet.SolarSystemID); err == nil && info.Name != "" {
		facts.SystemName = info.Name
	}

	return facts
}

func logPipelineFailure(rec identity.Record, pipeline string, err error) {
	log.Warn().Err(err).
		Int64("characterID", rec.CharacterID).
		Str("characterName", rec.CharacterName).
		Str("pipeline", pipeline).
		Msg("identity pipeline failed, returning empty slice")
}
