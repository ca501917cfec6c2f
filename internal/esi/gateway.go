package esi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/forgetrack/forgetrack/internal/cache"
	"github.com/forgetrack/forgetrack/internal/config"
)

// ErrUnauthorized reports that the upstream rejected the presented
// access token. Callers refresh the identity and retry exactly once;
// it is never produced by transient transport failures.
var ErrUnauthorized = errors.New("upstream rejected access token")

// UpstreamError reports a non-auth failure talking to the data API.
type UpstreamError struct {
	Entity     string
	StatusCode int
	Cause      error
}

func (e UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upstream %s request failed: %v", e.Entity, e.Cause)
	}
	return fmt.Sprintf("upstream %s request failed: status %d", e.Entity, e.StatusCode)
}

func (e UpstreamError) Unwrap() error {
	return e.Cause
}

// Status implements error reporting for HTTP responses.
func (e UpstreamError) Status() (int, string) {
	return http.StatusBadGateway, "upstream data service unavailable"
}

// Cache TTLs per entity class. Frequently changing data is held
// briefly, reference data for a day.
const (
	ttlJobs      = 5 * time.Minute
	ttlColonies  = 30 * time.Minute
	ttlAssets    = 30 * time.Minute
	ttlSkills    = time.Hour
	ttlReference = 24 * time.Hour
)

// structureIDFloor separates citadel/structure ids from NPC station
// ids: location ids above it resolve via the structure endpoint.
const structureIDFloor int64 = 1_000_000_000_000

// Gateway fetches upstream entities through the tiered cache. Every
// fetch consults the cache first and stores successful responses with
// the TTL of the entity class; identical concurrent requests may race
// to fetch, and the last write wins.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.Tiered
}

// New builds a gateway over the tiered cache. A nil client gets a
// default with the configured request timeout applied.
func New(cfg config.ESIConfig, tiered *cache.Tiered, httpClient *http.Client) *Gateway {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	}

	return &Gateway{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		httpClient: httpClient,
		cache:      tiered,
	}
}

// CharacterSkills returns the character's trained skills. Transient
// upstream failures degrade to an empty list; auth failures propagate
// so the caller can refresh and retry.
func (g *Gateway) CharacterSkills(ctx context.Context, characterID int64, token string) ([]Skill, error) {
	var resp skillsResponse
	err := g.fetch(ctx,
		fmt.Sprintf("skills:%d", characterID), ttlSkills,
		fmt.Sprintf("/characters/%d/skills/", characterID), token, &resp)
	if err != nil {
		return degradeList[Skill](err, "skills", characterID)
	}
	return resp.Skills, nil
}

// CharacterJobs returns the character's industry jobs, including
// recently completed ones.
func (g *Gateway) CharacterJobs(ctx context.Context, characterID int64, token string) ([]Job, error) {
	var jobs []Job
	err := g.fetch(ctx,
		fmt.Sprintf("jobs:%d", characterID), ttlJobs,
		fmt.Sprintf("/characters/%d/industry/jobs/?include_completed=true", characterID), token, &jobs)
	if err != nil {
		return degradeList[Job](err, "jobs", characterID)
	}
	return jobs, nil
}

// CharacterPlanets returns the character's colonized planets.
func (g *Gateway) CharacterPlanets(ctx context.Context, characterID int64, token string) ([]Planet, error) {
	var planets []Planet
	err := g.fetch(ctx,
		fmt.Sprintf("planets:%d", characterID), ttlColonies,
		fmt.Sprintf("/characters/%d/planets/", characterID), token, &planets)
	if err != nil {
		return degradeList[Planet](err, "planets", characterID)
	}
	return planets, nil
}

// CharacterPlanetDetail returns the colony layout for one planet.
func (g *Gateway) CharacterPlanetDetail(ctx context.Context, characterID, planetID int64, token string) (PlanetDetail, error) {
	var detail PlanetDetail
	err := g.fetch(ctx,
		fmt.Sprintf("planetdetail:%d:%d", characterID, planetID), ttlColonies,
		fmt.Sprintf("/characters/%d/planets/%d/", characterID, planetID), token, &detail)
	return detail, err
}

// CharacterBlueprints returns the character's owned blueprints.
func (g *Gateway) CharacterBlueprints(ctx context.Context, characterID int64, token string) ([]Blueprint, error) {
	var blueprints []Blueprint
	err := g.fetch(ctx,
		fmt.Sprintf("blueprints:%d", characterID), ttlSkills,
		fmt.Sprintf("/characters/%d/blueprints/", characterID), token, &blueprints)
	if err != nil {
		return degradeList[Blueprint](err, "blueprints", characterID)
	}
	return blueprints, nil
}

// CharacterAssets returns the character's assets.
func (g *Gateway) CharacterAssets(ctx context.Context, characterID int64, token string) ([]Asset, error) {
	var assets []Asset
	err := g.fetch(ctx,
		fmt.Sprintf("assets:%d", characterID), ttlAssets,
		fmt.Sprintf("/characters/%d/assets/", characterID), token, &assets)
	if err != nil {
		return degradeList[Asset](err, "assets", characterID)
	}
	return assets, nil
}

// TypeInfo resolves reference data for an item type.
func (g *Gateway) TypeInfo(ctx context.Context, typeID int64) (TypeInfo, error) {
	var info TypeInfo
	err := g.fetch(ctx,
		fmt.Sprintf("type:%d", typeID), ttlReference,
		fmt.Sprintf("/universe/types/%d/", typeID), "", &info)
	if err != nil {
		return TypeInfo{}, err
	}
	info.TypeID = typeID
	return info, nil
}

// LocationInfo resolves a location name and system. Ids above the
// structure floor are player structures, below it NPC stations.
func (g *Gateway) LocationInfo(ctx context.Context, locationID int64, token string) (LocationInfo, error) {
	var info LocationInfo
	if locationID > structureIDFloor {
		err := g.fetch(ctx,
			fmt.Sprintf("location:%d", locationID), ttlReference,
			fmt.Sprintf("/universe/structures/%d/", locationID), token, &info)
		if err != nil {
			return LocationInfo{}, err
		}
		info.Kind = "structure"
		return info, nil
	}

	station, err := g.StationInfo(ctx, locationID)
	if err != nil {
		return LocationInfo{}, err
	}
	return LocationInfo{
		Name:     station.Name,
		SystemID: station.SystemID,
		Kind:     "station",
	}, nil
}

// StationInfo resolves reference data for an NPC station.
func (g *Gateway) StationInfo(ctx context.Context, stationID int64) (StationInfo, error) {
	var info StationInfo
	err := g.fetch(ctx,
		fmt.Sprintf("station:%d", stationID), ttlReference,
		fmt.Sprintf("/universe/stations/%d/", stationID), "", &info)
	if err != nil {
		return StationInfo{}, err
	}
	info.StationID = stationID
	return info, nil
}

// SystemInfo resolves reference data for a solar system, including its
// security status.
func (g *Gateway) SystemInfo(ctx context.Context, systemID int64) (SystemInfo, error) {
	var info SystemInfo
	err := g.fetch(ctx,
		fmt.Sprintf("system:%d", systemID), ttlReference,
		fmt.Sprintf("/universe/systems/%d/", systemID), "", &info)
	if err != nil {
		return SystemInfo{}, err
	}
	info.SystemID = systemID
	return info, nil
}

// CorporationInfo resolves public corporation data.
func (g *Gateway) CorporationInfo(ctx context.Context, corporationID int64) (CorporationInfo, error) {
	var info CorporationInfo
	err := g.fetch(ctx,
		fmt.Sprintf("corporation:%d", corporationID), ttlReference,
		fmt.Sprintf("/corporations/%d/", corporationID), "", &info)
	return info, err
}

// PlanetInfo resolves reference data for a planet.
func (g *Gateway) PlanetInfo(ctx context.Context, planetID int64) (PlanetInfo, error) {
	var info PlanetInfo
	err := g.fetch(ctx,
		fmt.Sprintf("planetinfo:%d", planetID), ttlReference,
		fmt.Sprintf("/universe/planets/%d/", planetID), "", &info)
	if err != nil {
		return PlanetInfo{}, err
	}
	info.PlanetID = planetID
	return info, nil
}

// fetch consults the cache, then the upstream API. Successful responses
// are cached under the entity key with the class TTL; malformed
// responses are never cached.
func (g *Gateway) fetch(ctx context.Context, key string, ttl time.Duration, path, token string, out any) error {
	if payload, ok := g.cache.Get(ctx, key); ok {
		if err := json.Unmarshal(payload, out); err == nil {
			return nil
		}
		// a corrupt entry is dropped and refetched
		g.cache.Delete(ctx, key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return UpstreamError{Entity: key, Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return UpstreamError{Entity: key, Cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: %w", key, ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return UpstreamError{Entity: key, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return UpstreamError{Entity: key, Cause: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return UpstreamError{Entity: key, Cause: fmt.Errorf("decoding response: %w", err)}
	}

	g.cache.Set(ctx, key, body, ttl)
	return nil
}

// degradeList converts a transient failure on a list fetch into an
// empty result so one flaky endpoint does not sink a whole pipeline
// run. Auth failures pass through untouched.
func degradeList[T any](err error, entity string, scopeID int64) ([]T, error) {
	if errors.Is(err, ErrUnauthorized) {
		return nil, err
	}
	log.Warn().Err(err).
		Str("entity", entity).
		Int64("scopeID", scopeID).
		Msg("upstream list fetch failed, returning empty")
	return []T{}, nil
}
