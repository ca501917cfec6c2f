package industry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgetrack/forgetrack/internal/esi"
	"github.com/forgetrack/forgetrack/internal/identity"
	"github.com/forgetrack/forgetrack/internal/sso"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[int64]identity.Record
}

func newFakeStore(records ...identity.Record) *fakeStore {
	store := &fakeStore{records: map[int64]identity.Record{}}
	for _, rec := range records {
		store.records[rec.CharacterID] = rec
	}
	return store
}

func (s *fakeStore) Load(_ context.Context, characterID int64) (identity.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[characterID]
	return rec, ok, nil
}

func (s *fakeStore) Upsert(_ context.Context, rec identity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.CharacterID] = rec
	return nil
}

func (s *fakeStore) MarkInactive(_ context.Context, characterID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[characterID]; ok {
		rec.Active = false
		s.records[characterID] = rec
	}
	return nil
}

func (s *fakeStore) ListActive(context.Context) ([]identity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []identity.Record
	for _, rec := range s.records {
		if rec.Active {
			active = append(active, rec)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CharacterID < active[j].CharacterID
	})
	return active, nil
}

// fakeTokens mimics the authenticator: a failed refresh deactivates the
// identity in the store.
type fakeTokens struct {
	store *fakeStore

	mu           sync.Mutex
	failFor      map[int64]bool
	refreshCalls int
	freshToken   string
}

func (f *fakeTokens) EnsureFresh(ctx context.Context, rec identity.Record) (identity.Record, error) {
	f.mu.Lock()
	fails := f.failFor[rec.CharacterID]
	f.mu.Unlock()

	if fails {
		f.store.MarkInactive(ctx, rec.CharacterID)
		return identity.Record{}, sso.AuthExpiredError{CharacterID: rec.CharacterID}
	}
	return rec, nil
}

func (f *fakeTokens) Refresh(_ context.Context, rec identity.Record) (identity.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	rec.AccessToken = f.freshToken
	return rec, nil
}

var errNoReference = errors.New("reference lookup unavailable")

// fakeGateway serves canned data through function hooks; reference
// lookups always miss so enrichment falls back to defaults.
type fakeGateway struct {
	jobsFn       func(characterID int64, token string) ([]esi.Job, error)
	skillsFn     func(characterID int64, token string) ([]esi.Skill, error)
	planetsFn    func(characterID int64, token string) ([]esi.Planet, error)
	detailFn     func(characterID, planetID int64, token string) (esi.PlanetDetail, error)
	blueprintsFn func(characterID int64, token string) ([]esi.Blueprint, error)
	assetsFn     func(characterID int64, token string) ([]esi.Asset, error)
	ordersFn     func(regionID, typeID int64) ([]esi.MarketOrder, error)
}

func (g *fakeGateway) CharacterJobs(_ context.Context, characterID int64, token string) ([]esi.Job, error) {
	if g.jobsFn == nil {
		return []esi.Job{}, nil
	}
	return g.jobsFn(characterID, token)
}

func (g *fakeGateway) CharacterSkills(_ context.Context, characterID int64, token string) ([]esi.Skill, error) {
	if g.skillsFn == nil {
		return []esi.Skill{}, nil
	}
	return g.skillsFn(characterID, token)
}

func (g *fakeGateway) CharacterPlanets(_ context.Context, characterID int64, token string) ([]esi.Planet, error) {
	if g.planetsFn == nil {
		return []esi.Planet{}, nil
	}
	return g.planetsFn(characterID, token)
}

func (g *fakeGateway) CharacterPlanetDetail(_ context.Context, characterID, planetID int64, token string) (esi.PlanetDetail, error) {
	if g.detailFn == nil {
		return esi.PlanetDetail{}, nil
	}
	return g.detailFn(characterID, planetID, token)
}

func (g *fakeGateway) CharacterBlueprints(_ context.Context, characterID int64, token string) ([]esi.Blueprint, error) {
	if g.blueprintsFn == nil {
		return []esi.Blueprint{}, nil
	}
	return g.blueprintsFn(characterID, token)
}

func (g *fakeGateway) CharacterAssets(_ context.Context, characterID int64, token string) ([]esi.Asset, error) {
	if g.assetsFn == nil {
		return []esi.Asset{}, nil
	}
	return g.assetsFn(characterID, token)
}

func (g *fakeGateway) MarketOrders(_ context.Context, regionID, typeID int64) ([]esi.MarketOrder, error) {
	if g.ordersFn == nil {
		return []esi.MarketOrder{}, nil
	}
	return g.ordersFn(regionID, typeID)
}

func (g *fakeGateway) MarketPrices(context.Context, int64) ([]esi.MarketPrice, error) {
	return []esi.MarketPrice{}, nil
}

func (g *fakeGateway) RegionInfo(context.Context, int64) (esi.RegionInfo, error) {
	return esi.RegionInfo{}, errNoReference
}

func (g *fakeGateway) TypeInfo(context.Context, int64) (esi.TypeInfo, error) {
	return esi.TypeInfo{}, errNoReference
}

func (g *fakeGateway) LocationInfo(context.Context, int64, string) (esi.LocationInfo, error) {
	return esi.LocationInfo{}, errNoReference
}

func (g *fakeGateway) StationInfo(context.Context, int64) (esi.StationInfo, error) {
	return esi.StationInfo{}, errNoReference
}

func (g *fakeGateway) SystemInfo(context.Context, int64) (esi.SystemInfo, error) {
	return esi.SystemInfo{}, errNoReference
}

func (g *fakeGateway) CorporationInfo(context.Context, int64) (esi.CorporationInfo, error) {
	return esi.CorporationInfo{}, errNoReference
}

func (g *fakeGateway) PlanetInfo(context.Context, int64) (esi.PlanetInfo, error) {
	return esi.PlanetInfo{}, errNoReference
}

func activeRecord(characterID int64) identity.Record {
	return identity.Record{
		CharacterID:   characterID,
		CharacterName: fmt.Sprintf("Pilot %d", characterID),
		AccessToken:   fmt.Sprintf("token-%d", characterID),
		RefreshToken:  "refresh",
		TokenExpiry:   time.Now().Add(time.Hour),
		Active:        true,
	}
}

func TestJobsForAllContainsPerIdentityFailure(t *testing.T) {
	store := newFakeStore(activeRecord(1), activeRecord(2), activeRecord(3))
	tokens := &fakeTokens{store: store, failFor: map[int64]bool{2: true}}
	gateway := &fakeGateway{
		jobsFn: func(characterID int64, _ string) ([]esi.Job, error) {
			return []esi.Job{{JobID: characterID * 100, ActivityID: 1, Status: "active"}}, nil
		},
	}

	service := NewService(store, tokens, gateway, DefaultCapacityProfile())

	results, err := service.JobsForAll(context.Background())
	require.NoError(t, err, "one bad identity must not abort the aggregate")
	require.Len(t, results, 3)

	assert.Len(t, results[0].Jobs, 1)
	assert.Empty(t, results[1].Jobs, "failed identity degrades to empty")
	assert.Len(t, results[2].Jobs, 1)

	// the failed identity is deactivated, the others untouched
	rec, _, _ := store.Load(context.Background(), 2)
	assert.False(t, rec.Active)
	rec, _, _ = store.Load(context.Background(), 1)
	assert.True(t, rec.Active)
}

func TestJobsForRetriesOnceAfterUnauthorized(t *testing.T) {
	store := newFakeStore(activeRecord(1))
	tokens := &fakeTokens{store: store, freshToken: "fresh-token"}
	gateway := &fakeGateway{
		jobsFn: func(_ int64, token string) ([]esi.Job, error) {
			if token != "fresh-token" {
				return nil, fmt.Errorf("jobs: %w", esi.ErrUnauthorized)
			}
			return []esi.Job{{JobID: 7, ActivityID: 1, Status: "active"}}, nil
		},
	}

	service := NewService(store, tokens, gateway, DefaultCapacityProfile())

	jobs, err := service.JobsFor(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(7), jobs[0].JobID)
	assert.Equal(t, 1, tokens.refreshCalls)
}

func TestJobsForSecondUnauthorizedIsTerminal(t *testing.T) {
	store := newFakeStore(activeRecord(1))
	tokens := &fakeTokens{store: store, freshToken: "fresh-token"}
	gateway := &fakeGateway{
		jobsFn: func(int64, string) ([]esi.Job, error) {
			return nil, fmt.Errorf("jobs: %w", esi.ErrUnauthorized)
		},
	}

	service := NewService(store, tokens, gateway, DefaultCapacityProfile())

	_, err := service.JobsFor(context.Background(), 1)
	var expired sso.AuthExpiredError
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, int64(1), expired.CharacterID)
	assert.Equal(t, 1, tokens.refreshCalls, "exactly one retry")
}

func TestJobsForUnknownIdentity(t *testing.T) {
	store := newFakeStore()
	service := NewService(store, &fakeTokens{store: store}, &fakeGateway{}, DefaultCapacityProfile())

	_, err := service.JobsFor(context.Background(), 99)
	var expired sso.AuthExpiredError
	assert.ErrorAs(t, err, &expired)
}

func TestJobsForInactiveIdentity(t *testing.T) {
	rec := activeRecord(1)
	rec.Active = false
	store := newFakeStore(rec)
	service := NewService(store, &fakeTokens{store: store}, &fakeGateway{}, DefaultCapacityProfile())

	_, err := service.JobsFor(context.Background(), 1)
	var expired sso.AuthExpiredError
	assert.ErrorAs(t, err, &expired)
}

func TestCapacityFor(t *testing.T) {
	store := newFakeStore(activeRecord(1))
	tokens := &fakeTokens{store: store}
	gateway := &fakeGateway{
		skillsFn: func(int64, string) ([]esi.Skill, error) {
			return []esi.Skill{
				{SkillID: 3385, ActiveSkillLevel: 4},
				{SkillID: 2495, ActiveSkillLevel: 2},
			}, nil
		},
		jobsFn: func(int64, string) ([]esi.Job, error) {
			return []esi.Job{
				{JobID: 1, ActivityID: 1, Status: "active"},
				{JobID: 2, ActivityID: 1, Status: "active"},
			}, nil
		},
		planetsFn: func(int64, string) ([]esi.Planet, error) {
			return []esi.Planet{{PlanetID: 1}, {PlanetID: 2}, {PlanetID: 3}}, nil
		},
	}

	service := NewService(store, tokens, gateway, DefaultCapacityProfile())

	usage, err := service.CapacityFor(context.Background(), 1)
	require.NoError(t, err)

	byName := indexUsage(usage)
	assert.Equal(t, 5, byName["manufacturing"].Total)
	assert.Equal(t, 2, byName["manufacturing"].Used)
	assert.Equal(t, 3, byName["planets"].Total)
	assert.Equal(t, 3, byName["planets"].Used)
}

func TestCapacityForRetriesMidPipeline(t *testing.T) {
	store := newFakeStore(activeRecord(1))
	tokens := &fakeTokens{store: store, freshToken: "fresh-token"}
	gateway := &fakeGateway{
		skillsFn: func(int64, string) ([]esi.Skill, error) {
			return []esi.Skill{{SkillID: 3385, ActiveSkillLevel: 2}}, nil
		},
		// token revoked between the skills and jobs fetches
		jobsFn: func(_ int64, token string) ([]esi.Job, error) {
			if token != "fresh-token" {
				return nil, fmt.Errorf("jobs: %w", esi.ErrUnauthorized)
			}
			return []esi.Job{{JobID: 1, ActivityID: 1, Status: "active"}}, nil
		},
	}

	service := NewService(store, tokens, gateway, DefaultCapacityProfile())

	usage, err := service.CapacityFor(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, tokens.refreshCalls, "exactly one mid-pipeline refresh")

	byName := indexUsage(usage)
	assert.Equal(t, 3, byName["manufacturing"].Total)
	assert.Equal(t, 1, byName["manufacturing"].Used)
}

func TestBlueprintsFor(t *testing.T) {
	store := newFakeStore(activeRecord(1))
	tokens := &fakeTokens{store: store}
	gateway := &fakeGateway{
		blueprintsFn: func(characterID int64, _ string) ([]esi.Blueprint, error) {
			return []esi.Blueprint{{ItemID: 1001, TypeID: 691, MaterialEfficiency: 10}}, nil
		},
	}

	service := NewService(store, tokens, gateway, DefaultCapacityProfile())

	blueprints, err := service.BlueprintsFor(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, blueprints, 1)
	assert.Equal(t, int64(691), blueprints[0].TypeID)
	assert.Equal(t, 10, blueprints[0].MaterialEfficiency)
}

func TestBlueprintsForUnknownIdentity(t *testing.T) {
	store := newFakeStore()
	service := NewService(store, &fakeTokens{store: store}, &fakeGateway{}, DefaultCapacityProfile())

	_, err := service.BlueprintsFor(context.Background(), 99)
	var expired sso.AuthExpiredError
	assert.ErrorAs(t, err, &expired)
}

func TestAssetsFor(t *testing.T) {
	store := newFakeStore(activeRecord(1))
	tokens := &fakeTokens{store: store}
	gateway := &fakeGateway{
		assetsFn: func(characterID int64, _ string) ([]esi.Asset, error) {
			return []esi.Asset{{ItemID: 2001, TypeID: 34, Quantity: 50000}}, nil
		},
	}

	service := NewService(store, tokens, gateway, DefaultCapacityProfile())

	assets, err := service.AssetsFor(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, int64(50000), assets[0].Quantity)
}

func TestTypePricesForDefaultsRegion(t *testing.T) {
	store := newFakeStore()
	gateway := &fakeGateway{
		ordersFn: func(regionID, typeID int64) ([]esi.MarketOrder, error) {
			assert.Equal(t, DefaultMarketRegion, regionID)
			assert.Equal(t, int64(34), typeID)
			return []esi.MarketOrder{
				{IsBuyOrder: true, Price: 4.0, VolumeRemain: 100},
				{IsBuyOrder: false, Price: 5.0, VolumeRemain: 200},
			}, nil
		},
	}

	service := NewService(store, &fakeTokens{store: store}, gateway, DefaultCapacityProfile())

	prices, err := service.TypePricesFor(context.Background(), 34, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultMarketRegion, prices.RegionID)
	assert.Equal(t, 4.0, prices.BuyPrice)
	assert.Equal(t, 5.0, prices.SellPrice)
	assert.Equal(t, 1.0, prices.Spread)
}

func TestMarketValueFor(t *testing.T) {
	store := newFakeStore()
	gateway := &fakeGateway{
		ordersFn: func(int64, int64) ([]esi.MarketOrder, error) {
			return []esi.MarketOrder{
				{IsBuyOrder: true, Price: 4.0, VolumeRemain: 100},
				{IsBuyOrder: false, Price: 6.0, VolumeRemain: 200},
			}, nil
		},
	}

	service := NewService(store, &fakeTokens{store: store}, gateway, DefaultCapacityProfile())

	value, err := service.MarketValueFor(context.Background(), 34, 10000043, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(10000043), value.RegionID)
	assert.Equal(t, 400.0, value.BuyValue)
	assert.Equal(t, 600.0, value.SellValue)
	assert.Equal(t, 500.0, value.AverageValue)
}

func TestPlanetsForSkipsBrokenColony(t *testing.T) {
	store := newFakeStore(activeRecord(1))
	tokens := &fakeTokens{store: store}
	gateway := &fakeGateway{
		planetsFn: func(int64, string) ([]esi.Planet, error) {
			return []esi.Planet{
				{PlanetID: 10, SolarSystemID: 30000142},
				{PlanetID: 20, SolarSystemID: 30000142},
			}, nil
		},
		detailFn: func(_, planetID int64, _ string) (esi.PlanetDetail, error) {
			if planetID == 20 {
				return esi.PlanetDetail{}, esi.UpstreamError{Entity: "planetdetail", StatusCode: 500}
			}
			return esi.PlanetDetail{
				Extractors: []esi.Extractor{
					{PinID: 1, State: "active", ExpiryTime: time.Now().Add(time.Hour)},
				},
			}, nil
		},
	}

	service := NewService(store, tokens, gateway, DefaultCapacityProfile())

	planets, err := service.PlanetsFor(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, planets, 1)
	assert.Equal(t, int64(10), planets[0].PlanetID)
	assert.Equal(t, 1, planets[0].ActiveExtractors)
}

func TestSummaryFor(t *testing.T) {
	store := newFakeStore(activeRecord(1))
	tokens := &fakeTokens{store: store}
	gateway := &fakeGateway{
		jobsFn: func(int64, string) ([]esi.Job, error) {
			return []esi.Job{
				{JobID: 1, ActivityID: 1, Status: "active", EndDate: time.Now().Add(30 * time.Minute)},
				{JobID: 2, ActivityID: 6, Status: "delivered"},
			}, nil
		},
	}

	service := NewService(store, tokens, gateway, DefaultCapacityProfile())

	summary, err := service.SummaryFor(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalJobs)
	assert.Equal(t, 1, summary.ActiveJobs)
	assert.Equal(t, 1, summary.CompletedJobs)
	assert.Equal(t, 1, summary.JobsByActivity["Manufacturing"])
	assert.Equal(t, 1, summary.JobsByActivity["Copying"])
}
