package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/justinas/alice"

	"github.com/forgetrack/forgetrack/internal/cache"
	"github.com/forgetrack/forgetrack/internal/config"
	"github.com/forgetrack/forgetrack/internal/esi"
	"github.com/forgetrack/forgetrack/internal/identity"
	"github.com/forgetrack/forgetrack/internal/industry"
	"github.com/forgetrack/forgetrack/internal/observe"
	"github.com/forgetrack/forgetrack/internal/server"
	"github.com/forgetrack/forgetrack/internal/sso"
)

func configureServerRoutes(auth *sso.Authenticator, identities identity.Store, service industryService) http.Handler {
	// wrap a mux such that HTTP telemetry is configured by default
	muxWithoutTelemetry := http.NewServeMux()
	mux := observe.NewMux(muxWithoutTelemetry)

	// The request body size is fairly limited to prevent accidental or
	// deliberate abuse. Every route is a GET or DELETE, so nothing
	// legitimate carries a body.
	requestLimitBytes := int64(20 << 10) // 20 KB
	standardRouteMiddleware := alice.New(maxRequestSize(requestLimitBytes))

	mux.Handle("GET /auth/login", standardRouteMiddleware.Then(handleLogin(auth)))
	mux.Handle("GET /auth/callback", standardRouteMiddleware.Then(handleCallback(auth)))

	mux.Handle("GET /characters", standardRouteMiddleware.Then(handleListCharacters(identities)))
	mux.Handle("DELETE /characters/{characterID}", standardRouteMiddleware.Then(handleRemoveCharacter(identities)))

	mux.Handle("GET /jobs", standardRouteMiddleware.Then(handleAllJobs(service)))
	mux.Handle("GET /planets", standardRouteMiddleware.Then(handleAllPlanets(service)))
	mux.Handle("GET /capacity", standardRouteMiddleware.Then(handleAllCapacity(service)))

	mux.Handle("GET /characters/{characterID}/jobs", standardRouteMiddleware.Then(handleCharacterJobs(service)))
	mux.Handle("GET /characters/{characterID}/planets", standardRouteMiddleware.Then(handleCharacterPlanets(service)))
	mux.Handle("GET /characters/{characterID}/capacity", standardRouteMiddleware.Then(handleCharacterCapacity(service)))
	mux.Handle("GET /characters/{characterID}/summary", standardRouteMiddleware.Then(handleCharacterSummary(service)))
	mux.Handle("GET /characters/{characterID}/blueprints", standardRouteMiddleware.Then(handleCharacterBlueprints(service)))
	mux.Handle("GET /characters/{characterID}/assets", standardRouteMiddleware.Then(handleCharacterAssets(service)))

	mux.Handle("GET /markets/{regionID}/orders", standardRouteMiddleware.Then(handleMarketOrders(service)))
	mux.Handle("GET /markets/{regionID}/prices", standardRouteMiddleware.Then(handleRegionPrices(service)))
	mux.Handle("GET /markets/types/{typeID}/prices", standardRouteMiddleware.Then(handleTypePrices(service)))
	mux.Handle("GET /markets/types/{typeID}/value", standardRouteMiddleware.Then(handleMarketValue(service)))
	mux.Handle("GET /regions/{regionID}", standardRouteMiddleware.Then(handleRegionInfo(service)))

	// healthchecks are not included in telemetry
	muxWithoutTelemetry.Handle("GET /healthcheck", standardRouteMiddleware.Then(handleHealthCheck()))

	return mux
}

func main() {
	configureLogging()

	logBuildInfo()

	err := launchServer()
	if err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func launchServer() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	hooks := &server.Hooks{}

	// one SQLite handle backs both the identity store and the durable
	// cache tier
	db, err := sql.Open("sqlite3", cfg.Cache.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database %q: %w", cfg.Cache.DatabasePath, err)
	}
	hooks.AddCloser("database", db)

	identities, err := identity.NewSQLiteStore(ctx, db)
	if err != nil {
		return fmt.Errorf("identity store setup failed: %w", err)
	}

	durable, err := cache.NewSQLite(ctx, db)
	if err != nil {
		return fmt.Errorf("cache setup failed: %w", err)
	}
	tiered := cache.NewTiered(cache.NewInstrumented(durable), cfg.Cache.MemoryMaxEntries)

	// outbound calls share an instrumented transport with a bounded
	// timeout
	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(configureHTTPTransport(cfg.Server)),
		Timeout:   time.Duration(cfg.ESI.RequestTimeoutSeconds) * time.Second,
	}

	auth := sso.New(cfg.SSO, identities, httpClient)
	gateway := esi.New(cfg.ESI, tiered, httpClient)

	profile, err := industry.LoadCapacityProfile(cfg.Capacity.ProfilePath)
	if err != nil {
		return fmt.Errorf("capacity profile load failed: %w", err)
	}

	service := industry.NewService(identities, auth, gateway, profile)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	server.Periodic(sweepCtx, "cache sweep",
		time.Duration(cfg.Cache.SweepIntervalSeconds)*time.Second,
		tiered.SweepExpired)
	server.Periodic(sweepCtx, "login state prune", sso.StateTTL, auth.PruneLoginStates)
	hooks.Add("background sweepers", func(context.Context) error {
		stopSweep()
		return nil
	})

	handler := configureServerRoutes(auth, identities, service)

	err = server.Serve(ctx, cfg.Server, handler, hooks)
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func configureLogging() {
	// Set global level to the minimum: allows per-logger levels to be
	// configured independently of the global floor.
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Info()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

func configureHTTPTransport(cfg config.ServerConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}
