package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/forgetrack/forgetrack/internal/esi"
	"github.com/forgetrack/forgetrack/internal/identity"
	"github.com/forgetrack/forgetrack/internal/industry"
	"github.com/forgetrack/forgetrack/internal/sso"
)

// HTTPStatuser provides HTTP status information for errors
type HTTPStatuser interface {
	Status() (int, string)
}

// industryService is the aggregation surface the route handlers call.
type industryService interface {
	JobsForAll(ctx context.Context) ([]industry.CharacterJobs, error)
	JobsFor(ctx context.Context, characterID int64) ([]industry.EnrichedJob, error)
	PlanetsForAll(ctx context.Context) ([]industry.CharacterColonies, error)
	PlanetsFor(ctx context.Context, characterID int64) ([]industry.EnrichedPlanet, error)
	CapacityForAll(ctx context.Context) ([]industry.CharacterCapacity, error)
	CapacityFor(ctx context.Context, characterID int64) ([]industry.CapacityUsage, error)
	SummaryFor(ctx context.Context, characterID int64) (industry.Summary, error)
	BlueprintsFor(ctx context.Context, characterID int64) ([]esi.Blueprint, error)
	AssetsFor(ctx context.Context, characterID int64) ([]esi.Asset, error)

	MarketOrders(ctx context.Context, regionID, typeID int64) ([]esi.MarketOrder, error)
	RegionPrices(ctx context.Context, regionID int64) ([]esi.MarketPrice, error)
	Region(ctx context.Context, regionID int64) (esi.RegionInfo, error)
	TypePricesFor(ctx context.Context, typeID, regionID int64) (industry.TypePrices, error)
	MarketValueFor(ctx context.Context, typeID, regionID, quantity int64) (industry.MarketValue, error)
}

func handleLogin(auth *sso.Authenticator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		url, state, err := auth.AuthorizationURL()
		if err != nil {
			log.Warn().Err(err).Msg("authorization url construction failed")
			requestError(w, http.StatusInternalServerError)
			return
		}

		log.Debug().Str("state", state).Msg("authorization flow started")
		http.Redirect(w, r, url, http.StatusFound)
	})
}

// callbackResponse confirms the linked character to the client.
type callbackResponse struct {
	CharacterID   int64  `json:"character_id"`
	CharacterName string `json:"character_name"`
}

func handleCallback(auth *sso.Authenticator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		code := r.URL.Query().Get("code")
		state := r.URL.Query().Get("state")
		if code == "" || state == "" {
			writeJSONError(w, http.StatusBadRequest, "missing code or state parameter")
			return
		}

		token, err := auth.ExchangeCode(r.Context(), code, state)
		if err != nil {
			status, message := errorStatus(err)
			log.Info().Err(err).Msg("authorization code exchange failed")
			writeJSONError(w, status, message)
			return
		}

		rec, err := auth.Link(r.Context(), token)
		if err != nil {
			log.Warn().Err(err).Msg("identity linking failed")
			writeJSONError(w, http.StatusBadGateway, "identity verification failed")
			return
		}

		writeJSON(w, callbackResponse{
			CharacterID:   rec.CharacterID,
			CharacterName: rec.CharacterName,
		})
	})
}

// characterResponse is the public view of a linked identity. Token
// material never leaves the server.
type characterResponse struct {
	CharacterID   int64     `json:"character_id"`
	CharacterName string    `json:"character_name"`
	TokenExpiry   time.Time `json:"token_expiry"`
	Scopes        []string  `json:"scopes"`
}

func handleListCharacters(identities identity.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		records, err := identities.ListActive(r.Context())
		if err != nil {
			log.Warn().Err(err).Msg("listing identities failed")
			requestError(w, http.StatusInternalServerError)
			return
		}

		characters := make([]characterResponse, 0, len(records))
		for _, rec := range records {
			characters = append(characters, characterResponse{
				CharacterID:   rec.CharacterID,
				CharacterName: rec.CharacterName,
				TokenExpiry:   rec.TokenExpiry,
				Scopes:        rec.Scopes,
			})
		}

		writeJSON(w, characters)
	})
}

func handleRemoveCharacter(identities identity.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		characterID, err := pathCharacterID(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid character id")
			return
		}

		if err := identities.MarkInactive(r.Context(), characterID); err != nil {
			log.Warn().Err(err).Int64("characterID", characterID).
				Msg("deactivating identity failed")
			requestError(w, http.StatusInternalServerError)
			return
		}

		log.Info().Int64("characterID", characterID).Msg("identity deactivated by user")
		w.WriteHeader(http.StatusNoContent)
	})
}

func handleAllJobs(service industryService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		results, err := service.JobsForAll(r.Context())
		if err != nil {
			serviceError(w, err, "jobs aggregation failed")
			return
		}
		writeJSON(w, results)
	})
}

func handleCharacterJobs(service industryService) http.Handler {
	return characterHandler(func(ctx context.Context, characterID int64) (any, error) {
		return service.JobsFor(ctx, characterID)
	})
}

func handleAllPlanets(service industryService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		results, err := service.PlanetsForAll(r.Context())
		if err != nil {
			serviceError(w, err, "planets aggregation failed")
			return
		}
		writeJSON(w, results)
	})
}

func handleCharacterPlanets(service industryService) http.Handler {
	return characterHandler(func(ctx context.Context, characterID int64) (any, error) {
		return service.PlanetsFor(ctx, characterID)
	})
}

func handleAllCapacity(service industryService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		results, err := service.CapacityForAll(r.Context())
		if err != nil {
			serviceError(w, err, "capacity aggregation failed")
			return
		}
		writeJSON(w, results)
	})
}

func handleCharacterCapacity(service industryService) http.Handler {
	return characterHandler(func(ctx context.Context, characterID int64) (any, error) {
		return service.CapacityFor(ctx, characterID)
	})
}

func handleCharacterSummary(service industryService) http.Handler {
	return characterHandler(func(ctx context.Context, characterID int64) (any, error) {
		return service.SummaryFor(ctx, characterID)
	})
}

func handleCharacterBlueprints(service industryService) http.Handler {
	return characterHandler(func(ctx context.Context, characterID int64) (any, error) {
		return service.BlueprintsFor(ctx, characterID)
	})
}

func handleCharacterAssets(service industryService) http.Handler {
	return characterHandler(func(ctx context.Context, characterID int64) (any, error) {
		return service.AssetsFor(ctx, characterID)
	})
}

func handleMarketOrders(service industryService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		regionID, err := pathID(r, "regionID")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid region id")
			return
		}

		// optional filter to a single type
		typeID, err := queryID(r, "type_id")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid type id")
			return
		}

		orders, err := service.MarketOrders(r.Context(), regionID, typeID)
		if err != nil {
			serviceError(w, err, "market orders fetch failed")
			return
		}
		writeJSON(w, orders)
	})
}

func handleRegionPrices(service industryService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		regionID, err := pathID(r, "regionID")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid region id")
			return
		}

		prices, err := service.RegionPrices(r.Context(), regionID)
		if err != nil {
			serviceError(w, err, "region prices fetch failed")
			return
		}
		writeJSON(w, prices)
	})
}

func handleRegionInfo(service industryService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		regionID, err := pathID(r, "regionID")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid region id")
			return
		}

		info, err := service.Region(r.Context(), regionID)
		if err != nil {
			serviceError(w, err, "region lookup failed")
			return
		}
		writeJSON(w, info)
	})
}

func handleTypePrices(service industryService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		typeID, err := pathID(r, "typeID")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid type id")
			return
		}

		// zero falls back to the default reference market
		regionID, err := queryID(r, "region_id")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid region id")
			return
		}

		prices, err := service.TypePricesFor(r.Context(), typeID, regionID)
		if err != nil {
			serviceError(w, err, "type prices fetch failed")
			return
		}
		writeJSON(w, prices)
	})
}

func handleMarketValue(service industryService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		typeID, err := pathID(r, "typeID")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid type id")
			return
		}

		regionID, err := queryID(r, "region_id")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid region id")
			return
		}

		quantity, err := queryID(r, "quantity")
		if err != nil || quantity <= 0 {
			writeJSONError(w, http.StatusBadRequest, "quantity must be a positive integer")
			return
		}

		value, err := service.MarketValueFor(r.Context(), typeID, regionID, quantity)
		if err != nil {
			serviceError(w, err, "market value calculation failed")
			return
		}
		writeJSON(w, value)
	})
}

// characterHandler wraps the shared plumbing of per-character routes:
// path parsing, error mapping and JSON response writing.
func characterHandler(fetch func(ctx context.Context, characterID int64) (any, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		characterID, err := pathCharacterID(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid character id")
			return
		}

		result, err := fetch(r.Context(), characterID)
		if err != nil {
			serviceError(w, err, "character data fetch failed")
			return
		}
		writeJSON(w, result)
	})
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func pathCharacterID(r *http.Request) (int64, error) {
	return pathID(r, "characterID")
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// queryID parses an optional numeric query parameter; absence is zero.
func queryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Info().Msgf("failed to write JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response with the given status code and message.
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{Error: message}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// At this point the status code has been written, so we can only log
		log.Info().Msgf("failed to write JSON error response: %v", err)
	}
}

func serviceError(w http.ResponseWriter, err error, logMessage string) {
	status, message := errorStatus(err)
	log.Info().Err(err).Msg(logMessage)
	writeJSONError(w, status, message)
}

// errorStatus extracts HTTP status code and message from an error.
// Returns (StatusInternalServerError, StatusText) for errors that don't implement HTTPStatuser.
func errorStatus(err error) (int, string) {
	var statuser HTTPStatuser
	if errors.As(err, &statuser) {
		return statuser.Status()
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

func requestError(w http.ResponseWriter, statusCode int) {
	http.Error(w, http.StatusText(statusCode), statusCode)
}

// drainRequestBody drains the request body by reading and discarding the contents.
// This is useful to ensure the request body is fully consumed, which is important
// for connection reuse in HTTP/1 clients.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		// 5kb max: after this we'll assume the client is broken or malicious
		// and close the connection
		io.CopyN(io.Discard, r.Body, 5*1024*1024)
	}
}
