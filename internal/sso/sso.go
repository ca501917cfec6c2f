package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/forgetrack/forgetrack/internal/config"
	"github.com/forgetrack/forgetrack/internal/identity"
)

// defaultTokenLifetime is assumed when the provider omits expires_in.
const defaultTokenLifetime = 20 * time.Minute

// CharacterInfo is the verified owner of an access token.
type CharacterInfo struct {
	CharacterID   int64  `json:"CharacterID"`
	CharacterName string `json:"CharacterName"`
	Scopes        string `json:"Scopes"`
}

// Authenticator owns the OAuth token lifecycle: authorization URL
// construction, code exchange, verification, refresh and deactivation.
type Authenticator struct {
	oauth      oauth2.Config
	verifyURL  string
	httpClient *http.Client
	identities identity.Store
	states     *StateStore

	// validated tracks identities refreshed or exchanged during this
	// process lifetime. A stored expiry alone is not trusted across
	// restarts; absence here forces a refresh before first use.
	mu        sync.Mutex
	validated map[int64]struct{}

	now func() time.Time
}

func New(cfg config.SSOConfig, identities identity.Store, httpClient *http.Client) *Authenticator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Authenticator{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       strings.Fields(cfg.Scopes),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		verifyURL:  cfg.VerifyURL,
		httpClient: httpClient,
		identities: identities,
		states:     NewStateStore(),
		validated:  make(map[int64]struct{}),
		now:        time.Now,
	}
}

// AuthorizationURL returns the provider authorization URL and the state
// value bound to it. The state is single-use and expires with the user's
// round trip.
func (a *Authenticator) AuthorizationURL() (string, string, error) {
	state, err := a.states.Issue()
	if err != nil {
		return "", "", fmt.Errorf("generating authorization state: %w", err)
	}
	return a.oauth.AuthCodeURL(state), state, nil
}

// ExchangeCode validates the callback state and exchanges the
// authorization code for a token. The state is consumed regardless of
// the exchange outcome.
func (a *Authenticator) ExchangeCode(ctx context.Context, code, state string) (*oauth2.Token, error) {
	if !a.states.Consume(state) {
		return nil, ErrInvalidState
	}

	token, err := a.oauth.Exchange(a.clientContext(ctx), code)
	if err != nil {
		return nil, ExchangeFailedError{Cause: err}
	}
	if token.AccessToken == "" {
		return nil, ExchangeFailedError{Cause: fmt.Errorf("provider returned empty access token")}
	}

	return token, nil
}

// Verify resolves the character that owns an access token.
func (a *Authenticator) Verify(ctx context.Context, accessToken string) (CharacterInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.verifyURL, nil)
	if err != nil {
		return CharacterInfo{}, fmt.Errorf("building verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return CharacterInfo{}, fmt.Errorf("token verification request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CharacterInfo{}, fmt.Errorf("token verification failed: status %d", resp.StatusCode)
	}

	var info CharacterInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return CharacterInfo{}, fmt.Errorf("decoding verify response: %w", err)
	}
	if info.CharacterID == 0 {
		return CharacterInfo{}, fmt.Errorf("verify response missing character id")
	}

	return info, nil
}

// Link stores a freshly exchanged token as an active identity record.
func (a *Authenticator) Link(ctx context.Context, token *oauth2.Token) (identity.Record, error) {
	info, err := a.Verify(ctx, token.AccessToken)
	if err != nil {
		return identity.Record{}, fmt.Errorf("verifying exchanged token: %w", err)
	}

	rec := identity.Record{
		CharacterID:   info.CharacterID,
		CharacterName: info.CharacterName,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		TokenExpiry:   tokenExpiry(token, a.now()),
		Scopes:        scopesFromToken(token),
		Active:        true,
	}

	if err := a.identities.Upsert(ctx, rec); err != nil {
		return identity.Record{}, fmt.Errorf("storing linked identity: %w", err)
	}

	a.markValidated(rec.CharacterID)

	log.Info().
		Int64("characterID", rec.CharacterID).
		Str("characterName", rec.CharacterName).
		Time("tokenExpiry", rec.TokenExpiry).
		Msg("identity linked")

	return rec, nil
}

// Refresh exchanges the stored refresh token for a new access/refresh
// pair. The record update is all-or-nothing: on any failure the stored
// values are untouched, the identity is deactivated and AuthExpiredError
// is returned. A refresh failure almost always means the grant was
// revoked, so no retry is attempted.
func (a *Authenticator) Refresh(ctx context.Context, rec identity.Record) (identity.Record, error) {
	source := a.oauth.TokenSource(a.clientContext(ctx), &oauth2.Token{
		RefreshToken: rec.RefreshToken,
	})

	token, err := source.Token()
	if err != nil {
		a.deactivate(ctx, rec.CharacterID)
		return identity.Record{}, AuthExpiredError{CharacterID: rec.CharacterID, Cause: err}
	}

	rec.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		// provider rotated the refresh token; otherwise keep the old one
		rec.RefreshToken = token.RefreshToken
	}
	rec.TokenExpiry = tokenExpiry(token, a.now())
	rec.Active = true

	if err := a.identities.Upsert(ctx, rec); err != nil {
		return identity.Record{}, fmt.Errorf("storing refreshed token: %w", err)
	}

	a.markValidated(rec.CharacterID)

	log.Debug().
		Int64("characterID", rec.CharacterID).
		Time("tokenExpiry", rec.TokenExpiry).
		Msg("token refreshed")

	return rec, nil
}

// EnsureFresh returns a record whose access token is safe to present
// downstream, refreshing first unless the token is unexpired and was
// validated during this process lifetime.
func (a *Authenticator) EnsureFresh(ctx context.Context, rec identity.Record) (identity.Record, error) {
	if rec.TokenValid(a.now()) && a.isValidated(rec.CharacterID) {
		return rec, nil
	}
	return a.Refresh(ctx, rec)
}

// PruneLoginStates drops state values left behind by abandoned login
// attempts. Suited to a periodic background task.
func (a *Authenticator) PruneLoginStates(context.Context) {
	a.states.Prune()
}

func (a *Authenticator) deactivate(ctx context.Context, characterID int64) {
	if err := a.identities.MarkInactive(ctx, characterID); err != nil {
		log.Warn().Err(err).
			Int64("characterID", characterID).
			Msg("failed to deactivate identity after refresh failure")
		return
	}

	a.mu.Lock()
	delete(a.validated, characterID)
	a.mu.Unlock()

	log.Info().
		Int64("characterID", characterID).
		Msg("identity deactivated: refresh failed, re-authentication required")
}

func (a *Authenticator) markValidated(characterID int64) {
	a.mu.Lock()
	a.validated[characterID] = struct{}{}
	a.mu.Unlock()
}

func (a *Authenticator) isValidated(characterID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.validated[characterID]
	return ok
}

// clientContext routes oauth2's internal HTTP calls through the
// configured client, keeping outbound timeouts bounded.
func (a *Authenticator) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

func tokenExpiry(token *oauth2.Token, now time.Time) time.Time {
	if token.Expiry.IsZero() {
		return now.Add(defaultTokenLifetime).UTC()
	}
	return token.Expiry.UTC()
}

func scopesFromToken(token *oauth2.Token) []string {
	scope, _ := token.Extra("scope").(string)
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}
