package identity

import (
	"context"
	"strings"
	"time"
)

// Record is one linked character account and its current token material.
// Token fields are mutated only by the SSO refresh/exchange paths; a
// failed refresh marks the record inactive rather than deleting it, so a
// user can relink without losing history.
type Record struct {
	CharacterID   int64
	CharacterName string
	AccessToken   string
	RefreshToken  string
	TokenExpiry   time.Time
	Scopes        []string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TokenValid reports whether the stored access token can still be used
// at the given instant. A small safety margin avoids presenting a token
// that expires mid-request.
func (r Record) TokenValid(now time.Time) bool {
	return r.AccessToken != "" && now.Add(30*time.Second).Before(r.TokenExpiry)
}

// ScopeString renders the scope set in the provider's space-separated form.
func (r Record) ScopeString() string {
	return strings.Join(r.Scopes, " ")
}

// Store is the durable credential store consumed by the token lifecycle.
type Store interface {
	// Load returns the record for a character, or found=false.
	Load(ctx context.Context, characterID int64) (Record, bool, error)

	// Upsert creates or fully replaces a record. Token updates are
	// atomic: readers never observe a half-written token/expiry pair.
	Upsert(ctx context.Context, rec Record) error

	// MarkInactive flags a record as unusable without deleting it.
	MarkInactive(ctx context.Context, characterID int64) error

	// ListActive returns all records currently usable for polling.
	ListActive(ctx context.Context) ([]Record, error)
}
