package sso

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgetrack/forgetrack/internal/config"
)

func TestStateStorePruneDropsExpired(t *testing.T) {
	store := NewStateStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	abandoned, err := store.Issue()
	require.NoError(t, err)

	current = current.Add(StateTTL + time.Second)
	fresh, err := store.Issue()
	require.NoError(t, err)

	store.Prune()

	assert.False(t, store.Consume(abandoned))
	assert.True(t, store.Consume(fresh))
}

func TestStateStorePruneKeepsLiveStates(t *testing.T) {
	store := NewStateStore()

	state, err := store.Issue()
	require.NoError(t, err)

	store.Prune()

	assert.True(t, store.Consume(state))
}

func TestPruneLoginStates(t *testing.T) {
	auth := New(config.SSOConfig{}, nil, nil)
	current := time.Now()
	auth.states.now = func() time.Time { return current }

	state, err := auth.states.Issue()
	require.NoError(t, err)

	current = current.Add(StateTTL + time.Second)
	auth.PruneLoginStates(context.Background())

	auth.states.mu.Lock()
	_, held := auth.states.issued[state]
	auth.states.mu.Unlock()
	assert.False(t, held, "abandoned state no longer held")
}
