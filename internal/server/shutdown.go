package server

import (
	"context"

	"github.com/rs/zerolog/log"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Hooks is the ordered set of teardown actions run after the HTTP
// server has drained. Hooks run in reverse registration order, so
// resources close opposite to their creation. Execution continues when
// a hook fails.
type Hooks struct {
	hooks []hook
}

// Add registers a teardown action. Nil actions are ignored with a
// warning.
func (h *Hooks) Add(name string, fn func(context.Context) error) {
	if fn == nil {
		log.Warn().Str("hook", name).Msg("ignoring nil shutdown hook")
		return
	}

	log.Debug().Str("hook", name).Msg("registered shutdown hook")
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// AddCloser registers the Close of a resource such as a database
// handle.
func (h *Hooks) AddCloser(name string, closer interface{ Close() error }) {
	if closer == nil {
		log.Warn().Str("hook", name).Msg("ignoring nil shutdown hook")
		return
	}

	h.Add(name, func(context.Context) error {
		return closer.Close()
	})
}

// Execute runs the registered hooks, last registered first. The context
// may carry the remaining shutdown deadline.
func (h *Hooks) Execute(ctx context.Context) {
	for i := len(h.hooks) - 1; i >= 0; i-- {
		current := h.hooks[i]
		hookLog := log.With().Str("hook", current.name).Logger()

		hookLog.Info().Msg("shutdown started")
		if err := current.fn(ctx); err != nil {
			hookLog.Warn().Err(err).Msg("shutdown failed")
			continue
		}
		hookLog.Info().Msg("shutdown complete")
	}
}
