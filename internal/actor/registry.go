package actor

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/trailbot/internal/state"
)

// Registry hands out exactly one actor per (token, vsToken) pair. Actors are
// created lazily and hydrate on their first request; different pairs share
// nothing but the storage backend, which each actor sees through its own key
// namespace.
type Registry struct {
	mu     sync.Mutex
	actors map[string]*Actor
	deps   Deps
}

// NewRegistry creates a registry whose actors share the given collaborators.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Registry{
		actors: make(map[string]*Actor),
		deps:   deps,
	}
}

// PairKey is the canonical identity of a pair actor and its storage
// namespace.
func PairKey(tokenAddress, vsTokenAddress string) string {
	return fmt.Sprintf("pair:%s:%s:", tokenAddress, vsTokenAddress)
}

// Get returns the actor for the pair, creating it cold if needed.
func (r *Registry) Get(tokenAddress, vsTokenAddress string) *Actor {
	key := PairKey(tokenAddress, vsTokenAddress)

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.actors[key]; ok {
		return a
	}

	deps := r.deps
	deps.Store = state.Prefixed(r.deps.Store, key)
	deps.Logger = r.deps.Logger.With(
		slog.String("token", tokenAddress),
		slog.String("vsToken", vsTokenAddress))
	a := New(deps)
	r.actors[key] = a
	return a
}

// Len returns the number of live actors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}
