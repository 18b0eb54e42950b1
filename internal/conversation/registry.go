// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"sync"
	"time"
)

// =============================================================================
// REGISTRY
// =============================================================================

// Factory builds the container for a conversation id.
type Factory func(chatID string) (*Container, error)

// Registry holds one container per conversation id for hosts serving many
// conversations. Containers never share state.
type Registry struct {
	mu         sync.Mutex
	containers map[string]*Container
	factory    Factory
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		containers: make(map[string]*Container),
		factory:    factory,
	}
}

// Create makes a container with a fresh conversation id.
func (r *Registry) Create() (*Container, error) {
	c, err := r.factory("")
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers[c.ID()] = c
	return c, nil
}

// Acquire returns the container for id, creating it if needed.
func (r *Registry) Acquire(id string) (*Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.containers[id]; ok {
		return c, nil
	}
	c, err := r.factory(id)
	if err != nil {
		return nil, err
	}
	r.containers[id] = c
	return c, nil
}

// Get returns the container for id, if one is registered.
func (r *Registry) Get(id string) (*Container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[id]
	return c, ok
}

// Remove closes and forgets the container for id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	c, ok := r.containers[id]
	delete(r.containers, id)
	r.mu.Unlock()

	if ok {
		c.Close()
	}
}

// Len returns the number of registered containers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.containers)
}

// Prune closes containers idle for at least maxIdle with no turn running,
// and returns how many were removed.
func (r *Registry) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	var stale []*Container
	for id, c := range r.containers {
		if !c.InFlight() && !c.IdleSince().After(cutoff) {
			stale = append(stale, c)
			delete(r.containers, id)
		}
	}
	r.mu.Unlock()

	for _, c := range stale {
		c.Close()
	}
	return len(stale)
}
