// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package action provides the action registry and the dispatcher that routes
// named calls to schema-contracted handlers, locally or over a transport.
package action

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/deckhand/deckhand/internal/contract"
)

// Sources an entry can come from.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9]*\.[a-z][a-zA-Z0-9]*$`)

// Entry describes a registered action.
type Entry struct {
	Action contract.Action

	// Auth requires a resolved identity before the handler runs.
	Auth bool

	// Internal hides the action from external callers.
	Internal bool

	// Dependencies lists the actions this one calls. Seal verifies that each
	// is registered.
	Dependencies []string

	// Source is SourceLocal or SourceRemote. Register fills it in when empty.
	Source string
}

// Name returns the action name.
func (e Entry) Name() string {
	return e.Action.Name()
}

// Service returns the service prefix of the action name.
func (e Entry) Service() string {
	return ServiceOf(e.Name())
}

// ServiceOf returns the part of an action name before the first dot.
func ServiceOf(name string) string {
	service, _, _ := strings.Cut(name, ".")
	return service
}

// Registry maps action names to entries. It accepts registrations until
// Seal is called and is read-only afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	sealed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds an entry. Malformed and duplicate names are rejected.
func (r *Registry) Register(entry Entry) error {
	if entry.Action == nil {
		return errInvalidName("")
	}
	name := entry.Name()
	if !namePattern.MatchString(name) {
		return errInvalidName(name)
	}
	if entry.Source == "" {
		entry.Source = SourceLocal
	}
	entry.Dependencies = append([]string(nil), entry.Dependencies...)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return errSealed(name)
	}
	if _, ok := r.entries[name]; ok {
		return errDuplicate(name)
	}
	r.entries[name] = entry
	return nil
}

// RegisterRemote registers proxies for actions served over transport.
func (r *Registry) RegisterRemote(transport Transport, names ...string) error {
	if transport == nil {
		return ErrNilTransport
	}
	for _, name := range names {
		if err := r.Register(Entry{
			Action: &remoteAction{name: name, transport: transport},
			Source: SourceRemote,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	return entry, ok
}

// All returns every entry sorted by name.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries
}

// Seal checks that every declared dependency is registered and freezes the
// registry. Sealing twice is a no-op.
func (r *Registry) Seal() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return nil
	}
	for name, entry := range r.entries {
		for _, dep := range entry.Dependencies {
			if _, ok := r.entries[dep]; !ok {
				return errMissingDependency(name, dep)
			}
		}
	}
	r.sealed = true
	return nil
}

// Sealed reports whether Seal has succeeded.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}
