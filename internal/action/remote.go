// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package action

import (
	"context"
	"encoding/json"

	"github.com/deckhand/deckhand/internal/contract"
)

// Transport forwards an invocation to the process that serves the action.
// Implementations copy response metadata back into inv.Meta and return
// failures already classified; anything else is treated as unhandled.
type Transport interface {
	Invoke(ctx context.Context, inv *contract.Invocation) (json.RawMessage, error)
}

// remoteAction proxies an action served elsewhere. Contracts are enforced by
// the serving process, so it carries no local schemas.
type remoteAction struct {
	name      string
	transport Transport
}

func (a *remoteAction) Name() string             { return a.name }
func (a *remoteAction) Input() *contract.Schema  { return nil }
func (a *remoteAction) Output() *contract.Schema { return nil }

func (a *remoteAction) Invoke(ctx context.Context, inv *contract.Invocation) (json.RawMessage, error) {
	inv.Action = a.name
	return a.transport.Invoke(ctx, inv)
}
