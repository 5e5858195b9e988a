// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package action

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/contract"
)

// Hook post-processes a successful response. Hooks run in registration order
// and see the response after contract validation.
type Hook func(ctx context.Context, inv *contract.Invocation, res json.RawMessage) (json.RawMessage, error)

// StripFields removes the named top-level fields from an object response, or
// from every object of an array response. Internal callers that set
// Meta.IncludePassword receive the response untouched.
func StripFields(fields ...string) Hook {
	return func(_ context.Context, inv *contract.Invocation, res json.RawMessage) (json.RawMessage, error) {
		if inv.Internal && inv.Meta.IncludePassword {
			return res, nil
		}

		dec := json.NewDecoder(bytes.NewReader(res))
		dec.UseNumber()
		var doc any
		if err := dec.Decode(&doc); err != nil {
			return nil, oops.Code(CodeHookFailed).With("action", inv.Action).Wrap(err)
		}

		if !strip(doc, fields) {
			return res, nil
		}

		out, err := json.Marshal(doc)
		if err != nil {
			return nil, oops.Code(CodeHookFailed).With("action", inv.Action).Wrap(err)
		}
		return out, nil
	}
}

func strip(doc any, fields []string) bool {
	changed := false
	switch v := doc.(type) {
	case map[string]any:
		for _, f := range fields {
			if _, ok := v[f]; ok {
				delete(v, f)
				changed = true
			}
		}
	case []any:
		for _, item := range v {
			if strip(item, fields) {
				changed = true
			}
		}
	}
	return changed
}
