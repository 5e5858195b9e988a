// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/pkg/errutil"
)

// ErrorBody is the JSON body of every failed request. The HTTP status equals
// Code.
type ErrorBody struct {
	apierr.APIError
	Violations []apierr.Violation `json:"violations,omitempty"`
}

// errorBody classifies err. Only the taxonomy entry and, for validation
// failures, the violations leave the process.
func errorBody(err error) ErrorBody {
	classified := apierr.Classify(err)
	body := ErrorBody{APIError: classified.API()}
	if classified.Kind == apierr.KindValidation {
		body.Violations = classified.Violations
	}
	return body
}

func (g *gateway) writeError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	body := errorBody(err)
	if body.Type == apierr.TypeUnhandled {
		errutil.LogErrorContext(ctx, logger, "gateway request failed", err)
	} else {
		logger.DebugContext(ctx, "gateway request rejected", "type", body.Type)
	}

	raw, merr := json.Marshal(body)
	if merr != nil {
		errutil.LogErrorContext(ctx, logger, "error body could not be encoded", merr)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, body.Code, raw)
}

func writeJSON(w http.ResponseWriter, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	//nolint:errcheck // client may disconnect
	w.Write(raw)
}
