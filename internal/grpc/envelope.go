// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package grpc

import (
	"encoding/json"

	"github.com/samber/oops"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/contract"
	"github.com/deckhand/deckhand/internal/identity"
)

// request is the Call request body. It travels as a google.protobuf.Struct.
type request struct {
	Action   string             `json:"action"`
	Params   json.RawMessage    `json:"params,omitempty"`
	Identity *identity.Identity `json:"identity,omitempty"`
	Meta     contract.Meta      `json:"meta"`
	Internal bool               `json:"internal,omitempty"`
}

// reply is the Call response body. Exactly one of Result and Error is set.
type reply struct {
	Result     json.RawMessage    `json:"result,omitempty"`
	Meta       contract.Meta      `json:"meta"`
	Error      *apierr.APIError   `json:"error,omitempty"`
	Violations []apierr.Violation `json:"violations,omitempty"`
}

func requestOf(inv *contract.Invocation) request {
	return request{
		Action:   inv.Action,
		Params:   inv.Params,
		Identity: inv.Identity,
		Meta:     inv.Meta,
		Internal: inv.Internal,
	}
}

func (r request) invocation() *contract.Invocation {
	return &contract.Invocation{
		Action:   r.Action,
		Params:   r.Params,
		Identity: r.Identity,
		Meta:     r.Meta,
		Internal: r.Internal,
	}
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, oops.Code("ENVELOPE_ENCODE_FAILED").Wrap(err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, oops.Code("ENVELOPE_ENCODE_FAILED").Wrap(err)
	}
	return out, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return oops.Code("ENVELOPE_DECODE_FAILED").Wrap(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return oops.Code("ENVELOPE_DECODE_FAILED").Wrap(err)
	}
	return nil
}
