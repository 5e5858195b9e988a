// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Command gen-schema writes the JSON Schema contract of every registered
// action into schemas/.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/action"
	authmemory "github.com/deckhand/deckhand/internal/auth/memory"
	"github.com/deckhand/deckhand/internal/broker"
	"github.com/deckhand/deckhand/internal/users/memory"
)

// document is the file written for one action.
type document struct {
	Name     string          `json:"name"`
	Auth     bool            `json:"auth"`
	Internal bool            `json:"internal"`
	Input    json.RawMessage `json:"input,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`
}

func main() {
	written, err := generate("schemas")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schemas: %v\n", err)
		os.Exit(1)
	}
	for _, path := range written {
		fmt.Printf("Generated %s\n", path)
	}
}

// generate writes <action>.schema.json into dir for every action of a full
// broker and returns the paths written.
func generate(dir string) ([]string, error) {
	b, err := broker.New(broker.Config{
		Users:    memory.New(),
		Sessions: authmemory.NewStore(),
	})
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, oops.Code("SCHEMA_WRITE_FAILED").With("dir", dir).Wrap(err)
	}

	var written []string
	for _, entry := range b.Registry.All() {
		raw, err := json.MarshalIndent(documentOf(entry), "", "  ")
		if err != nil {
			return nil, oops.Code("SCHEMA_ENCODE_FAILED").With("action", entry.Name()).Wrap(err)
		}
		path := filepath.Join(dir, entry.Name()+".schema.json")
		if err := os.WriteFile(path, append(raw, '\n'), 0o600); err != nil {
			return nil, oops.Code("SCHEMA_WRITE_FAILED").With("file", path).Wrap(err)
		}
		written = append(written, path)
	}
	return written, nil
}

func documentOf(entry action.Entry) document {
	doc := document{Name: entry.Name(), Auth: entry.Auth, Internal: entry.Internal}
	if s := entry.Action.Input(); s != nil {
		doc.Input = s.JSON()
	}
	if s := entry.Action.Output(); s != nil {
		doc.Output = s.JSON()
	}
	return doc
}
