// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/deckhand/deckhand/internal/auth"
	"github.com/deckhand/deckhand/internal/identity"
)

// T is the subset of testing.T the constructors need.
type T interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserDirectory mocks auth.UserDirectory.
type MockUserDirectory struct {
	mock.Mock
}

// NewMockUserDirectory creates a mock whose expectations are asserted on cleanup.
func NewMockUserDirectory(t T) *MockUserDirectory {
	m := &MockUserDirectory{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUserDirectory) FindByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	args := m.Called(ctx, email)
	rec, _ := args.Get(0).(*auth.UserRecord)
	return rec, args.Error(1)
}

func (m *MockUserDirectory) Create(ctx context.Context, email, passwordHash string) (identity.Identity, error) {
	args := m.Called(ctx, email, passwordHash)
	return args.Get(0).(identity.Identity), args.Error(1)
}

// MockSessionStore mocks auth.SessionStore.
type MockSessionStore struct {
	mock.Mock
}

// NewMockSessionStore creates a mock whose expectations are asserted on cleanup.
func NewMockSessionStore(t T) *MockSessionStore {
	m := &MockSessionStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSessionStore) Put(ctx context.Context, session *auth.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *MockSessionStore) Get(ctx context.Context, id string) (*auth.Session, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*auth.Session)
	return s, args.Error(1)
}

func (m *MockSessionStore) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockPasswordHasher mocks auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock whose expectations are asserted on cleanup.
func NewMockPasswordHasher(t T) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

var (
	_ auth.UserDirectory  = (*MockUserDirectory)(nil)
	_ auth.SessionStore   = (*MockSessionStore)(nil)
	_ auth.PasswordHasher = (*MockPasswordHasher)(nil)
)
