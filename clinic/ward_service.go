// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package clinic

import (
	"context"
	"log/slog"

	"github.com/Kamwaro-001/panacea/domain"
	"github.com/Kamwaro-001/panacea/localstore"
)

// WardService reads wards and staff from the local store. Wards are
// reference data: pulled by sync, never mutated on the device.
type WardService struct {
	store  *localstore.Store
	logger *slog.Logger
}

func NewWardService(store *localstore.Store, logger *slog.Logger) *WardService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WardService{store: store, logger: logger}
}

// List returns all non-deleted wards.
func (s *WardService) List(ctx context.Context) ([]domain.Ward, error) {
	return s.store.Wards(ctx)
}

// ByID returns one ward; localstore.ErrNotFound when unknown.
func (s *WardService) ByID(ctx context.Context, wardID string) (domain.Ward, error) {
	return s.store.Ward(ctx, wardID)
}

// Staff returns the active clinical staff known to this device.
func (s *WardService) Staff(ctx context.Context) ([]domain.User, error) {
	return s.store.ActiveUsers(ctx)
}
