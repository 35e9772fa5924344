// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func mintToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "nurse-1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestStaticTokenPassesValidJWT(t *testing.T) {
	raw := mintToken(t, time.Now().Add(time.Hour))
	provider := StaticToken(raw)

	got, err := provider(context.Background())
	require.NoError(t, err)
	require.Equal(t, raw, got)
}

func TestStaticTokenRejectsExpiredJWT(t *testing.T) {
	raw := mintToken(t, time.Now().Add(-time.Minute))
	provider := StaticToken(raw)

	_, err := provider(context.Background())
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestStaticTokenPassesOpaqueToken(t *testing.T) {
	provider := StaticToken("not-a-jwt")

	got, err := provider(context.Background())
	require.NoError(t, err)
	require.Equal(t, "not-a-jwt", got)
}
