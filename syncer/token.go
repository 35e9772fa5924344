// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned by a TokenProvider whose bearer token has
// passed its exp claim, saving a round-trip that the server would reject.
var ErrTokenExpired = errors.New("bearer token expired")

// TokenProvider supplies the bearer token attached to every sync request.
type TokenProvider func(ctx context.Context) (string, error)

// StaticToken returns a provider for a fixed token. When the token parses
// as a JWT, its exp claim is checked on every call; opaque tokens are
// handed through untouched.
func StaticToken(token string) TokenProvider {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	return func(ctx context.Context) (string, error) {
		claims := jwt.MapClaims{}
		if _, _, err := parser.ParseUnverified(token, claims); err == nil {
			exp, err := claims.GetExpirationTime()
			if err == nil && exp != nil && time.Now().After(exp.Time) {
				return "", ErrTokenExpired
			}
		}
		return token, nil
	}
}
