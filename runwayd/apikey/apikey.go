// Package apikey creates session tokens and their stored representation.
package apikey

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/runwayhq/runway/cryptorand"
	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbtime"
)

type CreateParams struct {
	UserID uuid.UUID
	// Lifetime defaults to 7 days when zero.
	Lifetime time.Duration
}

// Generate creates the database representation of an API key along with the
// token a client authenticates with. The token is "<id>-<secret>"; only the
// hash of the secret is stored.
func Generate(params CreateParams) (database.InsertAPIKeyParams, string, error) {
	id, err := cryptorand.String(10)
	if err != nil {
		return database.InsertAPIKeyParams{}, "", xerrors.Errorf("generate api key id: %w", err)
	}
	secret, err := cryptorand.String(22)
	if err != nil {
		return database.InsertAPIKeyParams{}, "", xerrors.Errorf("generate api key secret: %w", err)
	}
	hashed := sha256.Sum256([]byte(secret))

	lifetime := params.Lifetime
	if lifetime == 0 {
		lifetime = 7 * 24 * time.Hour
	}

	token := fmt.Sprintf("%s-%s", id, secret)
	now := dbtime.Now()
	return database.InsertAPIKeyParams{
		ID:           id,
		HashedSecret: hashed[:],
		UserID:       params.UserID,
		LastUsed:     now,
		ExpiresAt:    now.Add(lifetime),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, token, nil
}
