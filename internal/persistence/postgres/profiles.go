package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"example.com/healthsync/internal/domain"
)

// GetSourceProfile loads a user's source connection profile. Returns nil when
// the user has never connected a source.
func (g *Gateway) GetSourceProfile(ctx context.Context, userID string) (*domain.SourceProfile, error) {
	const query = `SELECT timezone, structured_enabled, structured_granted, structured_token,
            legacy_allowed, legacy_token, updated_at
        FROM source_profiles WHERE user_id=$1`

	profile := domain.SourceProfile{UserID: userID}
	row := g.pool.QueryRow(ctx, query, userID)
	err := row.Scan(
		&profile.Timezone,
		&profile.StructuredEnabled,
		&profile.StructuredGranted,
		&profile.StructuredToken,
		&profile.LegacyAllowed,
		&profile.LegacyToken,
		&profile.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpsertSourceProfile stores a user's connection state. Called by the account
// surface when a user links or unlinks a tracker.
func (g *Gateway) UpsertSourceProfile(ctx context.Context, profile domain.SourceProfile) error {
	return g.withRetry(ctx, "upsert source profile", func(ctx context.Context) error {
		_, err := g.pool.Exec(ctx,
			`INSERT INTO source_profiles (user_id, timezone, structured_enabled, structured_granted, structured_token, legacy_allowed, legacy_token, updated_at)
             VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
             ON CONFLICT (user_id) DO UPDATE SET
                timezone = EXCLUDED.timezone,
                structured_enabled = EXCLUDED.structured_enabled,
                structured_granted = EXCLUDED.structured_granted,
                structured_token = EXCLUDED.structured_token,
                legacy_allowed = EXCLUDED.legacy_allowed,
                legacy_token = EXCLUDED.legacy_token,
                updated_at = NOW()`,
			profile.UserID,
			profile.Timezone,
			profile.StructuredEnabled,
			profile.StructuredGranted,
			profile.StructuredToken,
			profile.LegacyAllowed,
			profile.LegacyToken,
		)
		return err
	})
}
