package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/algomatic/statement-builder/pkg/statement"
)

// SettingsRepo stores persisted indicator defaults in indicator_settings. It
// implements settings.Store.
type SettingsRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSettingsRepo creates a new SettingsRepo.
func NewSettingsRepo(db DBTX, logger *slog.Logger) *SettingsRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsRepo{db: db, logger: logger}
}

// Get returns the saved params for indicator, or nil when there are none.
func (r *SettingsRepo) Get(ctx context.Context, scope, indicator string) (statement.Params, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `
		SELECT params
		FROM indicator_settings
		WHERE scope = $1 AND indicator = $2
	`, scope, indicator).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s settings for %s: %w", indicator, scope, err)
	}

	var p statement.Params
	if err := json.Unmarshal(raw, &p); err != nil {
		r.logger.Warn("Discarding unreadable indicator settings",
			"scope", scope, "indicator", indicator, "error", err,
		)
		return nil, nil
	}
	return statement.NormalizeParams(p), nil
}

// Set upserts the params for indicator. The last write wins.
func (r *SettingsRepo) Set(ctx context.Context, scope, indicator string, params statement.Params) error {
	data, err := json.Marshal(statement.NormalizeParams(params))
	if err != nil {
		return fmt.Errorf("marshalling %s settings: %w", indicator, err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO indicator_settings (scope, indicator, params, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (scope, indicator)
		DO UPDATE SET params = EXCLUDED.params, updated_at = now()
	`, scope, indicator, data)
	if err != nil {
		return fmt.Errorf("saving %s settings for %s: %w", indicator, scope, err)
	}

	r.logger.Debug("Saved indicator settings", "scope", scope, "indicator", indicator)
	return nil
}
