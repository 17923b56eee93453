package main

import (
	"context"
	"fmt"

	"github.com/lemmego/rda"
	"github.com/lemmego/rda/rdagorm"
	"github.com/rs/zerolog"
)

// runGorm exercises the GORM adapter. Without an endpoint it runs on
// an in-memory SQLite database.
func runGorm(ctx context.Context, logger zerolog.Logger, endpoint string, policy rda.RetryPolicy) error {
	opts := rdagorm.Options{Driver: "sqlite", LogLevel: "warn", MaxOpenConns: 1}
	if endpoint == "" {
		endpoint = ":memory:"
	} else {
		opts = rdagorm.Options{LogLevel: "warn"}
	}

	store, err := rdagorm.NewFactory(opts).Create(rda.ConnectionConfig{Endpoint: endpoint})
	if err != nil {
		return fmt.Errorf("creating gorm store: %w", err)
	}

	if err := store.(*rdagorm.Store).DB().WithContext(ctx).Exec(runnerDDL).Error; err != nil {
		return fmt.Errorf("creating articles table: %w", err)
	}

	return exercise(ctx, logger.With().Str("adapter", "gorm").Logger(), store, policy)
}
