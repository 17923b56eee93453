package main

import (
	"context"
	"fmt"

	"github.com/lemmego/rda"
	"github.com/lemmego/rda/rdabun"
	"github.com/rs/zerolog"
)

// runBun exercises the Bun adapter. Without an endpoint it runs on an
// in-memory SQLite database.
func runBun(ctx context.Context, logger zerolog.Logger, endpoint string, policy rda.RetryPolicy) error {
	opts := rdabun.Options{Driver: "sqlite", MaxOpenConns: 1}
	if endpoint == "" {
		endpoint = ":memory:"
	} else {
		opts = rdabun.Options{}
	}

	store, err := rdabun.NewFactory(opts).Create(rda.ConnectionConfig{Endpoint: endpoint})
	if err != nil {
		return fmt.Errorf("creating bun store: %w", err)
	}

	if _, err := store.(*rdabun.Store).DB().ExecContext(ctx, runnerDDL); err != nil {
		return fmt.Errorf("creating articles table: %w", err)
	}

	return exercise(ctx, logger.With().Str("adapter", "bun").Logger(), store, policy)
}
