package main

import (
	"context"
	"fmt"

	"github.com/lemmego/rda"
	"github.com/lemmego/rda/rdamongo"
	"github.com/rs/zerolog"
)

// runMongo exercises the MongoDB adapter against a live server. The
// demo collection is dropped first so repeated runs start clean.
func runMongo(ctx context.Context, logger zerolog.Logger, endpoint string, policy rda.RetryPolicy) error {
	if endpoint == "" {
		endpoint = "mongodb://localhost:27017/rda_runner"
	}

	store, err := rdamongo.NewFactory(rdamongo.Options{}).Create(rda.ConnectionConfig{Endpoint: endpoint})
	if err != nil {
		return fmt.Errorf("connecting to mongodb (is a local server running?): %w", err)
	}

	if err := store.(*rdamongo.Store).Database().Collection("articles").Drop(ctx); err != nil {
		return fmt.Errorf("dropping demo collection: %w", err)
	}

	return exercise(ctx, logger.With().Str("adapter", "mongo").Logger(), store, policy)
}
