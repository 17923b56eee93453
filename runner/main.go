// Command runner exercises the data access layer against live local
// backends. Pick one with -backend; RDA_* environment variables tune
// logging and retry behavior, with local fallbacks for everything.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lemmego/rda"
	"github.com/rs/zerolog"
)

// Article is the demo record, tagged for every backend the runner
// can target.
type Article struct {
	ID        string     `bun:"id,pk" bson:"_id" json:"id"`
	Title     string     `bun:"title" bson:"title" json:"title"`
	Status    string     `bun:"status" bson:"status" json:"status"`
	CreatedAt *time.Time `bun:"created_at,nullzero" bson:"created_at" json:"created_at"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero" bson:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `bun:"deleted_at,nullzero" bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
}

const runnerDDL = `CREATE TABLE IF NOT EXISTS articles (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	status TEXT DEFAULT 'draft',
	created_at TIMESTAMP,
	updated_at TIMESTAMP,
	deleted_at TIMESTAMP
)`

var seedTitles = []string{"Intro", "Deep Dive", "Field Notes", "Postmortem", "Release Notes"}

func main() {
	backend := flag.String("backend", "bun", "backend to exercise: bun, gorm, mongo, or cache")
	endpoint := flag.String("endpoint", "", "store endpoint, overrides RDA_ENDPOINT")
	flag.Parse()

	level := "info"
	policy := rda.DefaultRetryPolicy()
	target := *endpoint

	cfg, err := rda.LoadConfig()
	if err == nil {
		level = cfg.Log.Level
		policy = cfg.Retry.Policy()
		if target == "" {
			target = cfg.Endpoint
		}
	}

	logger := rda.NewLogger(level, true)
	if err != nil {
		logger.Warn().Err(err).Msg("environment config incomplete, using local defaults")
	}

	ctx := context.Background()

	var runErr error
	switch *backend {
	case "bun":
		runErr = runBun(ctx, logger, target, policy)
	case "gorm":
		runErr = runGorm(ctx, logger, target, policy)
	case "mongo":
		runErr = runMongo(ctx, logger, target, policy)
	case "cache":
		runErr = runCache(ctx, logger, target, policy)
	default:
		fmt.Fprintf(os.Stderr, "unknown backend %q\n", *backend)
		flag.Usage()
		os.Exit(2)
	}

	if runErr != nil {
		logger.Fatal().Err(runErr).Str("backend", *backend).Msg("runner failed")
	}
	logger.Info().Str("backend", *backend).Msg("runner finished")
}

// exercise walks the repository surface once: seed, read, list,
// update, soft delete, stats.
func exercise(ctx context.Context, logger zerolog.Logger, store rda.Store, policy rda.RetryPolicy) error {
	manager, err := rda.NewManager(ctx, rda.ConnectionConfig{ExistingStore: store}, nil,
		rda.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating manager: %w", err)
	}
	defer manager.Close()

	repo := rda.NewRepository[Article](manager, rda.RepositoryConfig{
		Collection: "articles",
		SoftDelete: true,
		Retry:      &policy,
	})

	ids := make([]string, 0, len(seedTitles))
	for i, title := range seedTitles {
		id := uuid.NewString()
		status := "draft"
		if i%2 == 0 {
			status = "published"
		}
		if _, err := repo.Create(ctx, map[string]interface{}{
			"id":     id,
			"title":  title,
			"status": status,
		}); err != nil {
			return fmt.Errorf("seeding %q: %w", title, err)
		}
		ids = append(ids, id)
	}
	logger.Info().Int("count", len(ids)).Msg("seeded articles")

	first, err := repo.GetByID(ctx, ids[0])
	if err != nil {
		return fmt.Errorf("reading article: %w", err)
	}
	logger.Info().Str("id", first.ID).Str("title", first.Title).Msg("read article")

	page := repo.List(ctx, rda.Filter{Page: 1, Limit: 3, SortBy: "title", SortOrder: rda.SortAsc})
	if !page.Success {
		return fmt.Errorf("listing articles: %s", page.Error)
	}
	logger.Info().
		Int64("total", page.Pagination.Total).
		Int("page_items", len(page.Items)).
		Int("total_pages", page.Pagination.TotalPages).
		Msg("listed articles")

	updated, err := repo.Update(ctx, ids[0], map[string]interface{}{"status": "archived"})
	if err != nil {
		return fmt.Errorf("updating article: %w", err)
	}
	logger.Info().Str("id", updated.ID).Str("status", updated.Status).Msg("updated article")

	deleted, err := repo.Delete(ctx, ids[1])
	if err != nil {
		return fmt.Errorf("deleting article: %w", err)
	}
	exists, err := repo.ExistsByID(ctx, ids[1])
	if err != nil {
		return fmt.Errorf("checking existence: %w", err)
	}
	logger.Info().Bool("deleted", deleted).Bool("still_visible", exists).Msg("soft deleted article")

	stats := manager.Stats()
	logger.Info().
		Str("status", string(stats.Status)).
		Dur("response_time", stats.ResponseTime).
		Msg("connection stats")
	return nil
}
