package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/amq-trainer/internal/platform/config"
	"github.com/example/amq-trainer/internal/platform/db"
	"github.com/example/amq-trainer/internal/platform/events"
	"github.com/example/amq-trainer/internal/platform/logging"
	"github.com/example/amq-trainer/internal/platform/natsconn"
	"github.com/example/amq-trainer/internal/platform/run"
	"github.com/example/amq-trainer/services/trainer/internal/anilist"
	"github.com/example/amq-trainer/services/trainer/internal/cli"
	trcfg "github.com/example/amq-trainer/services/trainer/internal/config"
	"github.com/example/amq-trainer/services/trainer/internal/jobs"
	"github.com/example/amq-trainer/services/trainer/internal/ratelimit"
	"github.com/example/amq-trainer/services/trainer/internal/snapshot"
	"github.com/example/amq-trainer/services/trainer/internal/store"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("DOTENV_PATH")); err != nil {
		fmt.Fprintln(os.Stderr, run.Format("load .env", err.Error()))
		run.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	args := os.Args[1:]
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		cli.Usage(os.Stderr)
		run.Exit(2)
	}
	steps, err := cli.ParseChain(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, run.Diagnostic(err))
		run.Exit(2)
	}

	tc, err := trcfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, run.Diagnostic(err))
		run.Exit(1)
	}

	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID), zap.String("command", cli.Names(steps)))

	runner := run.New(log)
	code := runner.Main(func(ctx context.Context) error {
		snap, closeSnap, err := openSnapshot(ctx, tc)
		if err != nil {
			return err
		}
		defer closeSnap()

		var catalog *store.Catalog
		if cli.NeedsCatalog(steps) {
			if catalog, err = loadCatalog(ctx, log, snap); err != nil {
				return err
			}
		}

		limiter := ratelimit.New(ratelimit.Config{
			WindowCount: tc.RateLimitCount,
			Window:      tc.RateLimitWindow,
			Cooldown:    tc.RateLimitCooldown,
			Margin:      tc.RateLimitMargin,
		}, ratelimit.WithLogger(log))
		client := anilist.New(tc.AniListURL,
			anilist.WithHTTPClient(&http.Client{Timeout: tc.HTTPTimeout}),
			anilist.WithLimiter(limiter),
			anilist.WithMaxAttempts(tc.MaxAttempts),
			anilist.WithToken(tc.AniListToken),
			anilist.WithLogger(log),
		)

		nc, err := natsconn.Connect(natsconn.Options{URL: tc.NATSURL, Name: "amq-trainer"})
		if err != nil {
			log.Warn("nats unavailable, list events disabled", zap.Error(err))
		}
		defer nc.Close()
		var js nats.JetStreamContext
		if nc != nil {
			js = nc.JS
		}

		trainer := &jobs.Trainer{
			Log:      log,
			AniList:  client,
			Sets:     store.NewSets(catalog),
			Snapshot: snap,
			Events:   events.New(js, runID, log),
			Token:    tc.AniListToken,
			User:     tc.AniListUser,
			Out:      os.Stdout,
		}
		return cli.RunChain(ctx, steps, trainer)
	})
	run.Exit(code)
}

func openSnapshot(ctx context.Context, tc trcfg.Config) (snapshot.Store, func(), error) {
	if tc.DatabaseURL == "" {
		return snapshot.NewJSONFile(tc.CatalogPath), func() {}, nil
	}
	pool, err := db.Open(ctx, tc.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	pg := snapshot.NewPostgres(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return pg, pool.Close, nil
}

func loadCatalog(ctx context.Context, log *zap.Logger, snap snapshot.Store) (*store.Catalog, error) {
	entries, err := snap.Load(ctx)
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		log.Warn("no catalog snapshot, ALL is unavailable; run `trainer refresh`", zap.Error(err))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog snapshot: %w", err)
	}
	c := store.NewCatalog(entries)
	log.Debug("catalog loaded", zap.Int("entries", c.Len()), zap.Int("max_id", c.MaxID()))
	return c, nil
}
