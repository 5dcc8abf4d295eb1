package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/matthewbaird/propmaint/internal/activity"
	"github.com/matthewbaird/propmaint/internal/attachment"
	"github.com/matthewbaird/propmaint/internal/auth"
	"github.com/matthewbaird/propmaint/internal/config"
	"github.com/matthewbaird/propmaint/internal/event"
	"github.com/matthewbaird/propmaint/internal/eventbus"
	"github.com/matthewbaird/propmaint/internal/feed"
	"github.com/matthewbaird/propmaint/internal/handler"
	"github.com/matthewbaird/propmaint/internal/jobs"
	"github.com/matthewbaird/propmaint/internal/lifecycle"
	"github.com/matthewbaird/propmaint/internal/logger"
	"github.com/matthewbaird/propmaint/internal/metrics"
	"github.com/matthewbaird/propmaint/internal/prediction"
	"github.com/matthewbaird/propmaint/internal/priority"
	"github.com/matthewbaird/propmaint/internal/registry"
	"github.com/matthewbaird/propmaint/internal/schedule"
	"github.com/matthewbaird/propmaint/internal/server"
	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/store/sqlstore"
)

// memoryDatabase selects the in-process store instead of a SQL database.
const memoryDatabase = "memory"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "propmaint:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, logCloser, err := logger.New(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	st, acts, closeStore, err := openStores(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer closeStore.Close()

	bus := eventbus.New(1024, log)
	bus.Subscribe("log", eventbus.NewLogConsumer(log))
	hub := feed.NewHub(log)
	bus.Subscribe("feed", hub)
	if cfg.NATSURL != "" {
		nc, err := eventbus.DialNATS(cfg.NATSURL, cfg.NATSSubject, log)
		if err != nil {
			return err
		}
		defer nc.Close()
		bus.Subscribe("nats", nc)
	}

	rec := event.NewActivityRecorder(acts)
	rec.SetPublisher(bus)
	ctrl := lifecycle.New(st, lifecycle.WithRecorder(rec), lifecycle.WithLogger(log))

	rules, err := loadRules(cfg.PredictionRulesFile)
	if err != nil {
		return err
	}
	engine := priority.NewEngine(ctrl)
	runner := prediction.NewRunner(ctrl, prediction.NewGenerator(rules), cfg.PredictionDedup)
	sched := schedule.New(ctrl, cfg.StaffIDs)

	var cache metrics.Cache
	if cfg.RedisURL != "" {
		rc, err := metrics.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rc.Close()
		cache = rc
	}
	stats := metrics.NewService(st, cache, cfg.MetricsTTL, log)

	files, err := openAttachments(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}

	js := jobs.New(cfg.JobTimeout, log)
	if err := js.Add("predictions", cfg.PredictionCron, func(ctx context.Context) error {
		res, err := runner.Run(ctx, auth.System)
		if err != nil {
			return err
		}
		scored, err := engine.Apply(ctx, auth.System)
		if err != nil {
			return err
		}
		log.Info("nightly predictions", "created", len(res.Created), "skipped", res.Skipped, "scored", scored.Scored)
		return nil
	}); err != nil {
		return err
	}
	if err := js.Add("assignment", cfg.AssignmentCron, func(ctx context.Context) error {
		batch, err := sched.AssignWeekly(ctx, auth.System, cfg.WeeklyCapacity)
		if err != nil {
			return err
		}
		log.Info("weekly assignment", "batch_id", batch.ID, "assigned", len(batch.Assignments), "remaining", batch.Remaining)
		return nil
	}); err != nil {
		return err
	}

	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.JWTSecret)
	}
	if cfg.AuthDevHeaders {
		log.Warn("trusting X-Actor/X-Role headers; do not enable in production")
	}

	router := server.NewRouter(server.Handlers{
		Auth:       handler.NewAuthenticator(verifier, cfg.AuthDevHeaders),
		Tasks:      handler.NewTaskHandler(ctrl, engine, acts, files, cfg.MaxUploadBytes, log),
		Properties: handler.NewPropertyHandler(registry.New(st, rec, log), acts),
		Batches:    handler.NewBatchHandler(runner, engine, sched, st, stats, js, cfg.WeeklyCapacity),
		Activity:   handler.NewActivityHandler(acts),
		Feed:       hub,
	}, log)

	bus.Start(ctx)
	defer bus.Stop()
	js.Start(ctx)
	defer js.Stop()

	return server.Run(ctx, server.Config{Port: cfg.Port, Handler: router, Log: log})
}

func openStores(ctx context.Context, dsn string, log *slog.Logger) (store.Store, activity.Store, io.Closer, error) {
	if dsn == memoryDatabase {
		log.Warn("using in-memory store; data is lost on exit")
		return store.NewMemoryStore(), activity.NewMemoryStore(), nopCloser{}, nil
	}
	db, err := sqlstore.Open(ctx, dsn)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	log.Info("database migrated")
	return db, db, db, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func loadRules(path string) (prediction.Ruleset, error) {
	if path == "" {
		return prediction.DefaultRules()
	}
	return prediction.LoadRules(path)
}

func openAttachments(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (attachment.Store, error) {
	switch cfg.Backend {
	case "local":
		return attachment.NewLocal(cfg.LocalDir)
	case "s3":
		return attachment.NewS3(ctx, attachment.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
		}, log)
	default:
		return nil, errors.New("unknown storage backend " + cfg.Backend)
	}
}
