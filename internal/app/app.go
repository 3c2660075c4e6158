// Package app wires configuration into the store, object storage, lock and
// services shared by the API server and the ops CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"handover/internal/assembler"
	"handover/internal/classifier"
	"handover/internal/config"
	"handover/internal/database"
	"handover/internal/database/migration"
	"handover/internal/lock"
	"handover/internal/metrics"
	"handover/internal/render"
	"handover/internal/repository"
	"handover/internal/repository/memory"
	"handover/internal/repository/postgres"
	"handover/internal/service"
	"handover/internal/storage"
	"handover/internal/taxonomy"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// App holds every long-lived dependency.
type App struct {
	Config   *config.AppConfig
	Log      logrus.FieldLogger
	DB       *sql.DB
	Store    repository.Store
	Objects  storage.Storage
	Locker   lock.Locker
	Taxonomy *taxonomy.Taxonomy
	Metrics  *metrics.Metrics
	Renderer *render.Registry

	Entries service.EntryService
	Drafts  service.DraftService
	Exports service.ExportService
	Audit   service.AuditService
	Sweeper *service.Sweeper

	closers []func() error
}

// LoadTaxonomy reads the configured rule table or the embedded default.
func LoadTaxonomy(path string) (*taxonomy.Taxonomy, error) {
	if path == "" {
		return taxonomy.Default()
	}
	return taxonomy.Load(path)
}

// StaleConfig converts the configured hour thresholds.
func StaleConfig(c config.HandoverConfig) service.StaleConfig {
	return service.StaleConfig{
		ArchiveAfter:       time.Duration(c.DraftArchiveAfterHours) * time.Hour,
		ReviewStaleAfter:   time.Duration(c.ReviewStaleAfterHours) * time.Hour,
		AcceptedStaleAfter: time.Duration(c.AcceptedStaleAfterHours) * time.Hour,
	}
}

// New opens every backend named by cfg. reg receives the domain collectors;
// nil disables domain metrics. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.AppConfig, log logrus.FieldLogger, reg prometheus.Registerer) (a *App, err error) {
	a = &App{Config: cfg, Log: log}
	opened := a
	defer func() {
		if err != nil {
			_ = opened.Close()
		}
	}()

	if a.Taxonomy, err = LoadTaxonomy(cfg.Handover.TaxonomyPath); err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}
	if reg != nil {
		if a.Metrics, err = metrics.New(reg); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	if err = a.openStore(ctx); err != nil {
		return nil, err
	}
	if err = a.openObjects(); err != nil {
		return nil, err
	}
	if err = a.openLocker(ctx); err != nil {
		return nil, err
	}

	asm, err := assembler.New(a.Taxonomy, assembler.Options{
		MergeThreshold: cfg.Handover.MergeSimilarityThreshold,
		HighRiskTag:    cfg.Handover.HighRiskSeverity,
	})
	if err != nil {
		return nil, fmt.Errorf("configure assembler: %w", err)
	}

	deps := service.StoreDeps(a.Store)
	deps.Storage = a.Objects
	deps.Locker = a.Locker
	deps.Metrics = a.Metrics
	deps.Log = log

	stale := StaleConfig(cfg.Handover)
	a.Renderer = render.NewRegistry()
	a.Entries = service.NewEntryService(deps, classifier.New(a.Taxonomy))
	a.Drafts = service.NewDraftService(deps, asm, stale)
	a.Exports = service.NewExportService(deps, a.Renderer, time.Duration(cfg.MinIO.PresignExpirySec)*time.Second)
	a.Audit = service.NewAuditService(deps)
	a.Sweeper = service.NewSweeper(deps, stale)

	log.WithFields(logrus.Fields{
		"component":        "app",
		"store_driver":     cfg.StoreDriver,
		"taxonomy_version": a.Taxonomy.Version,
		"redis_lock":       cfg.Redis.Addr != "",
	}).Info("application wired")
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.StoreDriver {
	case DriverMemory:
		a.Store = memory.New()
		return nil
	case DriverPostgres, "":
		db, err := database.NewPostgres(ctx, a.Config.Database, a.Log)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		if err := migration.EnsureMigrated(ctx, db, a.Log, a.Config.Database.Host); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		a.Store = postgres.New(db)
		return nil
	}
	return fmt.Errorf("unknown store driver %q", a.Config.StoreDriver)
}

// openObjects uses MinIO when configured. The memory store falls back to
// in-process object storage so the whole service runs without backends.
func (a *App) openObjects() error {
	if a.Config.MinIO.Endpoint == "" && a.Config.StoreDriver == DriverMemory {
		a.Objects = storage.NewMemory()
		return nil
	}
	objects, err := storage.NewMinIO(a.Config.MinIO)
	if err != nil {
		return fmt.Errorf("initialize object storage: %w", err)
	}
	a.Objects = objects
	return nil
}

func (a *App) openLocker(ctx context.Context) error {
	if a.Config.Redis.Addr == "" {
		a.Locker = lock.NewLocal()
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	a.closers = append(a.closers, client.Close)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	a.Locker = lock.NewRedis(client, time.Duration(a.Config.Redis.LockTTLSec)*time.Second)
	return nil
}

// Ping checks the store. The memory store is always reachable.
func (a *App) Ping(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.PingContext(ctx)
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
