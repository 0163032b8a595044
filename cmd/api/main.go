package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"symposium/api/internal/app"
	"symposium/api/internal/cache"
	"symposium/api/internal/config"
	"symposium/api/internal/logger"
	"symposium/api/internal/media"
	"symposium/api/internal/search"
	"symposium/api/internal/store"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Format:  strings.ToLower(cfg.LogFormat),
		Service: "symposium-api",
	})
	log := logger.Named("main")
	ctx := context.Background()

	db, repo, fallback, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store).Msg("store setup failed")
	}
	defer db.Close()

	objects, err := openObjectStore(ctx, cfg)
	if err != nil {
		if cfg.Store != "sqlite" {
			log.Fatal().Err(err).Str("media", cfg.Media).Msg("object store setup failed")
		}
		// Local sqlite runs keep serving text content without media.
		log.Warn().Err(err).Str("media", cfg.Media).Msg("object store unavailable, media uploads disabled")
		objects = media.OfflineStore{Err: err}
	}
	if closer, ok := objects.(io.Closer); ok {
		defer closer.Close()
	}

	service := app.New(cfg, repo, media.NewService(objects))

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.FeedCacheTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisCache.Close()
		service.WithCache(redisCache)
		log.Info().Dur("ttl", cfg.FeedCacheTTL).Msg("feed cache enabled")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewMeiliService(meiliClient, fallback)
	service.WithSearch(searchService)
	go searchService.ReindexAll(ctx, fallback.LoadAllRecords)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("store", cfg.Store).Str("media", cfg.Media).Msg("symposium api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

type recordLoader interface {
	search.Searcher
	LoadAllRecords(context.Context) ([]search.Record, error)
}

func openStore(ctx context.Context, cfg config.Config) (*sql.DB, *store.Repository, recordLoader, error) {
	switch cfg.Store {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		db, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		backend, err := store.NewSQLiteStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return db, store.NewRepository(backend), search.NewSQLiteLike(db), nil
	case "postgres", "":
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		migrations := store.EmbeddedMigrations()
		if strings.TrimSpace(cfg.MigrationsDir) != "" {
			migrations = os.DirFS(cfg.MigrationsDir)
		}
		if err := store.ApplyMigrations(ctx, db, migrations); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("migrations failed: %w", err)
		}
		return db, store.NewRepository(store.NewPostgresStore(db)), search.NewPgFTS(db), nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown SYMPOSIUM_STORE %q", cfg.Store)
	}
}

func openObjectStore(ctx context.Context, cfg config.Config) (media.ObjectStore, error) {
	switch cfg.Media {
	case "gcs":
		g, err := media.NewGCSStore(ctx, media.GCSConfig{
			Bucket:        cfg.GCSBucket,
			PublicBaseURL: cfg.PublicBaseURL,
			Options:       media.GCSOptionsFromEnv(),
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	case "s3", "":
		setupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		s3, err := media.NewS3Store(setupCtx, media.S3Config{
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			UseSSL:        cfg.S3UseSSL,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unknown SYMPOSIUM_MEDIA %q", cfg.Media)
	}
}
