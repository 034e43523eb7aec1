package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"waypoint/api/internal/cache"
	"waypoint/api/internal/config"
	"waypoint/api/internal/contentstore"
	"waypoint/api/internal/projects"
	"waypoint/api/internal/search"
	"waypoint/api/internal/store"
	"waypoint/api/internal/workingcopy"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("failed to create data dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	var content contentstore.Store
	switch cfg.ContentStore {
	case "snapshot":
		content = contentstore.NewSnapshot(db)
	case "git":
		content = contentstore.NewGit(filepath.Join(cfg.DataDir, "repos"))
	default:
		content = contentstore.NewDiff(db)
	}

	var mirror workingcopy.Store
	if cfg.Mirror == "s3" {
		mirror, err = workingcopy.NewObjectStore(ctx, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3UseSSL)
		if err != nil {
			log.Fatalf("object store connection failed: %v", err)
		}
	} else {
		mirror, err = workingcopy.NewFilesystem(filepath.Join(cfg.DataDir, "working-copies"))
		if err != nil {
			log.Fatalf("working copy dir failed: %v", err)
		}
	}

	manager := projects.New(dataStore, content, mirror)

	var permCache *cache.PermissionCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for permission caching")
		permCache, err = cache.New(cfg.RedisURL, dataStore, cfg.PermCacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer permCache.Close()
		manager.UseCache(permCache, permCache)
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	manager.UseIndexer(searchService)
	manager.UseSearch(searchService)

	if meiliClient != nil && meiliClient.Healthy() {
		if all, err := dataStore.ListAllProjects(ctx); err != nil {
			log.Printf("WARNING: reindex skipped: %v", err)
		} else {
			searchService.ReindexAll(all)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"database": "ok"}
		code := http.StatusOK
		if err := dataStore.Ping(r.Context()); err != nil {
			status["database"] = "unreachable"
			code = http.StatusServiceUnavailable
		}
		if permCache != nil {
			status["cache"] = "ok"
			if err := permCache.Ping(r.Context()); err != nil {
				status["cache"] = "unreachable"
			}
		}
		if meiliClient != nil {
			status["search"] = "ok"
			if !meiliClient.Healthy() {
				status["search"] = "degraded"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Waypoint API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
