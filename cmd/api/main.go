package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/KuchtaVR6/Learnopedia-sub000/internal/app"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/archive"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/cache"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/config"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/content"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/identity"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/keyword"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/search"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/store"
	"github.com/KuchtaVR6/Learnopedia-sub000/internal/views"
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

	if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
		log.Fatalf("failed to create archive dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	registry := keyword.NewRegistry(dataStore)

	nodeCache := cache.New[*content.Node](cfg.CacheTTL, cfg.CachePurge)
	defer nodeCache.Close()
	amendmentCache := cache.New[content.Amendment](cfg.CacheTTL, cfg.CachePurge)
	defer amendmentCache.Close()

	// In staging mode views accumulate in Redis and flush in batches;
	// otherwise every view writes through to Postgres immediately.
	var viewSink content.ViewSink
	var viewsBuffer *views.RedisBuffer
	if cfg.StagingMode && strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("views: staging through redis")
		viewsBuffer, err = views.NewRedisBuffer(cfg.RedisURL, content.NewStoreViews(dataStore), time.Minute)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer viewsBuffer.Close()
		viewSink = viewsBuffer
	}

	manager := content.NewManager(dataStore, registry, nodeCache, amendmentCache, viewSink)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, registry.Lookup)
	if meiliClient != nil {
		// Seed the index from Postgres so content created while
		// Meilisearch was unreachable becomes searchable again.
		go func() {
			seedCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			records, err := pgfts.AllRecords(seedCtx)
			if err != nil {
				log.Printf("search seed failed: %v", err)
				return
			}
			searchService.ReindexAll(records)
		}()
	}

	archiveService := archive.New(cfg.ArchiveDir)
	resolver := identity.NewResolver(dataStore)

	service := app.NewService(manager, dataStore, searchService, archiveService, resolver, viewsBuffer, []byte(cfg.JWTSecret), cfg.AccessTTL)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Learnopedia API listening on %s", cfg.Addr)
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
