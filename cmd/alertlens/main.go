package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"alertlens/config"
	"alertlens/internal/analytics"
	"alertlens/internal/api"
	"alertlens/internal/classify"
	"alertlens/internal/ingest"
	"alertlens/internal/logger"
	"alertlens/internal/namecache"
	"alertlens/internal/rules"
	"alertlens/internal/store"
	"alertlens/internal/tracker"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		if _, err := os.Stat(configArg); err == nil {
			return configArg
		}
		log.Printf("Warning: config file not found at %s, trying default locations", configArg)
	}

	if _, err := os.Stat("alertlens.yml"); err == nil {
		return "alertlens.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		path := filepath.Join(filepath.Dir(exePath), "alertlens.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "alertlens.yml"
}

func main() {
	configArg := ""
	if len(os.Args) > 1 {
		configArg = os.Args[1]
	}
	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.ApplyDefaults(cfg)
	c := &cfg.AlertLens

	if err := logger.Init(c.Logging.Enabled, c.Logging.Level, c.Logging.File, c.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("AlertLens starting")
	logger.Infof("Config loaded from: %s", configPath)

	st, err := store.Open(store.Config{Path: c.Store.Path, PoolSize: c.Store.PoolSize})
	if err != nil {
		logger.Errorf("Failed to open store: %v", err)
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()
	logger.Infof("Store opened at %s", c.Store.Path)

	categories := classify.NewCategoryMap(c.Categories.Path, c.Categories.ReloadInterval)

	var shared namecache.SharedTier
	var redisTier *namecache.RedisTier
	if c.NameLookup.Redis.Addr != "" {
		redisTier, err = namecache.NewRedisTier(namecache.RedisConfig{
			Addr:      c.NameLookup.Redis.Addr,
			Password:  c.NameLookup.Redis.Password,
			DB:        c.NameLookup.Redis.DB,
			KeyPrefix: c.NameLookup.Redis.KeyPrefix,
		})
		if err != nil {
			logger.Warnf("Shared name cache disabled: %v", err)
		} else {
			shared = redisTier
			defer redisTier.Close()
			logger.Infof("Shared name cache at %s", c.NameLookup.Redis.Addr)
		}
	}

	resolver := namecache.NewResolver(namecache.Config{
		BaseURL: c.NameLookup.URL,
		Timeout: c.NameLookup.Timeout,
		Shared:  shared,
	})

	// The tracker is optional: without credentials the service still
	// serves analytics over whatever is already stored.
	var fetcher ingest.Fetcher
	tc, err := tracker.NewClient(tracker.Config{
		BaseURL:  c.Tracker.BaseURL,
		Username: c.Tracker.Username,
		Token:    c.Tracker.Token,
		PageSize: c.Tracker.PageSize,
		Timeout:  c.Tracker.Timeout,
	})
	if err != nil {
		logger.Warnf("Tracker disabled: %v", err)
	} else {
		if err := tc.TestConnection(); err != nil {
			logger.Warnf("Tracker connection test failed: %v", err)
		}
		fetcher = tc
	}

	extractor := ingest.NewExtractor(resolver)
	updater := ingest.NewUpdater(st, fetcher, extractor, c.Tracker.Projects)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if fetcher != nil {
		count, err := st.IssueCount(ctx)
		if err != nil {
			logger.Errorf("Counting stored issues: %v", err)
		}
		if count == 0 {
			logger.Infof("Store is empty, starting initial backfill (%d days)", c.Ingest.InitialDays)
			go func() {
				stored, err := updater.FetchInitial(ctx, c.Ingest.InitialDays)
				if err != nil {
					logger.Errorf("Initial backfill failed: %v", err)
					return
				}
				logger.Infof("Initial backfill stored %d issues", stored)
			}()
		}

		scheduler := ingest.NewScheduler(updater, c.Ingest.Interval)
		go scheduler.Run(ctx)
	}

	var rulesSvc *rules.Service
	if c.Rules.Enabled {
		rulesSvc = rules.NewService(c.Rules)
		logger.Infof("Rule browser enabled at %s", c.Rules.RepoPath)
	}

	engine := analytics.NewEngine(st, categories, resolver)
	server := api.NewServer(engine, updater, rulesSvc, st)

	httpServer := &http.Server{
		Addr:    c.Server.Addr,
		Handler: server.Handler(),
	}

	go func() {
		logger.Infof("HTTP server listening on %s", c.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP server error: %v", err)
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP shutdown error: %v", err)
	}

	logger.Infof("AlertLens stopped")
}
