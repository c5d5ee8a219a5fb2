package main

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"zionic-engine/internal/config"
	"zionic-engine/internal/emailpoll"
	"zionic-engine/internal/events"
	"zionic-engine/internal/extract"
	"zionic-engine/internal/httpapi"
	"zionic-engine/internal/lead"
	"zionic-engine/internal/logger"
	"zionic-engine/internal/pipeline"
	"zionic-engine/internal/scheduler"
	"zionic-engine/internal/scrape"
	"zionic-engine/internal/scrape/seek"
	"zionic-engine/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Engine data dir: use env if provided (desktop shell can pass one),
	// else local folder.
	dataDir := os.Getenv("ZIONIC_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	// One engine per data dir. A second instance would fight over the
	// sqlite writer and double-process every mailbox message.
	lock := flock.New(filepath.Join(dataDir, "engine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another engine instance holds %s", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	userCfgPath, err := config.EnsureUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("config bootstrap failed: %w", err)
	}

	// Load config and keep it reloadable
	var cfgVal atomic.Value // stores config.Config
	loadCfg := func() (config.Config, error) {
		raw, err := config.Load(userCfgPath)
		if err != nil {
			return config.Config{}, err
		}
		normalized, vr := config.NormalizeAndValidate(raw)
		if !vr.OK() {
			return config.Config{}, fmt.Errorf("config invalid: %v", vr.Errors)
		}
		return normalized, nil
	}
	cfg, err := loadCfg()
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", userCfgPath, err)
	}
	cfgVal.Store(cfg)

	zl, err := logger.New(cfg.Logging.JSON, cfg.Logging.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	db, err := store.Open(filepath.Join(dataDir, "zionic.db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := store.Migrate(db.Pool); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractor, err := buildExtractor(ctx, cfg, zl)
	if err != nil {
		return err
	}
	zl.Info("extractor ready", zap.String("extractor", extractor.Name()))

	hub := events.NewHub()

	pipe := &pipeline.Pipeline{
		Extractor: extractor,
		Store:     pipeline.SQLStore{DB: db.Pool},
		Rules: lead.Rules{
			Sector:   cfg.Qualify.Sector,
			Timezone: cfg.Timezone(),
		},
		Logger: zl,
		OnStored: func(row store.StoredLead) {
			hub.Publish(events.LeadCreated(row.ID, row.Company))
		},
	}

	seeker := seek.New(seek.Config{
		BaseURL:  cfg.Scrape.BaseURL,
		Role:     cfg.Scrape.Role,
		Location: cfg.Scrape.Location,
		Pages:    cfg.Scrape.Pages,
	}, zl)

	runScrape := func(ctx context.Context) pipeline.BatchResult {
		return scrape.RunOnce(ctx, []scrape.Fetcher{seeker}, pipe, zl)
	}

	var scrapeStatus atomic.Value
	scrapeStatus.Store(httpapi.ScrapeStatus{})

	// Background loops
	go scheduler.Every(ctx, time.Duration(cfg.Polling.ScrapeSeconds)*time.Second, "scrape", zl, func(ctx context.Context) error {
		br := runScrape(ctx)
		zl.Info("scheduled scrape done",
			zap.Int("stored", br.Stored),
			zap.Int("duplicates", br.Duplicates),
			zap.Int("skipped", br.Skipped),
			zap.Int("failed", br.Failed),
		)
		return nil
	})

	if cfg.Email.Enabled {
		poller := &emailpoll.Poller{Cfg: cfg, Logger: zl}
		go scheduler.Every(ctx, time.Duration(cfg.Polling.EmailSeconds)*time.Second, "emailpoll", zl, func(ctx context.Context) error {
			scrape.RunOnce(ctx, []scrape.Fetcher{poller}, pipe, zl)
			return nil
		})
	}

	go scheduler.Every(ctx, time.Duration(cfg.Polling.CleanupSeconds)*time.Second, "cleanup", zl, func(ctx context.Context) error {
		n, err := store.CleanupOldLeads(db.Pool)
		if err != nil {
			return err
		}
		if n > 0 {
			zl.Info("old leads cleaned up", zap.Int64("deleted", n))
		}
		return nil
	})

	mux := httpapi.NewMux(httpapi.Deps{
		DB:           db.Pool,
		Hub:          hub,
		Pipeline:     pipe,
		CfgVal:       &cfgVal,
		ScrapeStatus: &scrapeStatus,
		UserCfgPath:  userCfgPath,
		LoadCfg:      loadCfg,
		RunScrape:    runScrape,
		Logger:       zl,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.App.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler: httpapi.Chain(mux,
			httpapi.RequestID,
			httpapi.Recover(zl),
			httpapi.AccessLog(zl),
			httpapi.Cors,
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Local-only shutdown endpoint so the desktop shell can stop the engine
	// cleanly without killing the process.
	token, err := randomToken(16)
	if err != nil {
		return err
	}
	mux.HandleFunc("/shutdown", shutdownHandler(token, stop))
	if err := os.WriteFile(filepath.Join(dataDir, "engine.token"), []byte(token), 0o600); err != nil {
		return err
	}

	go func() {
		zl.Info("engine listening",
			zap.String("addr", "http://"+addr),
			zap.String("config", userCfgPath),
		)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			zl.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildExtractor(ctx context.Context, cfg config.Config, zl *zap.Logger) (extract.Extractor, error) {
	heuristic := &extract.Heuristic{Sector: cfg.Qualify.Sector}

	switch cfg.Extractor.Provider {
	case "heuristic":
		return heuristic, nil
	case "gemini":
		apiKey := os.Getenv(cfg.Extractor.APIKeyEnv)
		if apiKey == "" {
			zl.Warn("api key env is empty, running heuristic extraction only",
				zap.String("env", cfg.Extractor.APIKeyEnv),
			)
			return heuristic, nil
		}
		gem, err := extract.NewGemini(ctx, apiKey, cfg.Extractor.Model, zl)
		if err != nil {
			return nil, err
		}
		return &extract.WithFallback{Primary: gem, Fallback: heuristic, Logger: zl}, nil
	default:
		return nil, fmt.Errorf("unknown extractor provider %q", cfg.Extractor.Provider)
	}
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func shutdownHandler(token string, stop context.CancelFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		// Local-only guard (covers typical desktop usage)
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil || (host != "127.0.0.1" && host != "::1") {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		got := r.Header.Get("X-Engine-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		w.WriteHeader(http.StatusNoContent)
		go stop()
	}
}
