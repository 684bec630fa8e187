package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"marquee/api"
	"marquee/config"
	"marquee/models"
	"marquee/services/accounts"
	"marquee/services/metadata"
	"marquee/services/scheduler"
	"marquee/services/sessions"
	"marquee/view"
)

type application struct {
	settings     config.Settings
	fs           afero.Fs
	accounts     *accounts.Service
	sessions     *sessions.Service
	titles       *metadata.Service
	renderer     *view.Renderer
	loginLimiter *api.IPRateLimiter
	proxies      *api.ProxyPolicy
}

func main() {
	configPath := flag.String("config", filepath.Join("data", "settings.json"), "path to the settings file")
	resetPassword := flag.Bool("reset-master-password", false, "generate a new master password, print it and exit")
	clearCache := flag.Bool("clear-cache", false, "drop cached title records before serving")
	initConfig := flag.Bool("init-config", false, "write a default settings file if none exists and exit")
	flag.Parse()

	manager := config.NewManager(*configPath)
	if *initConfig {
		created, err := manager.Init()
		if err != nil {
			log.Fatalf("[main] init settings: %v", err)
		}
		if created {
			log.Printf("[main] wrote default settings to %s", manager.Path())
		} else {
			log.Printf("[main] settings already exist at %s", manager.Path())
		}
		return
	}

	settings, err := manager.Load()
	if err != nil {
		log.Fatalf("[main] load settings: %v", err)
	}
	setupLogging(settings.Log)
	log.Printf("[main] settings from %s", manager.Path())

	fs := afero.NewOsFs()
	accountsSvc, err := accounts.NewService(fs, settings.Auth.StorageDir)
	if err != nil {
		log.Fatalf("[main] accounts: %v", err)
	}

	if *resetPassword {
		generated, err := accountsSvc.ResetMasterPassword()
		if err != nil {
			log.Fatalf("[main] reset master password: %v", err)
		}
		fmt.Println(generated)
		return
	}

	if err := settings.Validate(); err != nil {
		log.Fatalf("[main] invalid settings: %v", err)
	}
	proxies, err := api.NewProxyPolicy(settings.Server.TrustedProxies)
	if err != nil {
		log.Fatalf("[main] invalid settings: %v", err)
	}

	sessionsSvc, err := sessions.NewService(fs, settings.Auth.StorageDir, time.Duration(settings.Auth.SessionDurationDays)*24*time.Hour)
	if err != nil {
		log.Fatalf("[main] sessions: %v", err)
	}

	renderer, err := view.NewRenderer(settings.TMDB.Language)
	if err != nil {
		log.Fatalf("[main] templates: %v", err)
	}

	app := &application{
		settings: settings,
		fs:       fs,
		accounts: accountsSvc,
		sessions: sessionsSvc,
		titles: metadata.NewService(metadata.Options{
			APIKey:           settings.TMDB.APIKey,
			Language:         settings.TMDB.Language,
			BaseURL:          settings.TMDB.BaseURL,
			HTTPClient:       &http.Client{Timeout: settings.TMDB.ClientTimeout()},
			Fs:               fs,
			CacheDir:         settings.Cache.Dir,
			TTLHours:         settings.Cache.TTLHours,
			EnrichmentTTL:    time.Duration(settings.Cache.EnrichmentTTLMinutes) * time.Minute,
			BatchConcurrency: settings.Cache.BatchConcurrency,
		}),
		renderer:     renderer,
		loginLimiter: api.PerMinute(settings.Auth.LoginPerMinute),
		proxies:      proxies,
	}

	if *clearCache {
		if err := app.titles.ClearCache(); err != nil {
			log.Printf("[main] clear cache: %v", err)
		}
	}
	log.Printf("[main] tmdb language=%s cache=%s", app.titles.Language(), settings.Cache.Dir)

	if accountsSvc.HasDefaultPassword() {
		log.Printf("[main] master account %q still uses the default password; run with -reset-master-password", models.MasterAccountUsername)
	}

	if err := app.serve(); err != nil {
		log.Fatalf("[main] %v", err)
	}
}

func (app *application) serve() error {
	srv := &http.Server{
		Addr:              app.settings.Server.Listen,
		Handler:           app.routes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	maintenance := app.maintenance()
	maintenance.Start(ctx)
	defer maintenance.Stop(context.Background())

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[main] listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Printf("[main] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (app *application) maintenance() *scheduler.Service {
	return scheduler.NewService(
		scheduler.Task{
			Name:     "session-cleanup",
			Interval: time.Hour,
			Run: func(context.Context) (int, error) {
				return app.sessions.Cleanup(), nil
			},
		},
		scheduler.Task{
			Name:     "enrichment-purge",
			Interval: time.Minute,
			Run: func(context.Context) (int, error) {
				return app.titles.PurgeEnrichment(), nil
			},
		},
		scheduler.Task{
			Name:     "login-limiter-evict",
			Interval: time.Minute,
			Run: func(context.Context) (int, error) {
				return app.loginLimiter.Evict(), nil
			},
		},
	)
}

func setupLogging(cfg config.LogSettings) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if cfg.File == "" {
		return
	}
	log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}))
}
