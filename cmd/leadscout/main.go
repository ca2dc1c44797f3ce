// Package main wires together the leadscout service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/api"
	"github.com/leadscout/leadscout/internal/artifacts"
	artgcs "github.com/leadscout/leadscout/internal/artifacts/gcs"
	artlocal "github.com/leadscout/leadscout/internal/artifacts/local"
	"github.com/leadscout/leadscout/internal/checkpoint"
	"github.com/leadscout/leadscout/internal/classifier/gemini"
	"github.com/leadscout/leadscout/internal/clock/system"
	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/dedup"
	dedupmem "github.com/leadscout/leadscout/internal/dedup/memory"
	deduppg "github.com/leadscout/leadscout/internal/dedup/postgres"
	"github.com/leadscout/leadscout/internal/dispatch"
	"github.com/leadscout/leadscout/internal/filter"
	"github.com/leadscout/leadscout/internal/id/uuid"
	"github.com/leadscout/leadscout/internal/identity"
	"github.com/leadscout/leadscout/internal/lead"
	"github.com/leadscout/leadscout/internal/logging"
	"github.com/leadscout/leadscout/internal/metrics"
	notifymem "github.com/leadscout/leadscout/internal/notify/memory"
	notifypubsub "github.com/leadscout/leadscout/internal/notify/pubsub"
	notifysmtp "github.com/leadscout/leadscout/internal/notify/smtp"
	"github.com/leadscout/leadscout/internal/runner"
	"github.com/leadscout/leadscout/internal/session"
	chromedpsession "github.com/leadscout/leadscout/internal/session/chromedp"
	"github.com/leadscout/leadscout/internal/settings"
	settingsmem "github.com/leadscout/leadscout/internal/settings/memory"
	settingspg "github.com/leadscout/leadscout/internal/settings/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	store, err := buildDedupStore(ctx, cfg)
	if err != nil {
		logger.Fatal("dedup store init failed", zap.Error(err))
	}
	defer store.Close()

	settingsStore, err := buildSettingsStore(ctx, cfg)
	if err != nil {
		logger.Fatal("settings store init failed", zap.Error(err))
	}
	defer settingsStore.Close()
	senders := settings.NewSenderPool(settingsStore)

	artifactStore, err := buildArtifactStore(ctx, cfg)
	if err != nil {
		logger.Fatal("artifact store init failed", zap.Error(err))
	}

	notifier, err := buildNotifier(ctx, cfg)
	if err != nil {
		logger.Fatal("notifier init failed", zap.Error(err))
	}

	chain, closeClassifier, err := buildFilterChain(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("classifier init failed", zap.Error(err))
	}
	defer closeClassifier()

	registry := session.NewRegistry()
	machine := checkpoint.New(
		checkpoint.Config{
			TokenTTL:     time.Duration(cfg.Checkpoint.TokenTTLMinutes) * time.Minute,
			WaitTimeout:  time.Duration(cfg.Checkpoint.WaitTimeoutMinutes) * time.Minute,
			PollInterval: time.Duration(cfg.Checkpoint.PollIntervalMs) * time.Millisecond,
			BaseURL:      cfg.Checkpoint.BaseURL,
		},
		registry,
		artifactStore,
		pauseNotifyFunc(notifier, senders),
		clock,
		idGen,
		logger.Named("checkpoint"),
	)

	dispatcher := dispatch.New(
		dispatch.Config{SendDelay: cfg.SendDelay()},
		notifier,
		store,
		clock,
		logger.Named("dispatch"),
	)

	run := runner.New(
		runner.Config{
			Sources:            cfg.LeadSources(),
			MaxSessionRestarts: cfg.Runner.MaxSessionRestarts,
		},
		sessionFactory(cfg, logger),
		registry,
		machine,
		identity.New(),
		chain,
		store,
		dispatcher,
		senders,
		clock,
		logger.Named("runner"),
	)

	apiCfg := api.Config{
		AdminToken:     cfg.Auth.AdminToken,
		RequestTimeout: cfg.ServerTimeout(),
	}
	if cfg.Auth.Enabled {
		apiCfg.APIKey = cfg.Auth.APIKey
	}
	apiServer := api.NewServer(run, machine, store, settingsStore, senders, apiCfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	run.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildDedupStore(ctx context.Context, cfg config.Config) (dedup.Store, error) {
	switch cfg.Dedup.Provider {
	case "postgres":
		store, err := deduppg.New(ctx, deduppg.Config{
			DSN:   cfg.Dedup.DSN,
			Table: cfg.Dedup.Table,
		})
		if err != nil {
			return nil, err
		}
		if err := store.Init(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return dedupmem.New(cfg.Dedup.BackupDir), nil
	}
}

func buildSettingsStore(ctx context.Context, cfg config.Config) (settings.Store, error) {
	switch cfg.Settings.Provider {
	case "postgres":
		store, err := settingspg.New(ctx, settingspg.Config{
			DSN:   cfg.Settings.DSN,
			Table: cfg.Settings.Table,
		})
		if err != nil {
			return nil, err
		}
		if err := store.Init(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return settingsmem.New(), nil
	}
}

func buildArtifactStore(ctx context.Context, cfg config.Config) (artifacts.Store, error) {
	switch cfg.Artifacts.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		return artgcs.New(client, artgcs.Config{Bucket: cfg.Artifacts.GCSBucket})
	default:
		return artlocal.New(artlocal.Config{BaseDir: cfg.Artifacts.Dir})
	}
}

func buildNotifier(ctx context.Context, cfg config.Config) (lead.Notifier, error) {
	switch cfg.Notify.Provider {
	case "smtp":
		return notifysmtp.New(notifysmtp.Config{
			Recipients: cfg.Notify.Recipients,
			Timeout:    time.Duration(cfg.Notify.SMTPTimeout) * time.Second,
		})
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.Notify.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		return notifypubsub.New(client, cfg.Notify.TopicName)
	default:
		return notifymem.New(), nil
	}
}

func buildFilterChain(ctx context.Context, cfg config.Config, logger *zap.Logger) (*filter.Chain, func(), error) {
	closeFn := func() {}

	var classifier lead.Classifier
	if cfg.Classifier.Provider == "gemini" {
		gc, err := gemini.New(ctx, gemini.Config{
			APIKey:      cfg.Classifier.APIKey,
			Model:       cfg.Classifier.Model,
			Temperature: cfg.Classifier.Temperature,
		})
		if err != nil {
			return nil, nil, err
		}
		classifier = gc
		closeFn = func() {
			if err := gc.Close(); err != nil {
				logger.Warn("classifier close failed", zap.Error(err))
			}
		}
	}

	var rules []filter.Rule
	if len(cfg.Filter.LocationMarkers) > 0 || len(cfg.Filter.ExtraPromoTerms) > 0 || len(cfg.Filter.ExtraHireTerms) > 0 {
		rules = []filter.Rule{
			filter.NewPromoRule(cfg.Filter.ExtraPromoTerms, cfg.Filter.ExtraHireTerms),
			filter.NewLocationRule(cfg.Filter.LocationMarkers),
		}
	}

	chain := filter.New(filter.Config{
		Classifier: classifier,
		FailOpen:   cfg.Filter.FailOpen,
		Rules:      rules,
		Logger:     logger.Named("filter"),
	})
	return chain, closeFn, nil
}

// sessionFactory opens a fresh signed-in browser session for each run and
// after transient failures.
func sessionFactory(cfg config.Config, logger *zap.Logger) runner.SessionFactory {
	return func(ctx context.Context) (session.Driver, error) {
		driver, err := chromedpsession.New(ctx, chromedpsession.Config{
			Headless:          cfg.Session.Headless,
			UserAgent:         cfg.Session.UserAgent,
			NavigationTimeout: time.Duration(cfg.Session.NavTimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Session.LoginIdentity != "" && cfg.Session.LoginURL != "" {
			if err := driver.Login(ctx, cfg.Session.LoginURL, cfg.Session.LoginIdentity, cfg.Session.LoginSecret); err != nil {
				if closeErr := driver.Close(ctx); closeErr != nil {
					logger.Warn("session close failed", zap.Error(closeErr))
				}
				return nil, fmt.Errorf("sign in: %w", err)
			}
		}
		return driver, nil
	}
}

func pauseNotifyFunc(notifier lead.Notifier, senders *settings.SenderPool) checkpoint.NotifyFunc {
	return func(ctx context.Context, subject, body string) error {
		var cred lead.Credential
		pool, err := senders.Senders(ctx)
		if err == nil && len(pool) > 0 {
			cred = pool[0]
		}
		return notifier.Send(ctx, lead.Message{Subject: subject, Body: body, Credential: cred})
	}
}
