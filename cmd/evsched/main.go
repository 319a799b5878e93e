package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"evsched/internal/config"
	"evsched/internal/events"
	"evsched/internal/ics"
	appLog "evsched/internal/log"
	"evsched/internal/store"
	"evsched/internal/store/memory"
	"evsched/internal/store/mongo"
	"evsched/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	appLog.Info("evsched starting", "version", version)

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"log_level", conf.LogLevel,
		"storage", conf.Storage.Driver,
		"refresh", conf.RefreshCron,
		"subscriptions", len(conf.Subscriptions),
		"default_max_occurrences", conf.DefaultMaxOccurrences,
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags.once); err != nil {
		appLog.Error("evsched exited with error", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Info("evsched exiting")
	appLog.Sync()
}

func run(ctx context.Context, conf *config.Config, once bool) error {
	st, err := openStore(ctx, conf.Storage)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			appLog.Error("failed to close store", err)
		}
	}()

	var syncer *ics.Syncer
	if len(conf.Subscriptions) > 0 {
		subs := make([]ics.Subscription, 0, len(conf.Subscriptions))
		for _, s := range conf.Subscriptions {
			subs = append(subs, ics.Subscription{ID: s.ID, Name: s.Name, URL: s.URL})
		}
		fetcher := ics.NewFetcher(conf.CacheDir, &http.Client{Timeout: 30 * time.Second})
		syncer = ics.NewSyncer(fetcher, st, subs)
	}

	if once {
		if syncer == nil {
			appLog.Info("no subscriptions configured; nothing to sync")
			return nil
		}
		res, err := syncer.Sync(ctx)
		appLog.Info("sync finished",
			"imported", res.Imported,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)
		return err
	}

	if syncer != nil {
		sched, err := ics.NewScheduler(ctx, conf.RefreshCron, syncer)
		if err != nil {
			return err
		}
		sched.Start()
		appLog.Info("subscription refresh scheduled", "refresh", conf.RefreshCron)
		// Runs before the store is closed.
		defer sched.Stop()
	}

	svc := events.NewService(st, events.WithDefaultMax(conf.DefaultMaxOccurrences))

	// A nil *ics.Syncer must not become a non-nil web.Syncer.
	var apiSyncer web.Syncer
	if syncer != nil {
		apiSyncer = syncer
	}
	return web.NewServer(conf, svc, apiSyncer).ListenAndServe(ctx)
}

func openStore(ctx context.Context, sc config.StorageConfig) (store.Store, error) {
	switch sc.Driver {
	case config.StorageMongo:
		timeout := time.Duration(sc.TimeoutSeconds) * time.Second
		st, err := mongo.Open(ctx, sc.MongoURI, sc.MongoDatabase, timeout)
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		appLog.Info("using mongo store", "database", sc.MongoDatabase)
		return st, nil
	case config.StorageMemory, "":
		appLog.Info("using in-memory store; events are lost on restart")
		return memory.New(), nil
	default:
		return nil, errors.New("unknown storage driver: " + sc.Driver)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/evsched/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one subscription sync and exit")

	flag.Parse()

	return cfg
}
