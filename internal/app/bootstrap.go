package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dmrelay/internal/config"
	"dmrelay/internal/delivery"
	"dmrelay/internal/metrics"
	"dmrelay/internal/schedule"
	"dmrelay/internal/session"
	"dmrelay/internal/storage"
	discord "dmrelay/internal/transport/discord/adapter"
	logx "dmrelay/pkg/logx"
)

// Options are process-level switches that do not live in the config file.
type Options struct {
	DryRun bool
}

// NewApp loads cfgPath and wires every component. Close releases what it
// opened.
func NewApp(cfgPath string, opts Options) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a := &App{logs: logSvc, Log: log.With(logx.String("comp", "app"))}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	timeout, err := cfg.Platform.Timeout()
	if err != nil {
		return nil, err
	}
	conn := discord.New(discord.Config{
		ConnectTimeout: timeout,
		SendsPerSec:    cfg.Delivery.SendsPerSec(),
	}, log.With(logx.String("comp", "discord")))

	delays, err := cfg.Delivery.Durations()
	if err != nil {
		return nil, err
	}

	a.Metrics = metrics.New()
	if cfg.Metrics.Enabled {
		addr, path := cfg.Metrics.Endpoint()
		var lopts []metrics.ListenOption
		if cfg.Metrics.Pprof {
			lopts = append(lopts, metrics.WithPprof())
		}
		srv, err := metrics.Listen(a.Metrics, addr, path, log.With(logx.String("comp", "metrics")), lopts...)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		a.msrv = srv
	}

	sc, err := mapStorageConfig(cfg.Storage)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if st != nil {
		a.Store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	if a.Schedule, err = schedule.Parse(cfg.Schedule); err != nil {
		return nil, err
	}

	a.Session = &session.Session{
		Connector: conn,
		Processor: &delivery.Processor{
			Pacer: delivery.Pacer{
				Base:          delays.Base,
				Jitter:        delays.Jitter,
				RateLimitWait: delays.RateLimitWait,
			},
			RateLimitRetries: cfg.Delivery.RateLimitRetries,
			Log:              log.With(logx.String("comp", "delivery")),
			Recorder:         a.Metrics,
		},
		Log:    log.With(logx.String("comp", "session")),
		DryRun: opts.DryRun,
	}
	a.targets = Targets(cfg.Servers)

	ok = true
	return a, nil
}

// Targets maps configured servers to session targets, keeping order.
func Targets(servers []config.ServerConfig) []session.Target {
	out := make([]session.Target, 0, len(servers))
	for _, s := range servers {
		out = append(out, session.Target{
			Name:    s.Name,
			Token:   s.Token,
			GuildID: s.GuildID,
			Message: s.Message,
		})
	}
	return out
}

// Run executes every configured target once.
func (a *App) Run(ctx context.Context) []session.Report {
	return a.RunAll(ctx, a.targets)
}

// Close stops the metrics listener and closes storage and log files.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.msrv != nil {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		errs = append(errs, a.msrv.Shutdown(sctx))
		cancel()
		a.msrv = nil
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
		a.Store = nil
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
		a.logs = nil
	}
	return errors.Join(errs...)
}

func mapStorageConfig(c config.StorageConfig) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", c.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      c.Driver,
		Path:        c.Path,
		BusyTimeout: busy,
	}, nil
}
