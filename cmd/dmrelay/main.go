package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"dmrelay/internal/app"
	logx "dmrelay/pkg/logx"
)

func main() {
	var (
		cfgPath string
		dryRun  bool
	)
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config json or yaml")
	flag.BoolVar(&dryRun, "dry-run", false, "resolve communities and count recipients without sending")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Used until the configured logging service exists.
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "main"))

	a, err := app.NewApp(cfgPath, app.Options{DryRun: dryRun})
	if err != nil {
		bootLog.Error("fatal: startup failed", logx.String("config", cfgPath), logx.Err(err))
		os.Exit(1)
	}

	log := a.Log
	log.Info("dmrelay starting", logx.String("config", cfgPath), logx.Bool("dry_run", dryRun))
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug("sd_notify ready failed", logx.Err(err))
	}

	a.Run(ctx)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err := a.Close(context.Background()); err != nil {
		bootLog.Warn("shutdown incomplete", logx.Err(err))
	}
}
