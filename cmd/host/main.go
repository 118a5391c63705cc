package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/astromechza/studio/pkg/config"
	"github.com/astromechza/studio/pkg/hostd"
	"github.com/astromechza/studio/pkg/model"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	flagSet := pflag.NewFlagSet("studio-host", pflag.ContinueOnError)
	config.RegisterFlags(flagSet, "log-level", "listen", "db", "import-dir", "latest-version", "update-url", "title")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	cfg, err := config.Load(flagSet)
	if err != nil {
		return err
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("Opening database", "db", cfg.Host.DB)
	st, err := hostd.OpenStore(ctx, cfg.Host.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	var latest *model.Update
	if cfg.Host.LatestVersion != "" {
		latest = &model.Update{Version: cfg.Host.LatestVersion, URL: cfg.Host.UpdateURL}
	}
	s := hostd.New(hostd.Options{Store: st, Latest: latest, Title: cfg.Renderer.Title, Logger: logger})

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return s.ListenAndServe(egCtx, cfg.Host.Listen)
	})
	if cfg.Host.ImportDir != "" {
		eg.Go(func() error {
			return s.Watcher(cfg.Host.ImportDir).Watch(egCtx)
		})
	}
	eg.Go(func() error {
		exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
		signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(exit)
		select {
		case sig := <-exit:
			slog.Info("Signal caught", "sig", sig)
			cancel()
		case <-egCtx.Done():
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return fmt.Errorf("host failed: %w", err)
	}
	return nil
}
