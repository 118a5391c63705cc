package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/astromechza/studio/pkg/adapter"
	"github.com/astromechza/studio/pkg/config"
	"github.com/astromechza/studio/pkg/hostd"
	"github.com/astromechza/studio/pkg/identity"
	"github.com/astromechza/studio/pkg/model"
	"github.com/astromechza/studio/pkg/page"
	"github.com/astromechza/studio/pkg/renderer"
	"github.com/astromechza/studio/pkg/transport"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	flagSet := pflag.NewFlagSet("studio-renderer", pflag.ContinueOnError)
	config.RegisterFlags(flagSet, "log-level", "page", "payload", "projects-dir", "virtual-fs", "debug-addr", "title", "db", "latest-version", "update-url")
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

	location, err := url.Parse(cfg.Renderer.Page)
	if err != nil {
		return fmt.Errorf("failed to parse page url: %w", err)
	}
	payload := cfg.Renderer.Payload
	if payload == "" {
		if payload, err = page.Fetch(ctx, nil, location.String()); err != nil {
			slog.Warn("failed to fetch ui document, starting with defaults", "err", err)
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)

	// The shell runs the host in process, on the other end of a pipe.
	local, peer := transport.Pipe(transport.DefaultBuffer)
	if identity.Resolve(payload).Host == model.HostShell {
		st, err := hostd.OpenStore(ctx, cfg.Host.DB)
		if err != nil {
			return err
		}
		defer st.Close()
		var latest *model.Update
		if cfg.Host.LatestVersion != "" {
			latest = &model.Update{Version: cfg.Host.LatestVersion, URL: cfg.Host.UpdateURL}
		}
		host := hostd.New(hostd.Options{Store: st, Latest: latest, Title: cfg.Renderer.Title, Logger: logger.With("component", "host")})
		eg.Go(func() error {
			if err := host.Serve(egCtx, peer); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	r, err := renderer.Boot(ctx, renderer.Options{
		Payload:  payload,
		Location: location,
		Local:    local,
		Adapter: adapter.Options{
			ProjectsDir: cfg.Renderer.ProjectsDir,
			VirtualFS:   cfg.Renderer.VirtualFS,
		},
		Title:  cfg.Renderer.Title,
		Logger: logger,
	})
	if err != nil {
		cancel()
		_ = local.Close()
		_ = eg.Wait()
		return err
	}
	defer r.Close()

	eg.Go(func() error {
		if err := r.Run(egCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if cfg.Renderer.DebugAddr != "" {
		eg.Go(func() error {
			return r.ServeDebug(egCtx, cfg.Renderer.DebugAddr)
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

	// stdin cannot be interrupted, so the command reader is not part of the group
	go func() {
		if err := commands(egCtx, os.Stdin, os.Stdout, r); err != nil {
			slog.Error("command reader failed", "err", err)
		}
		cancel()
	}()

	err = eg.Wait()
	_ = local.Close()
	return err
}

// commands drives the renderer from line based input until quit or EOF.
func commands(ctx context.Context, in io.Reader, out io.Writer, r *renderer.Runtime) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "back":
			r.Dispatch(renderer.NavigateEvent{Delta: -1})
		case "forward":
			r.Dispatch(renderer.NavigateEvent{Delta: 1})
		case "focus":
			r.Dispatch(renderer.FocusEvent{})
		case "screenshot":
			r.Dispatch(renderer.ScreenshotEvent{})
		case "resize":
			if len(fields) != 3 {
				fmt.Fprintln(out, "usage: resize <width> <height>")
				continue
			}
			w, werr := strconv.Atoi(fields[1])
			h, herr := strconv.Atoi(fields[2])
			if werr != nil || herr != nil {
				fmt.Fprintln(out, "usage: resize <width> <height>")
				continue
			}
			r.Dispatch(renderer.ResizeEvent{Width: w, Height: h})
		case "state":
			snap, err := r.Diagnostics().Snapshot(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(snap); err != nil {
				return err
			}
		case "quit", "exit":
			return nil
		default:
			fmt.Fprintf(out, "unknown command %q, expected one of: back forward focus screenshot resize state quit\n", fields[0])
		}
	}
	return scanner.Err()
}
