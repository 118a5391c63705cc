package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/astromechza/studio/pkg/adapter"
	"github.com/astromechza/studio/pkg/hostd"
	"github.com/astromechza/studio/pkg/model"
	"github.com/astromechza/studio/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	flagSet := pflag.NewFlagSet("studio-debug", pflag.ContinueOnError)
	dbVar := flagSet.String("db", "", "read the project from this host database instead of a file")
	svgVar := flagSet.String("svg", "", "render the change graph to this svg file")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("expected one position argument: the project file, or the project id with --db")
	}

	p, err := loadProject(context.Background(), *dbVar, flagSet.Arg(0))
	if err != nil {
		return err
	}
	doc := p.Doc()
	slog.Info("loaded project", "id", p.ID(), "name", p.Name())
	slog.Info("loaded doc", "contents", doc.RootMap().GoString())
	slog.Info("loaded heads", "heads", p.Heads())

	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}
	for i, change := range changes {
		slog.Info("change", "i", fmt.Sprintf("%4d", i), "hash", change.Hash(), "actor", change.ActorID(), "message", change.Message(), "dep", change.Dependencies())
	}

	if *svgVar != "" {
		if err := viz.RenderToFile(doc, []interface{}{"name"}, *svgVar); err != nil {
			return err
		}
		slog.Info("rendered", "path", "file://"+*svgVar)
	}
	return nil
}

func loadProject(ctx context.Context, dsn, arg string) (*model.Project, error) {
	if dsn != "" {
		st, err := hostd.OpenStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		return st.Get(ctx, arg)
	}
	buff, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	id := strings.TrimSuffix(filepath.Base(arg), adapter.ProjectExt)
	return model.LoadProject(id, buff)
}
