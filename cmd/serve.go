package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/TFMV/forcegraph/ingest"
	"github.com/TFMV/forcegraph/models"
	"github.com/TFMV/forcegraph/server"
	"github.com/TFMV/forcegraph/store"
	"github.com/TFMV/forcegraph/surface"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// fileGraphID is the hub id of the graph served from --data.
const fileGraphID = "file"

type serveFlags struct {
	addr  string
	db    string
	seed  bool
	data  string
	watch bool
}

func serveCmd(a *app) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve graphs over HTTP with a live frame stream",
		Example: `  forcegraph serve --addr :8080 --db graph.db --seed
  forcegraph serve --data graph.json --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a, f)
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&f.db, "db", "", "SQLite database path (default from config)")
	cmd.Flags().BoolVar(&f.seed, "seed", false, "Load the demo conversations into an empty database")
	cmd.Flags().StringVar(&f.data, "data", "", "Also serve this graph file as graph \""+fileGraphID+"\"")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "Reload --data when the file changes")
	return cmd
}

func runServe(ctx context.Context, a *app, f *serveFlags) error {
	cfg := a.cfg
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if f.db != "" {
		cfg.Store.Path = f.db
	}

	st, err := store.Open(ctx, cfg.Store.Path, a.logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if f.seed {
		if _, err := st.Seed(ctx, false); err != nil {
			return err
		}
	}

	hub := server.NewHub(st, a.logger, cfg.SurfaceOptions()...).
		WithBreaker(surface.DefaultBreakerConfig("store"))
	defer hub.Close()

	if f.data != "" {
		name := filepath.Base(f.data)
		data, err := ingest.ProcessFile(f.data)
		if err != nil {
			return err
		}
		if _, err := hub.Attach(ctx, fileGraphID, name, data); err != nil {
			return err
		}
	}

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	}, hub, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	if f.data != "" && f.watch {
		name := filepath.Base(f.data)
		w, err := ingest.NewWatcher(f.data, ingest.DefaultDebounce, func(data models.GraphData) {
			if _, err := hub.Attach(gctx, fileGraphID, name, data); err != nil {
				a.logger.Warn("Failed to apply reloaded graph", zap.Error(err))
			}
		}, a.logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			w.Stop()
			return nil
		})
	}
	g.Go(func() error {
		return srv.Run(gctx)
	})
	return g.Wait()
}
