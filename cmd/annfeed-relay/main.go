package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"annfeed/internal/app"
	"annfeed/internal/config"
	"annfeed/internal/feed"
	"annfeed/internal/httpapi"
	"annfeed/internal/live"
	"annfeed/internal/store"
	"annfeed/internal/util"
	"annfeed/pkg/annfeed"
)

func main() {
	cfgPath := "config/annfeed.yaml"
	if p := os.Getenv("ANNFEED_CONFIG"); p != "" {
		cfgPath = p
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the YAML config file")
	seed := flag.Bool("seed", true, "seed the snapshot from the announcements service at startup")
	serveArchive := flag.Bool("archive", false, "serve the configured archive under /api/dates and /api/archive")
	flag.Parse()

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger := app.Logger(cfg, os.Stdout)
	util.SetDefault(logger)

	if cfg.Relay.UpstreamURL == "" {
		log.Fatalf("relay.upstream_url (or ANNFEED_UPSTREAM_URL) is required")
	}

	hub := live.NewHub(cfg.Relay.SnapshotSize, cfg.Relay.SeenLimit)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *seed {
		seedHub(ctx, cfg, hub, logger)
	}

	var archive store.AnnouncementStore
	if *serveArchive {
		archive, err = app.OpenStore(cfg)
		if err != nil {
			log.Fatalf("opening archive: %v", err)
		}
		defer archive.Close()
	}

	rs := httpapi.NewRelayServer(hub, httpapi.Options{Archive: archive, Logger: logger})
	upstream := live.NewWSClient(cfg.Relay.UpstreamURL, hub, live.WSOptions{
		BackoffBase: cfg.Live.BackoffBase,
		BackoffMax:  cfg.Live.BackoffMax,
		Status:      rs.SetUpstreamStatus,
		Logger:      logger,
	})

	grpcServer := grpc.NewServer()
	live.NewServer(hub, logger).RegisterGRPC(grpcServer)
	httpServer := &http.Server{
		Addr:              cfg.Relay.HTTPAddr,
		Handler:           rs.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return upstream.Run(gctx)
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.Relay.GRPCAddr)
		if err != nil {
			return err
		}
		logger.Info("gRPC relay listening", "addr", cfg.Relay.GRPCAddr)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info("HTTP relay listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down relay")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("relay stopped", "error", err)
		os.Exit(1)
	}
}

// seedHub loads the latest page from the announcements service into the
// snapshot so early subscribers do not start empty.
func seedHub(ctx context.Context, cfg *config.Config, hub *live.Hub, logger *slog.Logger) {
	client := app.NewClient(cfg)

	var body []byte
	err := util.Retry(ctx, 3, time.Second, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, cfg.Service.Timeout)
		defer cancel()
		var err error
		body, err = client.ListAnnouncements(reqCtx, annfeed.ListParams{Page: 1, PageSize: cfg.Relay.SnapshotSize})
		return err
	})
	if err != nil {
		logger.Warn("seeding snapshot failed", "error", err)
		return
	}
	res, shape, dropped := feed.Normalize(body)
	// Oldest first, matching delivery order.
	recs := res.Records
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	added := hub.AddBatch(recs)
	logger.Info("snapshot seeded", "shape", shape.String(), "records", added, "dropped", dropped)
}
