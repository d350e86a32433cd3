package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"annfeed/internal/app"
	"annfeed/internal/config"
	"annfeed/internal/domain"
	"annfeed/internal/feed"
	"annfeed/internal/store"
	"annfeed/internal/util"
)

// buffer collects pushed records between flushes.
type buffer struct {
	mu   sync.Mutex
	recs []domain.Announcement
}

func (b *buffer) Merge(rec domain.Announcement) bool {
	if rec.ID == "" {
		return false
	}
	b.mu.Lock()
	b.recs = append(b.recs, rec)
	b.mu.Unlock()
	return true
}

func (b *buffer) drain() []domain.Announcement {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.recs
	b.recs = nil
	return out
}

func main() {
	cfgPath := "config/annfeed.yaml"
	if p := os.Getenv("ANNFEED_CONFIG"); p != "" {
		cfgPath = p
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the YAML config file")
	flushEvery := flag.Duration("flush", 30*time.Second, "interval between archive writes")
	flag.Parse()

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger := app.Logger(cfg, os.Stdout)
	util.SetDefault(logger)

	st, err := app.OpenStore(cfg)
	if err != nil {
		log.Fatalf("opening archive: %v", err)
	}
	defer st.Close()

	buf := &buffer{}
	push, err := app.NewPushChannel(cfg, buf, func(s feed.LiveStatus) {
		logger.Info("push channel status", "status", string(s))
	}, logger)
	if err != nil {
		log.Fatalf("creating push channel: %v", err)
	}
	if push == nil {
		log.Fatalf("no push channel configured (live.transport / live.websocket_url / live.grpc_addr)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return push.Run(gctx) })

	flusher := util.NewRepeater(func() time.Duration { return *flushEvery }, func(ctx context.Context) {
		flush(ctx, st, buf, logger)
	})
	flusher.Start(gctx)

	logger.Info("recording announcements", "backend", cfg.Storage.Backend, "flush", *flushEvery)
	if err := g.Wait(); err != nil {
		logger.Error("push channel stopped", "error", err)
	}
	flusher.Stop()

	// Final flush with a fresh context; the run context is already done.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	flush(shutdownCtx, st, buf, logger)
}

func flush(ctx context.Context, st store.AnnouncementStore, buf *buffer, logger *slog.Logger) {
	recs := buf.drain()
	if len(recs) == 0 {
		return
	}
	added, err := st.Write(ctx, recs)
	if err != nil {
		logger.Error("archive write failed", "records", len(recs), "error", err)
		// Keep them for the next flush.
		for _, r := range recs {
			buf.Merge(r)
		}
		return
	}
	logger.Info("archived announcements", "received", len(recs), "added", added)
}
