package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"annfeed/internal/app"
	"annfeed/internal/config"
	"annfeed/internal/console"
	"annfeed/internal/domain"
	"annfeed/internal/feed"
	"annfeed/internal/live"
	"annfeed/internal/util"
)

func main() {
	cfgPath := "config/annfeed.yaml"
	if p := os.Getenv("ANNFEED_CONFIG"); p != "" {
		cfgPath = p
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the YAML config file")
	replay := flag.String("replay", "", "replay an archived date (YYYY-MM-DD) instead of the push channel")
	pace := flag.Duration("pace", 2*time.Second, "delay between replayed records")
	flag.Parse()

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// The terminal belongs to the UI, so logs go to a file.
	logFile, err := app.OpenLogFile("annfeed-console")
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer logFile.Close()
	logger := app.Logger(cfg, logFile)
	util.SetDefault(logger)

	src, err := app.NewSource(cfg, logger)
	if err != nil {
		log.Fatalf("creating source: %v", err)
	}
	defer src.Close()

	f := app.NewFeed(cfg, src, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := console.New(ctx, console.Options{
		Feed:       f,
		Attach:     app.NewAttachments(cfg, src, logger),
		ClampLines: cfg.Feed.ClampLines,
		Debounce:   cfg.Feed.ResizeDebounce,
		Title:      "Announcements",
		Logger:     logger,
	})

	sink := live.SinkFunc(func(rec domain.Announcement) bool {
		merged := f.Merge(rec)
		if merged {
			m.Notify()
		}
		return merged
	})
	status := live.StatusFunc(func(s feed.LiveStatus) {
		f.SetLiveStatus(s)
		m.Notify()
		logger.Info("push channel status", "status", string(s))
	})

	var push app.Runner
	if *replay != "" {
		push, err = app.NewReplay(ctx, cfg, *replay, *pace, sink, status, logger)
	} else {
		push, err = app.NewPushChannel(cfg, sink, status, logger)
	}
	if err != nil {
		log.Fatalf("creating push channel: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if push != nil {
		g.Go(func() error { return push.Run(gctx) })
	}
	poller := feed.NewPoller(f, cfg.Feed.MarketPollInterval, cfg.Feed.PollInterval, logger)
	poller.Start(gctx)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, runErr := p.Run()

	cancel()
	poller.Stop()
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("push channel stopped", "error", err)
	}
	logger.Info("console exited", "poll_skipped", poller.Skipped())
	if runErr != nil && runErr != tea.ErrProgramKilled {
		fmt.Fprintf(os.Stderr, "console error: %v\n", runErr)
		os.Exit(1)
	}
}
