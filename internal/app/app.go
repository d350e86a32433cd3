// Package app assembles the components selected by a Config: the feed
// source, the push channel, the archive, and the attachment manager. The
// commands under cmd/ share it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"annfeed/internal/attach"
	"annfeed/internal/config"
	"annfeed/internal/feed"
	"annfeed/internal/live"
	"annfeed/internal/news"
	"annfeed/internal/store"
	"annfeed/internal/util"
	"annfeed/pkg/annfeed"
)

// Runner is a long-lived loop that stops when its context ends.
type Runner interface {
	Run(ctx context.Context) error
}

// Source holds the feed source selected by the service backend.
type Source struct {
	feed.Source
	// Client is set for the REST backend and also serves attachments.
	Client *annfeed.Client
	closer func() error
}

// Close releases the archive when the archive backend is in use.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// NewSource builds the source for cfg.Service.Backend: "rest" (default),
// "alpaca", or "archive" (the SQLite archive).
func NewSource(cfg *config.Config, log *slog.Logger) (*Source, error) {
	switch cfg.Service.Backend {
	case "", "rest":
		client := NewClient(cfg)
		return &Source{Source: feed.NewRESTSource(client, log), Client: client}, nil
	case "alpaca":
		mdc, ac := news.NewClients(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, cfg.Alpaca.DataURL)
		src := news.NewAlpacaSource(mdc, ac, news.Options{
			RateLimitPerMin: cfg.Alpaca.RateLimitPerMin,
			Logger:          log,
		})
		return &Source{Source: src}, nil
	case "archive":
		db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		return &Source{Source: store.NewArchiveSource(db), closer: db.Close}, nil
	default:
		return nil, fmt.Errorf("unknown service backend %q", cfg.Service.Backend)
	}
}

// NewClient creates the REST client from the service section.
func NewClient(cfg *config.Config) *annfeed.Client {
	return annfeed.NewClient(cfg.Service.BaseURL, annfeed.Options{
		Token:         cfg.Service.Token,
		Style:         cfg.Service.PaginationStyle,
		Timeout:       cfg.Service.Timeout,
		RatePerSecond: cfg.Service.RatePerSecond,
		MaxRetries:    2,
	})
}

// NewFeed creates a Feed over src with the configured page size.
func NewFeed(cfg *config.Config, src feed.Source, log *slog.Logger) *feed.Feed {
	return feed.New(src, feed.Options{
		PageSize:      cfg.Feed.PageSize,
		UnfilteredCap: cfg.Service.UnfilteredCap,
		Logger:        log,
	})
}

// NewPushChannel returns the push client for cfg.Live.Transport, or nil when
// the transport is "none" or no endpoint is configured.
func NewPushChannel(cfg *config.Config, sink live.Sink, status live.StatusFunc, log *slog.Logger) (Runner, error) {
	switch cfg.Live.Transport {
	case "none":
		return nil, nil
	case "", "websocket":
		if cfg.Live.WebSocketURL == "" {
			return nil, nil
		}
		return live.NewWSClient(cfg.Live.WebSocketURL, sink, live.WSOptions{
			BackoffBase: cfg.Live.BackoffBase,
			BackoffMax:  cfg.Live.BackoffMax,
			Status:      status,
			Logger:      log,
		}), nil
	case "grpc":
		if cfg.Live.GRPCAddr == "" {
			return nil, nil
		}
		return live.NewClient(cfg.Live.GRPCAddr, sink, live.GRPCOptions{
			BackoffBase: cfg.Live.BackoffBase,
			BackoffMax:  cfg.Live.BackoffMax,
			Status:      status,
			Logger:      log,
		}), nil
	default:
		return nil, fmt.Errorf("unknown push transport %q", cfg.Live.Transport)
	}
}

// NewReplay loads an archived date and returns a Runner that pushes it at
// the given pace.
func NewReplay(ctx context.Context, cfg *config.Config, date string, pace time.Duration, sink live.Sink, status live.StatusFunc, log *slog.Logger) (Runner, error) {
	st, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	recs, err := st.Read(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("reading archive for %s: %w", date, err)
	}
	log.Info("replaying archive", "date", date, "records", len(recs))
	return live.NewReplay(recs, pace, sink, status, log), nil
}

// OpenStore opens the configured archive.
func OpenStore(cfg *config.Config) (store.AnnouncementStore, error) {
	return store.Open(cfg.Storage.Backend, cfg.Storage.DataDir, cfg.Storage.SQLitePath)
}

// NewAttachments creates the attachment manager, or nil when the source has
// no attachment service.
func NewAttachments(cfg *config.Config, src *Source, log *slog.Logger) *attach.Manager {
	if src.Client == nil {
		return nil
	}
	return attach.NewManager(src.Client, attach.Options{
		Dir:    cfg.Attachments.DownloadDir,
		Opener: cfg.Attachments.Opener,
		Logger: log,
	})
}

// OpenLogFile opens a dated log file under the OS temp dir for tools whose
// terminal belongs to a UI.
func OpenLogFile(name string) (*os.File, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s.log", name, time.Now().Format("2006-01-02")))
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Logger builds the configured logger writing to w.
func Logger(cfg *config.Config, w io.Writer) *slog.Logger {
	return util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, w)
}
