package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"annfeed/internal/config"
	"annfeed/internal/domain"
	"annfeed/internal/feed"
	"annfeed/internal/live"
	"annfeed/internal/news"
	"annfeed/internal/store"
	"annfeed/internal/util"
)

func TestNewSourceBackends(t *testing.T) {
	log := util.Discard()

	cfg := config.Default()
	src, err := NewSource(cfg, log)
	if err != nil {
		t.Fatalf("rest: %v", err)
	}
	if _, ok := src.Source.(*feed.RESTSource); !ok || src.Client == nil {
		t.Errorf("rest source = %T, client %v", src.Source, src.Client)
	}
	if NewAttachments(cfg, src, log) == nil {
		t.Error("rest backend should provide attachments")
	}

	cfg.Service.Backend = "alpaca"
	src, err = NewSource(cfg, log)
	if err != nil {
		t.Fatalf("alpaca: %v", err)
	}
	if _, ok := src.Source.(*news.AlpacaSource); !ok {
		t.Errorf("alpaca source = %T", src.Source)
	}
	if NewAttachments(cfg, src, log) != nil {
		t.Error("alpaca backend has no attachments")
	}

	cfg.Service.Backend = "archive"
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "archive.db")
	src, err = NewSource(cfg, log)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, ok := src.Source.(*store.ArchiveSource); !ok {
		t.Errorf("archive source = %T", src.Source)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	cfg.Service.Backend = "carrier-pigeon"
	if _, err := NewSource(cfg, log); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestNewPushChannel(t *testing.T) {
	log := util.Discard()
	sink := live.SinkFunc(func(domain.Announcement) bool { return true })

	cfg := config.Default()
	if r, err := NewPushChannel(cfg, sink, nil, log); err != nil || r != nil {
		t.Errorf("websocket without URL = %v, %v; want nil, nil", r, err)
	}
	cfg.Live.WebSocketURL = "ws://localhost:1/ws"
	if r, _ := NewPushChannel(cfg, sink, nil, log); r == nil {
		t.Error("websocket runner missing")
	} else if _, ok := r.(*live.WSClient); !ok {
		t.Errorf("runner = %T", r)
	}

	cfg.Live.Transport = "grpc"
	cfg.Live.GRPCAddr = "localhost:1"
	if r, _ := NewPushChannel(cfg, sink, nil, log); r == nil {
		t.Error("grpc runner missing")
	} else if _, ok := r.(*live.Client); !ok {
		t.Errorf("runner = %T", r)
	}

	cfg.Live.Transport = "none"
	if r, err := NewPushChannel(cfg, sink, nil, log); err != nil || r != nil {
		t.Errorf("none = %v, %v", r, err)
	}
	cfg.Live.Transport = "smoke"
	if _, err := NewPushChannel(cfg, sink, nil, log); err == nil {
		t.Error("expected error for unknown transport")
	}
}

func TestNewReplayFromArchive(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	ctx := context.Background()

	st, err := OpenStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	st.Write(ctx, []domain.Announcement{
		{ID: "2", TradeDateTime: "2024-03-01T11:00:00", Headline: "later"},
		{ID: "1", TradeDateTime: "2024-03-01T10:00:00", Headline: "earlier"},
	})
	st.Close()

	var got []string
	sink := live.SinkFunc(func(a domain.Announcement) bool { got = append(got, a.ID); return true })
	r, err := NewReplay(ctx, cfg, "2024-03-01", time.Millisecond, sink, nil, util.Discard())
	if err != nil {
		t.Fatalf("NewReplay: %v", err)
	}
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 2 || got[0] != "1" {
		t.Errorf("replayed %v, want oldest first", got)
	}
}
