// Package httpapi serves the relay's HTTP surface: health and status, a
// read-only announcements listing over the relay snapshot, the archive, and
// a WebSocket fan-out of live records.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"annfeed/internal/dashboard"
	"annfeed/internal/domain"
	"annfeed/internal/feed"
	"annfeed/internal/live"
	"annfeed/internal/store"
	"annfeed/internal/util"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingInterval    = 30 * time.Second
	subBuffer       = 256
	defaultPageSize = 20
	maxPageSize     = 500
)

// Options configures a RelayServer.
type Options struct {
	Archive store.AnnouncementStore // nil disables the archive routes
	Logger  *slog.Logger
}

// RelayServer serves the relay HTTP API on top of a live.Hub.
type RelayServer struct {
	hub      *live.Hub
	archive  store.AnnouncementStore
	log      *slog.Logger
	upgrader websocket.Upgrader
	started  time.Time

	mu       sync.Mutex
	upstream feed.LiveStatus
}

// NewRelayServer creates a relay server.
func NewRelayServer(hub *live.Hub, opts Options) *RelayServer {
	if opts.Logger == nil {
		opts.Logger = util.Discard()
	}
	return &RelayServer{
		hub:     hub,
		archive: opts.Archive,
		log:     opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		started:  time.Now(),
		upstream: feed.LiveDisconnected,
	}
}

// SetUpstreamStatus records the upstream connection state. It has the
// live.StatusFunc signature.
func (s *RelayServer) SetUpstreamStatus(st feed.LiveStatus) {
	s.mu.Lock()
	s.upstream = st
	s.mu.Unlock()
}

// Handler returns the router with logging, recovery, and CORS middleware.
func (s *RelayServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWS)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/announcements", s.handleList)
		r.Get("/announcements/{id}/attachment", s.handleAttachment)
		if s.archive != nil {
			r.Get("/dates", s.handleDates)
			r.Get("/archive/{date}", s.handleArchive)
		}
	})
	return r
}

func (s *RelayServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *RelayServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n"))
}

func (s *RelayServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	recent, seen, subs := s.hub.Counts()
	s.mu.Lock()
	upstream := s.upstream
	s.mu.Unlock()
	writeJSON(w, StatusResponse{
		Upstream:    string(upstream),
		Recent:      recent,
		Seen:        seen,
		Subscribers: subs,
		StartedAt:   dashboard.FormatTimestamp(s.started),
	})
}

// handleList serves the snapshot newest first, accepting both page/page_size
// and offset/limit parameters plus search and date filters.
func (s *RelayServer) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size := intParam(q.Get("page_size"), 0)
	if size == 0 {
		size = intParam(q.Get("limit"), defaultPageSize)
	}
	size = min(max(size, 1), maxPageSize)
	page := intParam(q.Get("page"), 0)
	if page == 0 {
		page = intParam(q.Get("offset"), 0)/size + 1
	}

	from, to := q.Get("from_date"), q.Get("to_date")
	search := strings.ToLower(strings.TrimSpace(q.Get("search")))

	snap := s.hub.Snapshot()
	var matched []domain.Announcement
	for i := len(snap) - 1; i >= 0; i-- {
		if matches(&snap[i], search, from, to) {
			matched = append(matched, snap[i])
		}
	}

	recs := feed.PageSlice(matched, page, size)
	if recs == nil {
		recs = []domain.Announcement{}
	}
	writeJSON(w, ListResponse{
		Announcements: recs,
		Total:         len(matched),
		TotalPages:    feed.TotalPages(len(matched), size),
		PageSize:      size,
		Page:          page,
	})
}

func (s *RelayServer) handleAttachment(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "attachments are not relayed")
}

func (s *RelayServer) handleDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.archive.Dates(r.Context())
	if err != nil {
		s.log.Error("listing archive dates", "error", err)
		writeError(w, http.StatusInternalServerError, "listing archive dates failed")
		return
	}
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, DatesResponse{Dates: dates})
}

func (s *RelayServer) handleArchive(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := time.Parse("2006-01-02", date); err != nil && date != store.UndatedKey {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	recs, err := s.archive.Read(r.Context(), date)
	if err != nil {
		s.log.Error("reading archive", "date", date, "error", err)
		writeError(w, http.StatusInternalServerError, "reading archive failed")
		return
	}
	if recs == nil {
		recs = []domain.Announcement{}
	}
	writeJSON(w, ListResponse{
		Announcements: recs,
		Total:         len(recs),
		TotalPages:    1,
		PageSize:      len(recs),
		Page:          1,
	})
}

// handleWS upgrades the connection and streams the snapshot followed by live
// records, one JSON object per text frame.
func (s *RelayServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Subscribe before taking the snapshot so nothing falls in between.
	subID, ch := s.hub.Subscribe(subBuffer)
	defer s.hub.Unsubscribe(subID)
	snap := s.hub.Snapshot()
	sent := make(map[string]struct{}, len(snap))

	s.log.Info("websocket subscriber connected", "remote", r.RemoteAddr, "snapshot", len(snap))
	defer s.log.Info("websocket subscriber disconnected", "remote", r.RemoteAddr)

	// Reader: handles pongs and notices the peer going away.
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, rec := range snap {
		if err := writeRecord(conn, rec); err != nil {
			return
		}
		sent[rec.ID] = struct{}{}
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			if _, dup := sent[rec.ID]; dup {
				delete(sent, rec.ID)
				continue
			}
			if err := writeRecord(conn, rec); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeRecord(conn *websocket.Conn, rec domain.Announcement) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(rec)
}

func matches(a *domain.Announcement, search, from, to string) bool {
	if search != "" {
		hay := strings.ToLower(a.Headline + " " + a.CompanyName + " " + a.Symbols.NSE + " " + a.Symbols.BSE)
		if !strings.Contains(hay, search) {
			return false
		}
	}
	if from == "" && to == "" {
		return true
	}
	t, ok := a.Time()
	if !ok {
		return false
	}
	day := t.In(domain.IST).Format("2006-01-02")
	return (from == "" || day >= from) && (to == "" || day <= to)
}

func intParam(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
