package feed

import (
	"context"
	"fmt"
	"log/slog"

	"annfeed/internal/util"
	"annfeed/pkg/annfeed"
)

// Mode selects where pagination happens.
type Mode int

const (
	// ModeUnfiltered fetches a large batch and pages over groups locally.
	ModeUnfiltered Mode = iota
	// ModeFiltered lets the server paginate raw records.
	ModeFiltered
)

func (m Mode) String() string {
	if m == ModeFiltered {
		return "filtered"
	}
	return "unfiltered"
}

// Query is the user-visible view request. Dates are inclusive ISO dates
// (YYYY-MM-DD).
type Query struct {
	Page     int
	PageSize int
	Search   string
	FromDate string
	ToDate   string
}

// Filtered reports whether any filter is active.
func (q Query) Filtered() bool {
	return q.Search != "" || q.FromDate != "" || q.ToDate != ""
}

// Mode returns the pagination mode implied by the query.
func (q Query) Mode() Mode {
	if q.Filtered() {
		return ModeFiltered
	}
	return ModeUnfiltered
}

// Source issues one announcements request. Implementations normalize the
// response; a returned error means nothing usable came back.
type Source interface {
	Fetch(ctx context.Context, q Query) (Result, error)
}

// Lister is the part of the REST client the feed needs.
type Lister interface {
	ListAnnouncements(ctx context.Context, p annfeed.ListParams) ([]byte, error)
}

// RESTSource fetches from the announcements service and normalizes whatever
// shape it answers with.
type RESTSource struct {
	client Lister
	log    *slog.Logger
}

// NewRESTSource wraps a REST client.
func NewRESTSource(client Lister, log *slog.Logger) *RESTSource {
	if log == nil {
		log = util.Discard()
	}
	return &RESTSource{client: client, log: log}
}

// Fetch implements Source.
func (s *RESTSource) Fetch(ctx context.Context, q Query) (Result, error) {
	body, err := s.client.ListAnnouncements(ctx, annfeed.ListParams{
		Page:     q.Page,
		PageSize: q.PageSize,
		Search:   q.Search,
		FromDate: q.FromDate,
		ToDate:   q.ToDate,
	})
	if err != nil {
		return Result{}, fmt.Errorf("list announcements: %w", err)
	}

	res, shape, dropped := Normalize(body)
	if shape == ShapeEmpty {
		s.log.Warn("unrecognised announcements response", "bytes", len(body))
	}
	if dropped > 0 {
		s.log.Warn("dropped malformed announcements", "shape", shape.String(), "dropped", dropped, "kept", len(res.Records))
	}
	return res, nil
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, q Query) (Result, error)

// Fetch implements Source.
func (f SourceFunc) Fetch(ctx context.Context, q Query) (Result, error) {
	return f(ctx, q)
}
