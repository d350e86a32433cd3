package store

import (
	"context"

	"annfeed/internal/feed"
)

// ArchiveSource serves feed queries from the SQLite archive, so the console
// can browse recorded days without the announcements service.
type ArchiveSource struct {
	db *SQLiteStore
}

// NewArchiveSource wraps a SQLite store.
func NewArchiveSource(db *SQLiteStore) *ArchiveSource {
	return &ArchiveSource{db: db}
}

// Fetch implements feed.Source.
func (s *ArchiveSource) Fetch(ctx context.Context, q feed.Query) (feed.Result, error) {
	page := max(q.Page, 1)
	recs, total, err := s.db.Search(ctx, SearchParams{
		Text:     q.Search,
		FromDate: q.FromDate,
		ToDate:   q.ToDate,
		Offset:   (page - 1) * q.PageSize,
		Limit:    q.PageSize,
	})
	if err != nil {
		return feed.Result{}, err
	}
	return feed.Result{
		Records:    recs,
		Total:      total,
		TotalPages: feed.TotalPages(total, q.PageSize),
		PageSize:   q.PageSize,
		Page:       page,
	}, nil
}
