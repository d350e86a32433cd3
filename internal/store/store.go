// Package store archives announcements by trading date, either as daily
// Parquet files or in a SQLite table.
package store

import (
	"context"
	"fmt"
	"time"

	"annfeed/internal/domain"
)

// UndatedKey is the archive date for records without a parseable timestamp.
const UndatedKey = "undated"

// AnnouncementStore persists and retrieves announcements.
type AnnouncementStore interface {
	// Write stores records, ignoring ids already present. It returns the
	// number of records that were new.
	Write(ctx context.Context, recs []domain.Announcement) (int, error)

	// Read returns the records archived for a date (YYYY-MM-DD), oldest first.
	Read(ctx context.Context, date string) ([]domain.Announcement, error)

	// Dates lists archived dates in ascending order.
	Dates(ctx context.Context) ([]string, error)

	// Close releases resources held by the store.
	Close() error
}

// DateKey returns the IST trading date of a record, or UndatedKey.
func DateKey(a domain.Announcement) string {
	if t, ok := a.Time(); ok {
		return t.In(domain.IST).Format("2006-01-02")
	}
	return UndatedKey
}

// Open returns the store selected by backend ("parquet" or "sqlite").
func Open(backend, dataDir, sqlitePath string) (AnnouncementStore, error) {
	switch backend {
	case "", "parquet":
		return NewParquetStore(dataDir), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

func unixMilli(a domain.Announcement) int64 {
	if t, ok := a.Time(); ok {
		return t.UnixMilli()
	}
	return 0
}

func nowMilli() int64 {
	return time.Now().UnixMilli()
}
