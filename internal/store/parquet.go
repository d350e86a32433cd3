package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"annfeed/internal/domain"
)

// Compile-time interface check.
var _ AnnouncementStore = (*ParquetStore)(nil)

// ParquetStore implements AnnouncementStore with one Parquet file per date.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record type (on-disk schema)
// ---------------------------------------------------------------------------

// AnnouncementRecord is the Parquet schema for archived announcements.
type AnnouncementRecord struct {
	ID            string `parquet:"id"`
	Timestamp     int64  `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, 0 when unknown
	TradeDateTime string `parquet:"trade_date_time"`
	CompanyName   string `parquet:"company_name"`
	Headline      string `parquet:"headline"`
	Body          string `parquet:"body"`
	NSE           string `parquet:"nse_symbol"`
	BSE           string `parquet:"bse_code"`
	ISIN          string `parquet:"isin"`
	Segment       string `parquet:"segment"`
	Links         string `parquet:"links"` // JSON array of {title, url}
	ReceivedAt    int64  `parquet:"received_at,timestamp(millisecond)"`
}

func toRecord(a domain.Announcement, receivedAt int64) AnnouncementRecord {
	links := ""
	if len(a.Links) > 0 {
		if b, err := json.Marshal(a.Links); err == nil {
			links = string(b)
		}
	}
	return AnnouncementRecord{
		ID:            a.ID,
		Timestamp:     unixMilli(a),
		TradeDateTime: a.TradeDateTime,
		CompanyName:   a.CompanyName,
		Headline:      a.Headline,
		Body:          a.Body,
		NSE:           a.Symbols.NSE,
		BSE:           a.Symbols.BSE,
		ISIN:          a.Symbols.ISIN,
		Segment:       a.Symbols.Segment,
		Links:         links,
		ReceivedAt:    receivedAt,
	}
}

func (r AnnouncementRecord) announcement() domain.Announcement {
	a := domain.Announcement{
		ID:            r.ID,
		TradeDateTime: r.TradeDateTime,
		CompanyName:   r.CompanyName,
		Headline:      r.Headline,
		Body:          r.Body,
		Symbols:       domain.Symbols{NSE: r.NSE, BSE: r.BSE, ISIN: r.ISIN, Segment: r.Segment},
	}
	if r.Links != "" {
		_ = json.Unmarshal([]byte(r.Links), &a.Links)
	}
	return a
}

// ---------------------------------------------------------------------------
// AnnouncementStore implementation
// ---------------------------------------------------------------------------

// Write merges records into per-date files at:
//
//	<DataDir>/announcements/<YYYY-MM-DD>.parquet
func (s *ParquetStore) Write(_ context.Context, recs []domain.Announcement) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	received := nowMilli()
	groups := make(map[string][]AnnouncementRecord)
	for _, a := range recs {
		if a.ID == "" {
			continue
		}
		k := DateKey(a)
		groups[k] = append(groups[k], toRecord(a, received))
	}

	added := 0
	for date, records := range groups {
		path := s.announcementPath(date)

		// Read existing records to merge.
		existing, _ := readParquetFile[AnnouncementRecord](path)
		merged, n := mergeAnnouncementRecords(existing, records)
		if n == 0 {
			continue
		}
		if err := writeParquetFile(path, merged); err != nil {
			return added, fmt.Errorf("writing announcements for %s: %w", date, err)
		}
		added += n
	}
	return added, nil
}

// Read returns the records for a date, oldest first. A missing file yields
// no records and no error.
func (s *ParquetStore) Read(_ context.Context, date string) ([]domain.Announcement, error) {
	path := s.announcementPath(date)
	records, err := readParquetFile[AnnouncementRecord](path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	out := make([]domain.Announcement, len(records))
	for i, r := range records {
		out[i] = r.announcement()
	}
	return out, nil
}

// Dates lists the dates that have an archive file.
func (s *ParquetStore) Dates(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "announcements"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dates []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		dates = append(dates, strings.TrimSuffix(e.Name(), ".parquet"))
	}
	sort.Strings(dates)
	return dates, nil
}

// Close is a no-op; files are closed after every operation.
func (s *ParquetStore) Close() error { return nil }

// announcementPath returns the filesystem path for a date's Parquet file.
// Layout: <dataDir>/announcements/<YYYY-MM-DD>.parquet
func (s *ParquetStore) announcementPath(date string) string {
	return filepath.Join(s.DataDir, "announcements", date+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeAnnouncementRecords deduplicates by id, keeping the first copy
// archived. Results are sorted by timestamp, then id. The second result is
// the number of incoming records that were new.
func mergeAnnouncementRecords(existing, incoming []AnnouncementRecord) ([]AnnouncementRecord, int) {
	seen := make(map[string]bool, len(existing)+len(incoming))
	merged := make([]AnnouncementRecord, 0, len(existing)+len(incoming))
	for _, r := range existing {
		if !seen[r.ID] {
			seen[r.ID] = true
			merged = append(merged, r)
		}
	}
	added := 0
	for _, r := range incoming {
		if !seen[r.ID] {
			seen[r.ID] = true
			merged = append(merged, r)
			added++
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Timestamp != merged[j].Timestamp {
			return merged[i].Timestamp < merged[j].Timestamp
		}
		return merged[i].ID < merged[j].ID
	})
	return merged, added
}
