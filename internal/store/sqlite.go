package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"annfeed/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ AnnouncementStore = (*SQLiteStore)(nil)

// SQLiteStore implements AnnouncementStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS announcements (
	id              TEXT PRIMARY KEY,
	trade_date      TEXT NOT NULL,
	trade_ts        INTEGER NOT NULL DEFAULT 0,
	trade_date_time TEXT NOT NULL DEFAULT '',
	company_name    TEXT NOT NULL DEFAULT '',
	headline        TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	nse_symbol      TEXT NOT NULL DEFAULT '',
	bse_code        TEXT NOT NULL DEFAULT '',
	isin            TEXT NOT NULL DEFAULT '',
	segment         TEXT NOT NULL DEFAULT '',
	links           TEXT NOT NULL DEFAULT '',
	received_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_announcements_date ON announcements(trade_date, trade_ts);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Write inserts records with INSERT OR IGNORE, so ids already present are
// left untouched.
func (s *SQLiteStore) Write(ctx context.Context, recs []domain.Announcement) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO announcements
		(id, trade_date, trade_ts, trade_date_time, company_name, headline, body,
		 nse_symbol, bse_code, isin, segment, links, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	received := nowMilli()
	added := 0
	for _, a := range recs {
		if a.ID == "" {
			continue
		}
		r := toRecord(a, received)
		res, err := stmt.ExecContext(ctx, r.ID, DateKey(a), r.Timestamp, r.TradeDateTime,
			r.CompanyName, r.Headline, r.Body, r.NSE, r.BSE, r.ISIN, r.Segment, r.Links, r.ReceivedAt)
		if err != nil {
			return 0, fmt.Errorf("inserting %s: %w", a.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

const selectColumns = `id, trade_ts, trade_date_time, company_name, headline, body,
	nse_symbol, bse_code, isin, segment, links, received_at`

// Read returns the records for a date, oldest first.
func (s *SQLiteStore) Read(ctx context.Context, date string) ([]domain.Announcement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM announcements WHERE trade_date = ? ORDER BY trade_ts, id`, date)
	if err != nil {
		return nil, err
	}
	return scanAnnouncements(rows)
}

// Dates lists the distinct archived dates.
func (s *SQLiteStore) Dates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT trade_date FROM announcements ORDER BY trade_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// SearchParams filters the archive. Dates are inclusive YYYY-MM-DD bounds.
type SearchParams struct {
	Text     string
	FromDate string
	ToDate   string
	Offset   int
	Limit    int
}

// Search returns one page of matching records, newest first, and the total
// number of matches. Text matches headline, company, and symbols.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]domain.Announcement, int, error) {
	var where []string
	var args []any
	if p.Text != "" {
		like := "%" + strings.ToLower(p.Text) + "%"
		where = append(where, `(lower(headline) LIKE ? OR lower(company_name) LIKE ? OR lower(nse_symbol) LIKE ? OR bse_code LIKE ?)`)
		args = append(args, like, like, like, like)
	}
	if p.FromDate != "" {
		where = append(where, `trade_date >= ?`)
		args = append(args, p.FromDate)
	}
	if p.ToDate != "" {
		where = append(where, `trade_date <= ?`)
		args = append(args, p.ToDate)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM announcements`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting matches: %w", err)
	}

	limit := p.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM announcements`+clause+` ORDER BY trade_ts DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, max(p.Offset, 0))...)
	if err != nil {
		return nil, 0, err
	}
	recs, err := scanAnnouncements(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

func scanAnnouncements(rows *sql.Rows) ([]domain.Announcement, error) {
	defer rows.Close()
	var out []domain.Announcement
	for rows.Next() {
		var r AnnouncementRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.TradeDateTime, &r.CompanyName, &r.Headline, &r.Body,
			&r.NSE, &r.BSE, &r.ISIN, &r.Segment, &r.Links, &r.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, r.announcement())
	}
	return out, rows.Err()
}
