// Package feed reconciles the announcement feed: it fetches pages from the
// announcements service, merges live pushes into the current view, groups
// near-duplicate records, and derives the visible page.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"annfeed/internal/domain"
	"annfeed/internal/util"
)

var (
	// ErrStale is returned by Load when a newer load was issued before the
	// response arrived. The response is discarded.
	ErrStale = errors.New("feed: response superseded by a newer request")
	// ErrOutOfRange marks a page request outside 1..TotalPages.
	ErrOutOfRange = errors.New("feed: page out of range")
)

// LiveStatus is the state of the push channel as shown to the user.
type LiveStatus string

const (
	LiveDisconnected LiveStatus = "disconnected"
	LiveConnecting   LiveStatus = "connecting"
	LiveConnected    LiveStatus = "connected"
)

// Options configures a Feed.
type Options struct {
	PageSize      int // default 20
	UnfilteredCap int // records requested in unfiltered mode, default 1000
	Logger        *slog.Logger
}

// Feed owns the canonical record list and the view state derived from it.
// Records are replaced only by Load and extended only by Merge.
type Feed struct {
	src Source
	log *slog.Logger
	cap int

	mu         sync.Mutex
	seq        uint64
	query      Query
	records    []domain.Announcement // most recent first
	ids        map[string]struct{}   // every id loaded or merged since the last load
	total      int
	totalPages int                   // server-reported, filtered mode only
	merged     []domain.Announcement // merged while a load was in flight, oldest first
	loading    bool
	loaded     bool
	err        error
	live       LiveStatus
}

// New creates a Feed reading from src.
func New(src Source, opts Options) *Feed {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.UnfilteredCap <= 0 {
		opts.UnfilteredCap = 1000
	}
	if opts.Logger == nil {
		opts.Logger = util.Discard()
	}
	return &Feed{
		src:   src,
		log:   opts.Logger,
		cap:   opts.UnfilteredCap,
		query: Query{Page: 1, PageSize: opts.PageSize},
		ids:   make(map[string]struct{}),
		live:  LiveDisconnected,
	}
}

// Load issues a fetch for q and, if no newer load was issued meanwhile,
// replaces the records with the response. The query is committed when the
// request is issued. On failure the previous records are kept and the error
// is stored in the error slot.
func (f *Feed) Load(ctx context.Context, q Query) error {
	f.mu.Lock()
	if q.PageSize <= 0 {
		q.PageSize = f.query.PageSize
	}
	if q.Page < 1 {
		q.Page = 1
	}
	f.seq++
	seq := f.seq
	f.query = q
	f.loading = true
	f.mu.Unlock()

	req := q
	if !q.Filtered() {
		req = Query{Page: 1, PageSize: f.cap}
	}
	res, err := f.src.Fetch(ctx, req)

	f.mu.Lock()
	defer f.mu.Unlock()
	if seq != f.seq {
		f.log.Debug("discarding stale response", "seq", seq, "latest", f.seq)
		return ErrStale
	}
	f.loading = false
	if err != nil {
		f.merged = nil
		f.err = err
		return fmt.Errorf("load announcements: %w", err)
	}

	f.records = f.records[:0:0]
	f.ids = make(map[string]struct{}, len(res.Records))
	for _, rec := range res.Records {
		if _, dup := f.ids[rec.ID]; dup {
			continue
		}
		f.ids[rec.ID] = struct{}{}
		f.records = append(f.records, rec)
	}
	f.total = res.Total
	if f.total < len(f.records) && !q.Filtered() {
		f.total = len(f.records)
	}
	if !q.Filtered() {
		f.reapplyMergedLocked()
	}
	f.merged = nil
	f.totalPages = res.TotalPages
	f.err = nil
	f.loaded = true

	// A shrunken working set may leave the local page past the end.
	if tp := f.totalPagesLocked(); !q.Filtered() && f.query.Page > tp {
		f.query.Page = tp
	}
	return nil
}

// Search starts a filtered view at page 1. Empty arguments clear the
// corresponding filter; all empty returns to the unfiltered view.
func (f *Feed) Search(ctx context.Context, text, fromDate, toDate string) error {
	return f.Load(ctx, Query{Page: 1, Search: text, FromDate: fromDate, ToDate: toDate})
}

// ClearFilters returns to the unfiltered first page.
func (f *Feed) ClearFilters(ctx context.Context) error {
	return f.Load(ctx, Query{Page: 1})
}

// Refresh reloads the current query.
func (f *Feed) Refresh(ctx context.Context) error {
	f.mu.Lock()
	q := f.query
	f.mu.Unlock()
	return f.Load(ctx, q)
}

// SetPage navigates to page n. Requests outside 1..TotalPages are ignored and
// report false. In unfiltered mode the page is re-sliced locally; in filtered
// mode the page is fetched, with any failure landing in the error slot.
func (f *Feed) SetPage(ctx context.Context, n int) bool {
	f.mu.Lock()
	if err := f.checkPageLocked(n); err != nil {
		f.mu.Unlock()
		return false
	}
	q := f.query
	q.Page = n
	if !q.Filtered() {
		f.query = q
		f.mu.Unlock()
		return true
	}
	f.mu.Unlock()

	if err := f.Load(ctx, q); err != nil && !errors.Is(err, ErrStale) {
		f.log.Warn("page load failed", "page", n, "error", err)
	}
	return true
}

func (f *Feed) checkPageLocked(n int) error {
	if !inRange(n, f.totalPagesLocked()) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, n)
	}
	return nil
}

// SetPageSize changes the page size and returns to page 1.
func (f *Feed) SetPageSize(ctx context.Context, n int) error {
	if n <= 0 {
		return fmt.Errorf("feed: page size must be positive, got %d", n)
	}
	f.mu.Lock()
	q := f.query
	q.Page = 1
	q.PageSize = n
	if !q.Filtered() {
		f.query = q
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()
	return f.Load(ctx, q)
}

// Merge applies one pushed record. It only acts on the unfiltered first
// page and ignores ids it has already seen, so redelivery never duplicates a
// row or double-counts the total. When the unfiltered working set grows past
// one page of groups, the tail of the record list is dropped. It reports
// whether the record was inserted.
func (f *Feed) Merge(rec domain.Announcement) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.query.Filtered() || f.query.Page != 1 {
		return false
	}
	if rec.ID == "" {
		return false
	}
	if _, seen := f.ids[rec.ID]; seen {
		return false
	}

	f.ids[rec.ID] = struct{}{}
	f.records = append([]domain.Announcement{rec}, f.records...)
	f.total++
	if f.loading {
		f.merged = append(f.merged, rec)
	}

	if n := keepPrefix(f.records, f.query.PageSize); n < len(f.records) {
		f.log.Debug("truncated live working set", "before", len(f.records), "after", n)
		f.records = f.records[:n]
	}
	return true
}

// reapplyMergedLocked puts back pushes that landed while a load was in
// flight; they are newer than the response snapshot.
func (f *Feed) reapplyMergedLocked() {
	for _, rec := range f.merged {
		if _, dup := f.ids[rec.ID]; dup {
			continue
		}
		f.ids[rec.ID] = struct{}{}
		f.records = append([]domain.Announcement{rec}, f.records...)
		f.total++
	}
}

// keepPrefix returns the length of the longest prefix of records (in list
// order, newest arrival first) that groups into at most maxGroups groups.
// Appending a record never lowers the group count, so the search is a
// bisection over prefix lengths.
func keepPrefix(records []domain.Announcement, maxGroups int) int {
	if len(GroupRecords(records)) <= maxGroups {
		return len(records)
	}
	lo, hi := 0, len(records) // groups(lo) <= max, groups(hi) > max
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if len(GroupRecords(records[:mid])) <= maxGroups {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// SetLiveStatus records the push channel state.
func (f *Feed) SetLiveStatus(s LiveStatus) {
	f.mu.Lock()
	f.live = s
	f.mu.Unlock()
}

// Err returns the page-level error from the last load, if any.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Query returns the committed query.
func (f *Feed) Query() Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query
}

// Records returns a copy of the canonical record list.
func (f *Feed) Records() []domain.Announcement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Announcement(nil), f.records...)
}

// Total returns the running total.
func (f *Feed) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

func (f *Feed) totalPagesLocked() int {
	if f.query.Filtered() {
		if f.totalPages > 0 {
			return f.totalPages
		}
		return TotalPages(f.total, f.query.PageSize)
	}
	return TotalPages(len(GroupRecords(f.records)), f.query.PageSize)
}

// View is a snapshot of everything needed to render the list.
type View struct {
	Mode       Mode
	Query      Query
	Page       int
	PageSize   int
	TotalPages int
	Total      int
	Rows       []Group // visible rows; singletons in filtered mode
	Pages      []PageItem
	Loading    bool
	Loaded     bool
	Err        error
	Live       LiveStatus
}

// View derives the visible page from the current records.
func (f *Feed) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := View{
		Mode:     f.query.Mode(),
		Query:    f.query,
		Page:     f.query.Page,
		PageSize: f.query.PageSize,
		Total:    f.total,
		Loading:  f.loading,
		Loaded:   f.loaded,
		Err:      f.err,
		Live:     f.live,
	}
	if v.Mode == ModeFiltered {
		v.TotalPages = f.totalPagesLocked()
		v.Rows = singletons(f.records)
	} else {
		groups := GroupRecords(f.records)
		v.TotalPages = TotalPages(len(groups), f.query.PageSize)
		v.Rows = PageSlice(groups, f.query.Page, f.query.PageSize)
	}
	v.Pages = PageNumbers(v.Page, v.TotalPages)
	return v
}
