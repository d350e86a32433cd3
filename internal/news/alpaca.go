// Package news serves announcements from Alpaca's news API, used when the
// announcements service is unavailable or for US-listed issuers.
package news

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"annfeed/internal/domain"
	"annfeed/internal/feed"
	"annfeed/internal/util"
)

// NewsClient is the part of the Alpaca market data client used here.
type NewsClient interface {
	GetNews(req marketdata.GetNewsRequest) ([]marketdata.News, error)
}

// AssetClient is the part of the Alpaca trading client used here.
type AssetClient interface {
	GetAssets(req alpacaapi.GetAssetsRequest) ([]alpacaapi.Asset, error)
}

// Options configures an AlpacaSource.
type Options struct {
	RateLimitPerMin int           // default 200
	Lookback        time.Duration // window when no from date is given, default 7 days
	Logger          *slog.Logger
}

// AlpacaSource implements feed.Source over Alpaca news. Search text made of
// ticker-like words selects symbols; anything else filters headlines.
type AlpacaSource struct {
	news     NewsClient
	assets   AssetClient
	limiter  *util.RateLimiter
	lookback time.Duration
	log      *slog.Logger
	now      func() time.Time

	namesOnce sync.Once
	names     map[string]string // symbol -> company name
}

var _ feed.Source = (*AlpacaSource)(nil)

// NewAlpacaSource creates a source. assets may be nil, in which case
// company names fall back to the ticker.
func NewAlpacaSource(news NewsClient, assets AssetClient, opts Options) *AlpacaSource {
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 200
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 7 * 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = util.Discard()
	}
	return &AlpacaSource{
		news:     news,
		assets:   assets,
		limiter:  util.NewRateLimiter(opts.RateLimitPerMin),
		lookback: opts.Lookback,
		log:      opts.Logger,
		now:      time.Now,
	}
}

// NewClients builds the Alpaca clients from credentials. Empty URLs use the
// SDK defaults.
func NewClients(apiKey, apiSecret, baseURL, dataURL string) (*marketdata.Client, *alpacaapi.Client) {
	mdc := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   dataURL,
	})
	ac := alpacaapi.NewClient(alpacaapi.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return mdc, ac
}

// Fetch implements feed.Source.
func (s *AlpacaSource) Fetch(ctx context.Context, q feed.Query) (feed.Result, error) {
	start, end, err := s.window(q.FromDate, q.ToDate)
	if err != nil {
		return feed.Result{}, err
	}
	symbols, text := splitSearch(q.Search)

	page := max(q.Page, 1)
	limit := q.PageSize
	if q.Filtered() {
		// Pages past the first are sliced locally from one request.
		limit = page * q.PageSize
		if text != "" {
			limit *= 4
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return feed.Result{}, fmt.Errorf("rate limiter: %w", err)
	}
	items, err := s.news.GetNews(marketdata.GetNewsRequest{
		Symbols:            symbols,
		Start:              start,
		End:                end,
		TotalLimit:         limit,
		IncludeContent:     false,
		ExcludeContentless: false,
		Sort:               marketdata.SortDesc,
	})
	if err != nil {
		return feed.Result{}, fmt.Errorf("alpaca news: %w", err)
	}

	names := s.companyNames()
	recs := make([]domain.Announcement, 0, len(items))
	for _, n := range items {
		if text != "" && !strings.Contains(strings.ToLower(n.Headline), text) {
			continue
		}
		recs = append(recs, toAnnouncement(n, names))
	}

	res := feed.Result{Records: recs, Total: len(recs), PageSize: q.PageSize, Page: page}
	if q.Filtered() {
		res.TotalPages = feed.TotalPages(len(recs), q.PageSize)
		res.Records = feed.PageSlice(recs, page, q.PageSize)
	}
	s.log.Debug("alpaca news fetched", "symbols", symbols, "items", len(items), "kept", len(recs))
	return res, nil
}

func (s *AlpacaSource) window(from, to string) (time.Time, time.Time, error) {
	end := s.now()
	start := end.Add(-s.lookback)
	if from != "" {
		t, err := time.ParseInLocation("2006-01-02", from, domain.IST)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q: %w", from, err)
		}
		start = t
	}
	if to != "" {
		t, err := time.ParseInLocation("2006-01-02", to, domain.IST)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q: %w", to, err)
		}
		// Inclusive bound.
		end = t.AddDate(0, 0, 1)
	}
	return start, end, nil
}

// companyNames loads the asset directory once. Failures leave the map empty
// and names fall back to tickers.
func (s *AlpacaSource) companyNames() map[string]string {
	s.namesOnce.Do(func() {
		s.names = make(map[string]string)
		if s.assets == nil {
			return
		}
		assets, err := s.assets.GetAssets(alpacaapi.GetAssetsRequest{Status: "active"})
		if err != nil {
			s.log.Warn("loading asset directory failed", "error", err)
			return
		}
		for _, a := range assets {
			s.names[a.Symbol] = a.Name
		}
		s.log.Info("asset directory loaded", "assets", len(s.names))
	})
	return s.names
}

func toAnnouncement(n marketdata.News, names map[string]string) domain.Announcement {
	a := domain.Announcement{
		ID:            strconv.Itoa(n.ID),
		TradeDateTime: n.CreatedAt.In(domain.IST).Format(time.RFC3339),
		Headline:      strings.TrimSpace(n.Headline),
		Body:          domain.StripHTML(n.Summary),
		Symbols:       domain.Symbols{Segment: "us"},
	}
	if len(n.Symbols) > 0 {
		sym := n.Symbols[0]
		a.CompanyName = sym
		if name := names[sym]; name != "" {
			a.CompanyName = name
		}
	}
	if n.URL != "" {
		a.Links = []domain.Link{{Title: "Source", URL: n.URL}}
	}
	return a
}

// splitSearch treats a query made only of ticker-like words (upper-case
// letters, digits, dots) as a symbol list; anything else is a lowercase
// headline filter.
func splitSearch(search string) (symbols []string, text string) {
	fields := strings.FieldsFunc(search, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
	if len(fields) == 0 {
		return nil, ""
	}
	for _, f := range fields {
		if !isTicker(f) {
			return nil, strings.ToLower(strings.TrimSpace(search))
		}
	}
	return fields, ""
}

func isTicker(s string) bool {
	if len(s) > 6 {
		return false
	}
	for _, r := range s {
		if !(unicode.IsUpper(r) || unicode.IsDigit(r) || r == '.') {
			return false
		}
	}
	return true
}
