package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"annfeed/internal/domain"
)

// Shape identifies which response layout a payload was parsed as.
type Shape int

const (
	ShapeEmpty    Shape = iota // nothing recognisable; zero records
	ShapeEnvelope              // {"announcements": [...], "total": n}
	ShapeData                  // {"data"|"results": [...], "total": n}
	ShapeBare                  // [...]
)

func (s Shape) String() string {
	switch s {
	case ShapeEnvelope:
		return "envelope"
	case ShapeData:
		return "data"
	case ShapeBare:
		return "bare"
	default:
		return "empty"
	}
}

// Result is one normalized page of announcements.
type Result struct {
	Records    []domain.Announcement
	Total      int // server-reported total, or len(Records) when absent
	TotalPages int // 0 when the server did not report it
	PageSize   int
	Page       int
}

type shapeParser struct {
	shape Shape
	parse func(v any) (items []any, counters map[string]any, ok bool)
}

// Tried in order; the first parser that recognises the payload wins.
var shapeParsers = []shapeParser{
	{ShapeEnvelope, objectArray("announcements")},
	{ShapeData, objectArray("data", "results")},
	{ShapeBare, func(v any) ([]any, map[string]any, bool) {
		arr, ok := v.([]any)
		return arr, nil, ok
	}},
}

func objectArray(keys ...string) func(v any) ([]any, map[string]any, bool) {
	return func(v any) ([]any, map[string]any, bool) {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, nil, false
		}
		for _, k := range keys {
			if arr, ok := obj[k].([]any); ok {
				return arr, obj, true
			}
		}
		return nil, nil, false
	}
}

// Normalize parses an announcements response body. It never fails: payloads
// that match no known shape yield ShapeEmpty, and items that are not objects
// or carry no usable id are dropped and counted.
func Normalize(data []byte) (res Result, shape Shape, dropped int) {
	v, err := decode(data)
	if err != nil {
		return Result{}, ShapeEmpty, 0
	}

	var items []any
	var counters map[string]any
	for _, p := range shapeParsers {
		if arr, c, ok := p.parse(v); ok {
			items, counters, shape = arr, c, p.shape
			break
		}
	}
	if shape == ShapeEmpty {
		return Result{}, ShapeEmpty, 0
	}

	res.Records = make([]domain.Announcement, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			dropped++
			continue
		}
		rec, ok := recordFromMap(m)
		if !ok {
			dropped++
			continue
		}
		res.Records = append(res.Records, rec)
	}

	res.Total = intField(counters, "total", "total_count", "count")
	res.TotalPages = intField(counters, "total_pages", "totalPages")
	res.PageSize = intField(counters, "page_size", "pageSize", "limit")
	res.Page = intField(counters, "page")
	if _, ok := lookup(counters, "total", "total_count", "count"); !ok {
		res.Total = len(res.Records)
	}
	return res, shape, dropped
}

// DecodeRecord parses a single pushed record. The payload has the same
// structure as one element of a fetch response.
func DecodeRecord(data []byte) (domain.Announcement, error) {
	v, err := decode(data)
	if err != nil {
		return domain.Announcement{}, fmt.Errorf("decode record: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return domain.Announcement{}, fmt.Errorf("decode record: payload is %T, not an object", v)
	}
	// Some push channels wrap the record: {"type": "...", "announcement": {...}}.
	if _, ok := m["id"]; !ok {
		if inner, ok := m["announcement"].(map[string]any); ok {
			m = inner
		} else if inner, ok := m["data"].(map[string]any); ok {
			m = inner
		}
	}
	rec, ok := recordFromMap(m)
	if !ok {
		return domain.Announcement{}, fmt.Errorf("decode record: missing id")
	}
	return rec, nil
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func recordFromMap(m map[string]any) (domain.Announcement, bool) {
	id := idField(m["id"])
	if id == "" {
		return domain.Announcement{}, false
	}
	rec := domain.Announcement{
		ID:            id,
		TradeDateTime: stringField(m, "trade_date_time", "tradeDateTime", "datetime", "date"),
		CompanyName:   stringField(m, "company_name", "companyName", "company"),
		Headline:      strings.TrimSpace(stringField(m, "headline", "subject", "title")),
		Body:          domain.StripHTML(stringField(m, "body", "details", "summary")),
		Links:         linksField(m),
	}
	rec.CompanyName = strings.TrimSpace(rec.CompanyName)

	sym, _ := m["symbols"].(map[string]any)
	rec.Symbols = domain.Symbols{
		NSE:     firstNonEmpty(stringField(sym, "nse", "nse_symbol", "symbol_nse"), stringField(m, "nse_symbol", "symbol_nse")),
		BSE:     firstNonEmpty(stringField(sym, "bse", "bse_code", "scrip_code", "symbol_bse"), stringField(m, "bse_code", "scrip_code", "symbol_bse")),
		ISIN:    firstNonEmpty(stringField(sym, "isin"), stringField(m, "isin")),
		Segment: firstNonEmpty(stringField(sym, "segment"), stringField(m, "segment")),
	}
	return rec, true
}

func idField(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		return id.String()
	}
	return ""
}

func lookup(m map[string]any, keys ...string) (any, bool) {
	if m == nil {
		return nil, false
	}
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := lookup(m, k)
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			if s != "" {
				return s
			}
		case json.Number:
			return s.String()
		}
	}
	return ""
}

func intField(m map[string]any, keys ...string) int {
	v, ok := lookup(m, keys...)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return 0
}

func linksField(m map[string]any) []domain.Link {
	v, ok := lookup(m, "links", "attachments")
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var links []domain.Link
	for _, item := range arr {
		switch l := item.(type) {
		case string:
			if l = strings.TrimSpace(l); l != "" {
				links = append(links, domain.Link{URL: l})
			}
		case map[string]any:
			url := stringField(l, "url", "href", "link")
			if url == "" {
				continue
			}
			links = append(links, domain.Link{Title: stringField(l, "title", "name"), URL: url})
		}
	}
	return links
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
