package feed

import (
	"testing"
)

func TestNormalizeEnvelope(t *testing.T) {
	body := `{
		"announcements": [
			{"id": "a1", "trade_date_time": "2024-03-01T10:00:05", "company_name": "ABC Bank Ltd", "headline": "Board Meeting"},
			"not an object",
			{"headline": "no id"},
			{"id": 42, "headline": "Numeric id"}
		],
		"total": 120,
		"total_pages": 6,
		"page_size": 20,
		"page": 2
	}`
	res, shape, dropped := Normalize([]byte(body))
	if shape != ShapeEnvelope {
		t.Fatalf("shape = %v, want envelope", shape)
	}
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if len(res.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(res.Records))
	}
	if res.Records[1].ID != "42" {
		t.Errorf("numeric id = %q, want %q", res.Records[1].ID, "42")
	}
	if res.Total != 120 || res.TotalPages != 6 || res.PageSize != 20 || res.Page != 2 {
		t.Errorf("counters = %+v", res)
	}
}

func TestNormalizeDataAndResultsKeys(t *testing.T) {
	for _, body := range []string{
		`{"data": [{"id": "x"}], "total": "7"}`,
		`{"results": [{"id": "x"}], "total": 7}`,
	} {
		res, shape, _ := Normalize([]byte(body))
		if shape != ShapeData {
			t.Errorf("%s: shape = %v, want data", body, shape)
			continue
		}
		if len(res.Records) != 1 || res.Total != 7 {
			t.Errorf("%s: records=%d total=%d", body, len(res.Records), res.Total)
		}
	}
}

func TestNormalizeBareArray(t *testing.T) {
	res, shape, dropped := Normalize([]byte(`[{"id":"a"},{"id":"b"},null]`))
	if shape != ShapeBare {
		t.Fatalf("shape = %v, want bare", shape)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	// No total in a bare array: fall back to the record count.
	if res.Total != 2 {
		t.Errorf("Total = %d, want 2", res.Total)
	}
}

func TestNormalizeEmptyShapes(t *testing.T) {
	for _, body := range []string{
		`{"status": "ok"}`,
		`{"announcements": null}`,
		`null`,
		`"announcements"`,
		`{not json`,
		``,
	} {
		res, shape, dropped := Normalize([]byte(body))
		if shape != ShapeEmpty {
			t.Errorf("%q: shape = %v, want empty", body, shape)
		}
		if len(res.Records) != 0 || dropped != 0 {
			t.Errorf("%q: records=%d dropped=%d, want 0/0", body, len(res.Records), dropped)
		}
	}
}

func TestNormalizeFieldAliases(t *testing.T) {
	body := `[{
		"id": "r1",
		"tradeDateTime": "2024-03-01 10:00:05",
		"companyName": " XYZ Corp ",
		"subject": "Outcome of Board Meeting",
		"details": "<p>The board <b>approved</b></p><p>results &amp; dividend</p>",
		"symbols": {"nse": "XYZ", "bse_code": "500001"},
		"isin": "INE000X01010",
		"attachments": ["https://example.com/a.pdf", {"name": "Notice", "url": "https://example.com/b.pdf"}, {"title": "missing url"}]
	}]`
	res, _, _ := Normalize([]byte(body))
	if len(res.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(res.Records))
	}
	r := res.Records[0]
	if r.TradeDateTime != "2024-03-01 10:00:05" {
		t.Errorf("TradeDateTime = %q", r.TradeDateTime)
	}
	if r.CompanyName != "XYZ Corp" {
		t.Errorf("CompanyName = %q", r.CompanyName)
	}
	if r.Headline != "Outcome of Board Meeting" {
		t.Errorf("Headline = %q", r.Headline)
	}
	if r.Body != "The board approved results & dividend" {
		t.Errorf("Body = %q", r.Body)
	}
	if r.Symbols.NSE != "XYZ" || r.Symbols.BSE != "500001" || r.Symbols.ISIN != "INE000X01010" {
		t.Errorf("Symbols = %+v", r.Symbols)
	}
	if len(r.Links) != 2 {
		t.Fatalf("Links = %+v, want 2", r.Links)
	}
	if r.Links[0].URL != "https://example.com/a.pdf" || r.Links[1].Title != "Notice" {
		t.Errorf("Links = %+v", r.Links)
	}
}

func TestDecodeRecord(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"id": "p1", "headline": "Pushed"}`))
	if err != nil || rec.ID != "p1" {
		t.Fatalf("DecodeRecord = %+v, %v", rec, err)
	}

	rec, err = DecodeRecord([]byte(`{"type": "new", "announcement": {"id": "p2"}}`))
	if err != nil || rec.ID != "p2" {
		t.Errorf("wrapped DecodeRecord = %+v, %v", rec, err)
	}

	if _, err := DecodeRecord([]byte(`[{"id": "p3"}]`)); err == nil {
		t.Error("expected error for array payload")
	}
	if _, err := DecodeRecord([]byte(`{"headline": "no id"}`)); err == nil {
		t.Error("expected error for record without id")
	}
}
