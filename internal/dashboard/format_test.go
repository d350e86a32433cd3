package dashboard

import (
	"testing"
	"time"

	"annfeed/internal/domain"
	"annfeed/internal/feed"
)

func TestFormatParseRoundTrip(t *testing.T) {
	times := []time.Time{
		time.Date(2024, 3, 1, 9, 15, 0, 0, domain.IST),
		time.Date(2023, 12, 31, 18, 29, 59, 0, time.UTC), // crosses midnight in IST
		time.Date(2024, 2, 29, 23, 59, 59, 0, domain.IST),
	}
	for _, want := range times {
		s := FormatTimestamp(want)
		got, err := ParseTimestamp(s)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", s, err)
		}
		if !got.Equal(want) {
			t.Errorf("round trip %v -> %q -> %v", want, s, got)
		}
	}
	if got := FormatTimestamp(time.Date(2023, 12, 31, 18, 30, 0, 0, time.UTC)); got != "01 Jan 2024 00:00:00" {
		t.Errorf("FormatTimestamp = %q", got)
	}
	if _, err := ParseTimestamp("2024-03-01"); err == nil {
		t.Error("expected error for wrong layout")
	}
}

func TestFormatRecordTime(t *testing.T) {
	a := domain.Announcement{TradeDateTime: "2024-03-01T10:00:00"}
	if got := FormatRecordTime(&a); got != "01 Mar 2024 10:00:00" {
		t.Errorf("FormatRecordTime = %q", got)
	}
	if got := FormatRecordTime(&domain.Announcement{}); got != "-" {
		t.Errorf("undated = %q", got)
	}
}

func TestFormatInt(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-4500, "-4,500"},
	}
	for _, tt := range tests {
		if got := FormatInt(tt.in); got != tt.want {
			t.Errorf("FormatInt(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := FormatCount(250_000); got != "250K" {
		t.Errorf("FormatCount = %q", got)
	}
}

func TestPageLabels(t *testing.T) {
	if got := PageLabels(feed.PageNumbers(5, 10), 5); got != "1 … 4 [5] 6 … 10" {
		t.Errorf("PageLabels = %q", got)
	}
	if got := PageLabels(feed.PageNumbers(1, 1), 1); got != "[1]" {
		t.Errorf("single page = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("Board Meeting", 5); got != "Boar…" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate = %q", got)
	}
}

func TestSummarize(t *testing.T) {
	recs := []domain.Announcement{
		{ID: "1", CompanyName: "ABC Ltd", Headline: "Board Meeting", TradeDateTime: "2024-03-01T10:00:00"},
		{ID: "2", CompanyName: "ABC Limited", Headline: "Board Meeting", TradeDateTime: "2024-03-01T10:00:30"},
		{ID: "3", CompanyName: "XYZ Ltd", Headline: "Dividend", TradeDateTime: "2024-03-01T09:00:00"},
		{ID: "4", Symbols: domain.Symbols{NSE: "PQR"}, Headline: "Results"},
	}
	s := Summarize(recs, 2)
	if s.Records != 4 || s.Companies != 3 || s.Undated != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.Groups != 3 {
		t.Errorf("groups = %d, want 3", s.Groups)
	}
	if len(s.Busiest) != 2 || s.Busiest[0].Company != "ABC Ltd" || s.Busiest[0].Count != 2 {
		t.Errorf("busiest = %+v", s.Busiest)
	}
	if s.First.Hour() != 9 || s.Last.Second() != 30 {
		t.Errorf("range = %v..%v", s.First, s.Last)
	}
}
