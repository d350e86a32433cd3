package domain

import (
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	a := Announcement{}
	if a.ID != "" || a.Headline != "" || a.CompanyName != "" {
		t.Error("expected empty fields for zero-value Announcement")
	}
	if _, ok := a.Time(); ok {
		t.Error("zero-value Announcement should have no parseable time")
	}
	if len(a.Links) != 0 {
		t.Error("expected no links for zero-value Announcement")
	}

	if ExchangeNSE != "nse" || ExchangeBSE != "bse" {
		t.Error("Exchange constants have unexpected values")
	}

	s := Symbols{BSE: "500180"}
	if s.Primary() != "500180" {
		t.Errorf("Primary() = %q, want BSE code when NSE missing", s.Primary())
	}
	if ex, _ := s.Listing(); ex != ExchangeBSE {
		t.Errorf("Listing() venue = %q, want bse", ex)
	}
	s.NSE = "HDFCBANK"
	if s.Primary() != "HDFCBANK" {
		t.Errorf("Primary() = %q, want NSE symbol", s.Primary())
	}
	if ex, code := s.Listing(); ex != ExchangeNSE || code != "HDFCBANK" {
		t.Errorf("Listing() = %q, %q, want nse HDFCBANK", ex, code)
	}
	if ex, code := (Symbols{ISIN: "INE040A01034"}).Listing(); ex != "" || code != "" {
		t.Errorf("Listing() without symbols = %q, %q", ex, code)
	}
}

func TestParseTradeTime(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"2024-03-05T10:00:05+05:30", true, time.Date(2024, 3, 5, 10, 0, 5, 0, IST)},
		{"2024-03-05T04:30:05Z", true, time.Date(2024, 3, 5, 10, 0, 5, 0, IST)},
		{"2024-03-05 10:00:05", true, time.Date(2024, 3, 5, 10, 0, 5, 0, IST)},
		{"2024-03-05T10:00", true, time.Date(2024, 3, 5, 10, 0, 0, 0, IST)},
		{"05-Mar-2024 10:00:05", true, time.Date(2024, 3, 5, 10, 0, 5, 0, IST)},
		{"2024-03-05", true, time.Date(2024, 3, 5, 0, 0, 0, 0, IST)},
		{"", false, time.Time{}},
		{"yesterday", false, time.Time{}},
		{"2024-13-45T99:00:00", false, time.Time{}},
	}
	for _, tt := range tests {
		got, ok := ParseTradeTime(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseTradeTime(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("ParseTradeTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain   text\n here", "plain text here"},
		{"<p>Board meeting</p><p>on Friday</p>", "Board meeting on Friday"},
		{"Profit &amp; Loss<br/>statement", "Profit & Loss statement"},
		{"<script>alert(1)</script>Outcome", "Outcome"},
	}
	for _, tt := range tests {
		if got := StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
