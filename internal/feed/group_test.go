package feed

import (
	"reflect"
	"testing"

	"annfeed/internal/domain"
)

func ann(id, ts, company, headline string) domain.Announcement {
	return domain.Announcement{ID: id, TradeDateTime: ts, CompanyName: company, Headline: headline}
}

func memberIDs(g Group) []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

func TestGroupRecordsFuzzyCompany(t *testing.T) {
	records := []domain.Announcement{
		ann("1", "2024-03-01T10:00:05", "ABC Bank Ltd", "Board Meeting"),
		ann("2", "2024-03-01T10:00:40", "ABC Bank", "Board Meeting"),
		ann("3", "2024-03-01T10:00:10", "XYZ Corp", "Board Meeting"),
	}
	groups := GroupRecords(records)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2: %+v", len(groups), groups)
	}
	if got := memberIDs(groups[0]); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("first group members = %v, want [1 2]", got)
	}
	if got := memberIDs(groups[1]); !reflect.DeepEqual(got, []string{"3"}) {
		t.Errorf("second group members = %v, want [3]", got)
	}
	if !groups[0].Collapsible() || groups[1].Collapsible() {
		t.Error("only the two-member group should be collapsible")
	}
}

func TestGroupRecordsSharedTokenMerge(t *testing.T) {
	records := []domain.Announcement{
		ann("1", "2024-03-01T11:30:00", "Reliance Industries Limited", "Press Release"),
		ann("2", "2024-03-01T11:30:30", "Reliance Inds.", "press release"),
		// Known over-merge: unrelated issuers sharing "finance".
		ann("3", "2024-03-01T11:31:00", "Alpha Finance Ltd", "Record Date"),
		ann("4", "2024-03-01T11:31:10", "Beta Finance Ltd", "Record Date"),
		// Short shared token does not merge.
		ann("5", "2024-03-01T11:32:00", "ABC Ltd", "Allotment"),
		ann("6", "2024-03-01T11:32:00", "ABC Motors", "Allotment"),
	}
	groups := GroupRecords(records)
	want := [][]string{{"5"}, {"6"}, {"3", "4"}, {"1", "2"}}
	if len(groups) != len(want) {
		t.Fatalf("got %d groups, want %d", len(groups), len(want))
	}
	for i, w := range want {
		if got := memberIDs(groups[i]); !reflect.DeepEqual(got, w) {
			t.Errorf("group %d = %v, want %v", i, got, w)
		}
	}
}

func TestGroupRecordsFallbackKeys(t *testing.T) {
	records := []domain.Announcement{
		// No headline: always singletons, even with identical company and time.
		ann("1", "2024-03-01T10:00:00", "ABC Bank", ""),
		ann("2", "2024-03-01T10:00:00", "ABC Bank", ""),
		// No company: grouped by bucket and headline.
		ann("3", "2024-03-01T10:00:00", "", "Trading Window"),
		ann("4", "2024-03-01T10:00:20", "", "trading  window"),
		// Different minute never groups.
		ann("5", "2024-03-01T10:01:00", "", "Trading Window"),
		// Neither headline nor company.
		ann("6", "", "", ""),
		ann("7", "", "", ""),
	}
	groups := GroupRecords(records)
	if len(groups) != 6 {
		t.Fatalf("got %d groups, want 6", len(groups))
	}
	seen := make(map[string]int)
	for _, g := range groups {
		for _, m := range g.Members {
			seen[m.ID]++
		}
		if g.Key == "" {
			t.Errorf("group with empty key: %+v", g)
		}
	}
	for _, rec := range records {
		if seen[rec.ID] != 1 {
			t.Errorf("record %s appears in %d groups, want 1", rec.ID, seen[rec.ID])
		}
	}
	for _, g := range groups {
		if g.Lead().ID == "3" && g.Size() != 2 {
			t.Errorf("headline-only group has %d members, want 2", g.Size())
		}
	}
}

func TestGroupRecordsOrder(t *testing.T) {
	records := []domain.Announcement{
		ann("old", "2024-03-01T09:00:00", "A Co", "One"),
		ann("bad", "garbage", "B Co", "Two"),
		ann("new", "2024-03-01T15:00:00", "C Co", "Three"),
	}
	groups := GroupRecords(records)
	var order []string
	for _, g := range groups {
		order = append(order, g.Lead().ID)
	}
	// Latest first; unparseable timestamps sort last.
	if want := []string{"new", "old", "bad"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestGroupRecordsDeterministic(t *testing.T) {
	var records []domain.Announcement
	companies := []string{"ABC Bank Ltd", "ABC Bank", "XYZ Corp", "Alpha Finance", "Beta Finance", ""}
	headlines := []string{"Board Meeting", "Dividend", ""}
	for i := 0; i < 60; i++ {
		records = append(records, ann(
			string(rune('a'+i%26))+string(rune('0'+i/26)),
			"2024-03-01T10:0"+string(rune('0'+i%3))+":00",
			companies[i%len(companies)],
			headlines[i%len(headlines)],
		))
	}
	first := GroupRecords(records)
	second := GroupRecords(records)
	if !reflect.DeepEqual(first, second) {
		t.Error("GroupRecords is not deterministic")
	}
}

func TestNormalizeCompany(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ABC Bank Ltd", "abc bank"},
		{"ABC Bank Ltd.", "abc bank"},
		{"  XYZ   Pvt. Ltd. ", "xyz"},
		{"Foo Private Limited", "foo"},
		{"Bar Corporation", "bar"},
		{"Acme, Inc.", "acme"},
		{"Company", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeCompany(tt.in); got != tt.want {
			t.Errorf("NormalizeCompany(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMinuteBucket(t *testing.T) {
	a := ann("1", "2024-03-01T10:00:05", "", "")
	b := ann("2", "2024-03-01T04:30:59Z", "", "")
	if MinuteBucket(a) != MinuteBucket(b) {
		t.Errorf("buckets differ: %q vs %q", MinuteBucket(a), MinuteBucket(b))
	}
	if got := MinuteBucket(ann("3", " Not A Date ", "", "")); got != "not a date" {
		t.Errorf("raw bucket = %q", got)
	}
}
