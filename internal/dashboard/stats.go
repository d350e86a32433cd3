package dashboard

import (
	"sort"
	"strings"
	"time"

	"annfeed/internal/domain"
	"annfeed/internal/feed"
)

// CompanyCount is the number of announcements attributed to one company.
type CompanyCount struct {
	Company string
	Count   int
}

// Summary aggregates a set of announcements for the status line and the
// cli stats command.
type Summary struct {
	Records   int
	Groups    int
	Companies int
	Undated   int
	First     time.Time // earliest trade time, zero if none
	Last      time.Time // latest trade time, zero if none
	Busiest   []CompanyCount
}

// Summarize computes a Summary over recs. Busiest holds at most top entries,
// sorted by count descending then company name.
func Summarize(recs []domain.Announcement, top int) Summary {
	s := Summary{Records: len(recs), Groups: len(feed.GroupRecords(recs))}
	counts := make(map[string]int)
	display := make(map[string]string) // normalized -> first raw name seen
	for i := range recs {
		r := &recs[i]
		name := strings.TrimSpace(r.CompanyName)
		if name == "" {
			name = r.Symbols.Primary()
		}
		if key := feed.NormalizeCompany(name); key != "" {
			counts[key]++
			if _, ok := display[key]; !ok {
				display[key] = name
			}
		}
		t, ok := r.Time()
		if !ok {
			s.Undated++
			continue
		}
		if s.First.IsZero() || t.Before(s.First) {
			s.First = t
		}
		if t.After(s.Last) {
			s.Last = t
		}
	}
	s.Companies = len(counts)

	for key, n := range counts {
		s.Busiest = append(s.Busiest, CompanyCount{Company: display[key], Count: n})
	}
	sort.Slice(s.Busiest, func(i, j int) bool {
		if s.Busiest[i].Count != s.Busiest[j].Count {
			return s.Busiest[i].Count > s.Busiest[j].Count
		}
		return s.Busiest[i].Company < s.Busiest[j].Company
	})
	if top >= 0 && len(s.Busiest) > top {
		s.Busiest = s.Busiest[:top]
	}
	return s
}
