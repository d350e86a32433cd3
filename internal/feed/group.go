package feed

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"annfeed/internal/domain"
)

// Group is a cluster of records considered duplicates for display. Members
// keep the order they have in the canonical record list.
type Group struct {
	Key     string
	Members []domain.Announcement
	Latest  time.Time // zero when no member has a parseable timestamp
}

// Lead returns the record shown when the group is collapsed.
func (g Group) Lead() domain.Announcement {
	return g.Members[0]
}

// Size returns the number of members.
func (g Group) Size() int {
	return len(g.Members)
}

// Collapsible reports whether the group gets an expand control.
func (g Group) Collapsible() bool {
	return len(g.Members) > 1
}

// legalSuffixes are dropped from the end of company names before comparison.
var legalSuffixes = map[string]bool{
	"ltd": true, "limited": true, "inc": true, "corp": true, "corporation": true,
	"pvt": true, "private": true, "llp": true, "plc": true, "co": true, "company": true,
}

// minSharedToken is the shortest company-name token that can fuse two groups.
const minSharedToken = 4

// MinuteBucket returns the grouping bucket for a record: its timestamp
// truncated to the minute in IST, or the lowercased raw value when the
// timestamp does not parse.
func MinuteBucket(a domain.Announcement) string {
	if t, ok := a.Time(); ok {
		return t.In(domain.IST).Format("2006-01-02T15:04")
	}
	return strings.ToLower(strings.TrimSpace(a.TradeDateTime))
}

// NormalizeHeadline lowercases, trims, and collapses whitespace.
func NormalizeHeadline(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormalizeCompany lowercases the name, drops punctuation, and strips
// trailing legal suffixes ("ABC Bank Ltd." and "ABC Bank" both give
// "abc bank").
func NormalizeCompany(s string) string {
	s = strings.NewReplacer(".", " ", ",", " ").Replace(strings.ToLower(s))
	words := strings.Fields(s)
	for len(words) > 0 && legalSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func companyTokens(normalized string) []string {
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func shareToken(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	set := make(map[string]bool)
	for _, tok := range companyTokens(a) {
		if len(tok) >= minSharedToken {
			set[tok] = true
		}
	}
	for _, tok := range companyTokens(b) {
		if set[tok] {
			return true
		}
	}
	return false
}

type groupBuilder struct {
	group   Group
	prefix  string // bucket|headline, empty for id-keyed groups
	company string // normalized company of the first member
}

// GroupRecords partitions records into display groups. It is a pure function
// of its input: the same records always give the same groups in the same
// order. Every record lands in exactly one group.
//
// The fuzzy company match (a shared token of four or more characters) can
// join unrelated companies with a common word, e.g. two "... Finance Ltd"
// issuers filing the same headline in the same minute.
func GroupRecords(records []domain.Announcement) []Group {
	var builders []*groupBuilder
	index := make(map[string]*groupBuilder)

	for _, rec := range records {
		bucket := MinuteBucket(rec)
		headline := NormalizeHeadline(rec.Headline)
		company := NormalizeCompany(rec.CompanyName)

		var key, prefix string
		switch {
		case headline == "":
			key = bucket + "|id:" + rec.ID
		case company == "":
			prefix = bucket + "|" + headline
			key = prefix
		default:
			prefix = bucket + "|" + headline
			key = prefix + "|" + company
		}

		b := index[key]
		if b == nil && company != "" && headline != "" {
			for _, cand := range builders {
				if cand.prefix == prefix && shareToken(cand.company, company) {
					b = cand
					index[key] = cand
					break
				}
			}
		}
		if b == nil {
			b = &groupBuilder{group: Group{Key: key}, prefix: prefix, company: company}
			if headline == "" {
				b.prefix = ""
			}
			builders = append(builders, b)
			index[key] = b
		}

		b.group.Members = append(b.group.Members, rec)
		if t, ok := rec.Time(); ok && t.After(b.group.Latest) {
			b.group.Latest = t
		}
	}

	groups := make([]Group, len(builders))
	for i, b := range builders {
		groups[i] = b.group
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Latest.After(groups[j].Latest)
	})
	return groups
}

// singletons wraps each record in its own group, used where the server has
// already paginated and no client grouping applies.
func singletons(records []domain.Announcement) []Group {
	groups := make([]Group, len(records))
	for i, rec := range records {
		g := Group{Key: "id:" + rec.ID, Members: []domain.Announcement{rec}}
		if t, ok := rec.Time(); ok {
			g.Latest = t
		}
		groups[i] = g
	}
	return groups
}
