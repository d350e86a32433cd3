// Package domain defines the announcement types shared by the fetch, live,
// archive, and console layers.
package domain

import (
	"strings"
	"time"
)

// IST is the exchange timezone used for naive server timestamps and for
// display. A fixed zone keeps parsing independent of the host tzdata.
var IST = time.FixedZone("IST", 5*60*60+30*60)

// Exchange identifies a listing venue.
type Exchange string

const (
	ExchangeNSE Exchange = "nse"
	ExchangeBSE Exchange = "bse"
)

// Symbols holds the exchange-specific identifiers for the announcing company.
type Symbols struct {
	NSE     string `json:"nse_symbol,omitempty"`
	BSE     string `json:"bse_code,omitempty"`
	ISIN    string `json:"isin,omitempty"`
	Segment string `json:"segment,omitempty"`
}

// Listing returns the venue and code of the preferred listing, NSE first.
// Both results are empty when neither symbol is set.
func (s Symbols) Listing() (Exchange, string) {
	switch {
	case s.NSE != "":
		return ExchangeNSE, s.NSE
	case s.BSE != "":
		return ExchangeBSE, s.BSE
	}
	return "", ""
}

// Primary returns the preferred listing code.
func (s Symbols) Primary() string {
	_, code := s.Listing()
	return code
}

// Link is an external reference attached to an announcement.
type Link struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// Announcement is a single corporate-disclosure record as delivered by the
// announcements service. ID is the only identity key; time, headline, and
// company are comparison keys for grouping only.
type Announcement struct {
	ID            string  `json:"id"`
	TradeDateTime string  `json:"trade_date_time,omitempty"`
	CompanyName   string  `json:"company_name,omitempty"`
	Headline      string  `json:"headline,omitempty"`
	Body          string  `json:"body,omitempty"`
	Symbols       Symbols `json:"symbols"`
	Links         []Link  `json:"links,omitempty"`
}

// Time parses TradeDateTime. The second result is false when the field is
// empty or malformed.
func (a *Announcement) Time() (time.Time, bool) {
	return ParseTradeTime(a.TradeDateTime)
}

var tradeTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"02-Jan-2006 15:04:05",
	"02-01-2006 15:04:05",
	"2006-01-02",
}

// ParseTradeTime parses the server timestamp formats seen in practice.
// Values without a zone offset are interpreted in IST.
func ParseTradeTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range tradeTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, IST); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
