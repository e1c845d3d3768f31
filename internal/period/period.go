// Package period parses settlement document references like
// "LMB-US-01JAN-31JAN-25" into a marketplace plus period boundaries.
package period

import (
	"strconv"
	"strings"
	"time"

	"github.com/lmb/settlements/internal/domain"
)

// Ref is a parsed settlement reference. Start and End are ISO day strings;
// both are empty when the reference carries no date-range suffix, in which
// case audit matching degrades to "missing period".
type Ref struct {
	Prefix      string `json:"prefix"`
	Region      string `json:"region"`
	Marketplace string `json:"marketplace"`
	Start       string `json:"period_start,omitempty"`
	End         string `json:"period_end,omitempty"`
}

// HasPeriod reports whether the reference carries a date range.
func (r Ref) HasPeriod() bool { return r.Start != "" && r.End != "" }

// marketplaceByRegion maps region codes to Amazon marketplace domains.
var marketplaceByRegion = map[string]string{
	"US": "amazon.com",
	"CA": "amazon.ca",
	"MX": "amazon.com.mx",
	"UK": "amazon.co.uk",
	"DE": "amazon.de",
	"FR": "amazon.fr",
	"IT": "amazon.it",
	"ES": "amazon.es",
	"JP": "amazon.co.jp",
	"AU": "amazon.com.au",
}

var monthAbbrev = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// ParseRef parses a reference of the form
// <PREFIX>-<REGION>-<DAYMONTH>-<DAYMONTH>-<YEAR>. A bare two-digit token is a
// day-of-month whose month is inherited from the adjacent token; "DDMMM" sets
// both. When the end month is numerically less than the start month the
// period crosses a year boundary and the start year is the end year minus
// one. A reference with no date suffix at all parses successfully with an
// empty period; any other shape is a malformed-identifier error.
func ParseRef(ref string) (Ref, error) {
	tokens := strings.Split(strings.TrimSpace(ref), "-")

	if len(tokens) != 2 && len(tokens) != 5 {
		return Ref{}, domain.E(domain.KindMalformed, "malformed settlement identifier %q", ref)
	}

	prefix, region := tokens[0], strings.ToUpper(tokens[1])
	if prefix == "" {
		return Ref{}, domain.E(domain.KindMalformed, "malformed settlement identifier %q: empty prefix", ref)
	}
	marketplace, ok := marketplaceByRegion[region]
	if !ok {
		return Ref{}, domain.E(domain.KindMalformed, "malformed settlement identifier %q: unknown region %q", ref, region)
	}

	out := Ref{Prefix: prefix, Region: region, Marketplace: marketplace}
	if len(tokens) == 2 {
		return out, nil
	}

	startDay, startMon, startHasMon, err := parseDayMonth(tokens[2])
	if err != nil {
		return Ref{}, domain.Wrap(domain.KindMalformed, err, "malformed settlement identifier %q", ref)
	}
	endDay, endMon, endHasMon, err := parseDayMonth(tokens[3])
	if err != nil {
		return Ref{}, domain.Wrap(domain.KindMalformed, err, "malformed settlement identifier %q", ref)
	}

	switch {
	case !startHasMon && !endHasMon:
		return Ref{}, domain.E(domain.KindMalformed, "malformed settlement identifier %q: no month in either date token", ref)
	case !startHasMon:
		startMon = endMon
	case !endHasMon:
		endMon = startMon
	}

	yy, err := strconv.Atoi(tokens[4])
	if err != nil || len(tokens[4]) != 2 {
		return Ref{}, domain.E(domain.KindMalformed, "malformed settlement identifier %q: bad year token %q", ref, tokens[4])
	}
	endYear := 2000 + yy
	startYear := endYear
	if startMon > endMon {
		startYear = endYear - 1
	}

	start, err := civilDay(startYear, startMon, startDay)
	if err != nil {
		return Ref{}, domain.Wrap(domain.KindMalformed, err, "malformed settlement identifier %q", ref)
	}
	end, err := civilDay(endYear, endMon, endDay)
	if err != nil {
		return Ref{}, domain.Wrap(domain.KindMalformed, err, "malformed settlement identifier %q", ref)
	}

	out.Start, out.End = start, end
	return out, nil
}

// parseDayMonth handles "DD" and "DDMMM" tokens.
func parseDayMonth(tok string) (day int, mon time.Month, hasMon bool, err error) {
	if len(tok) != 2 && len(tok) != 5 {
		return 0, 0, false, strconv.ErrSyntax
	}
	day, err = strconv.Atoi(tok[:2])
	if err != nil {
		return 0, 0, false, err
	}
	if len(tok) == 2 {
		return day, 0, false, nil
	}
	mon, ok := monthAbbrev[strings.ToUpper(tok[2:])]
	if !ok {
		return 0, 0, false, strconv.ErrSyntax
	}
	return day, mon, true, nil
}

func civilDay(year int, mon time.Month, day int) (string, error) {
	t := time.Date(year, mon, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != mon {
		return "", strconv.ErrRange
	}
	return t.Format("2006-01-02"), nil
}
