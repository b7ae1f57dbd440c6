// Package fiscal models the April to March fiscal calendar used by the
// reports and expands a selected period into the months an aggregation covers.
package fiscal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dashcore/pkg/reportapi"
)

// Months lists calendar months in fiscal order.
var Months = []time.Month{
	time.April, time.May, time.June,
	time.July, time.August, time.September,
	time.October, time.November, time.December,
	time.January, time.February, time.March,
}

// Period is one calendar month, rendered as "January 2026".
type Period struct {
	Month time.Month
	Year  int
}

func (p Period) String() string {
	return p.Month.String() + " " + strconv.Itoa(p.Year)
}

// Index is the zero-based position of the month inside its fiscal year.
func (p Period) Index() int {
	return (int(p.Month) - int(time.April) + 12) % 12
}

// Quarter returns 1..4, Q1 being April to June.
func (p Period) Quarter() int {
	return p.Index()/3 + 1
}

// FiscalYear returns the calendar year the fiscal year containing p starts in.
func (p Period) FiscalYear() int {
	if p.Month >= time.April {
		return p.Year
	}
	return p.Year - 1
}

// AddMonths shifts p by n months in either direction.
func (p Period) AddMonths(n int) Period {
	t := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return Period{Month: t.Month(), Year: t.Year()}
}

// ParsePeriod parses "January 2026". Month names are case-insensitive and may
// be abbreviated to three letters.
func ParsePeriod(s string) (Period, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Period{}, fmt.Errorf("period %q: want \"<month> <year>\"", s)
	}
	month, ok := parseMonth(fields[0])
	if !ok {
		return Period{}, fmt.Errorf("period %q: unknown month %q", s, fields[0])
	}
	year, err := strconv.Atoi(fields[1])
	if err != nil {
		return Period{}, fmt.Errorf("period %q: %w", s, err)
	}
	return Period{Month: month, Year: year}, nil
}

func parseMonth(s string) (time.Month, bool) {
	for m := time.January; m <= time.December; m++ {
		name := m.String()
		if strings.EqualFold(s, name) || (len(s) == 3 && strings.EqualFold(s, name[:3])) {
			return m, true
		}
	}
	return 0, false
}

// YearLabel renders the fiscal year starting in start, e.g. "2025-2026".
func YearLabel(start int) string {
	return strconv.Itoa(start) + "-" + strconv.Itoa(start+1)
}

// ParseYear returns the start year of a label such as "2025-2026".
func ParseYear(label string) (int, error) {
	first, second, found := strings.Cut(strings.TrimSpace(label), "-")
	start, err := strconv.Atoi(first)
	if err != nil {
		return 0, fmt.Errorf("fiscal year %q: %w", label, err)
	}
	if found {
		end, err := strconv.Atoi(second)
		if err != nil {
			return 0, fmt.Errorf("fiscal year %q: %w", label, err)
		}
		if end != start+1 {
			return 0, fmt.Errorf("fiscal year %q: years are not consecutive", label)
		}
	}
	return start, nil
}

// YearPeriods returns the twelve months of the fiscal year starting in start.
func YearPeriods(start int) []Period {
	out := make([]Period, 0, len(Months))
	first := Period{Month: time.April, Year: start}
	for i := range Months {
		out = append(out, first.AddMonths(i))
	}
	return out
}

// PeriodsFor expands the selected period into the months an aggregation mode
// covers: MTD is the month itself, QTD the quarter up to it, YTD the fiscal
// year up to it.
func PeriodsFor(p Period, agg reportapi.Aggregation) []Period {
	var first Period
	switch agg {
	case reportapi.AggregationMTD:
		return []Period{p}
	case reportapi.AggregationQTD:
		first = p.AddMonths(-(p.Index() % 3))
	default:
		first = p.AddMonths(-p.Index())
	}
	out := make([]Period, 0, 12)
	for cur := first; cur != p; cur = cur.AddMonths(1) {
		out = append(out, cur)
	}
	return append(out, p)
}

// PriorYear shifts each period back twelve months.
func PriorYear(ps []Period) []Period {
	out := make([]Period, len(ps))
	for i, p := range ps {
		out[i] = Period{Month: p.Month, Year: p.Year - 1}
	}
	return out
}

// Strings renders periods in order.
func Strings(ps []Period) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}
