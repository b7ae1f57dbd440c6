package fiscal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashcore/pkg/reportapi"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("January 2026")
	require.NoError(t, err)
	assert.Equal(t, Period{Month: time.January, Year: 2026}, p)
	assert.Equal(t, "January 2026", p.String())

	p, err = ParsePeriod("sep 2025")
	require.NoError(t, err)
	assert.Equal(t, time.September, p.Month)

	for _, bad := range []string{"", "January", "Smarch 2026", "January twenty"} {
		_, err := ParsePeriod(bad)
		assert.Error(t, err, bad)
	}
}

func TestPeriodPosition(t *testing.T) {
	jan := Period{Month: time.January, Year: 2026}
	assert.Equal(t, 9, jan.Index())
	assert.Equal(t, 4, jan.Quarter())
	assert.Equal(t, 2025, jan.FiscalYear())

	apr := Period{Month: time.April, Year: 2025}
	assert.Equal(t, 0, apr.Index())
	assert.Equal(t, 1, apr.Quarter())
	assert.Equal(t, 2025, apr.FiscalYear())
}

func TestPeriodsFor(t *testing.T) {
	jan := Period{Month: time.January, Year: 2026}

	assert.Equal(t, []string{"January 2026"}, Strings(PeriodsFor(jan, reportapi.AggregationMTD)))

	feb := Period{Month: time.February, Year: 2026}
	assert.Equal(t, []string{"January 2026", "February 2026"}, Strings(PeriodsFor(feb, reportapi.AggregationQTD)))

	ytd := PeriodsFor(jan, reportapi.AggregationYTD)
	require.Len(t, ytd, 10)
	assert.Equal(t, "April 2025", ytd[0].String())
	assert.Equal(t, "December 2025", ytd[8].String())
	assert.Equal(t, "January 2026", ytd[9].String())
}

func TestPriorYearAndYearPeriods(t *testing.T) {
	prior := PriorYear([]Period{{Month: time.March, Year: 2026}})
	assert.Equal(t, "March 2025", prior[0].String())

	all := YearPeriods(2025)
	require.Len(t, all, 12)
	assert.Equal(t, "April 2025", all[0].String())
	assert.Equal(t, "March 2026", all[11].String())
}

func TestParseYear(t *testing.T) {
	start, err := ParseYear("2025-2026")
	require.NoError(t, err)
	assert.Equal(t, 2025, start)
	assert.Equal(t, "2025-2026", YearLabel(start))

	_, err = ParseYear("2025-2027")
	assert.Error(t, err)
	_, err = ParseYear("FY25")
	assert.Error(t, err)
}
