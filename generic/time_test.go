package generic_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// ADD MONTHS - Day clamping
// =============================================================================

func TestAddMonths_ClampsToLastDayOfMonth(t *testing.T) {
	// GIVEN: Jan 31 in a leap year and a common year
	// WHEN: Adding one month
	// THEN: The day is clamped to Feb 29 / Feb 28

	assert.Equal(t, "2024-02-29", generic.MustParseDate("2024-01-31").AddMonths(1).String())
	assert.Equal(t, "2025-02-28", generic.MustParseDate("2025-01-31").AddMonths(1).String())
	assert.Equal(t, "2025-04-30", generic.MustParseDate("2025-03-31").AddMonths(1).String())
}

func TestAddMonths_ComputedFromAnchorRestoresDay(t *testing.T) {
	// GIVEN: A schedule anchored on Jan 31
	// WHEN: Computing each date from the anchor rather than chaining
	// THEN: March is back on the 31st even though February was clamped

	anchor := generic.MustParseDate("2024-01-31")
	assert.Equal(t, "2024-02-29", anchor.AddMonths(1).String())
	assert.Equal(t, "2024-03-31", anchor.AddMonths(2).String())

	chained := anchor.AddMonths(1).AddMonths(1)
	assert.Equal(t, "2024-03-29", chained.String(), "chaining loses the day")
}

func TestAddMonths_CrossesYearsBothWays(t *testing.T) {
	d := generic.MustParseDate("2025-11-15")

	assert.Equal(t, "2026-02-15", d.AddMonths(3).String())
	assert.Equal(t, "2024-12-15", d.AddMonths(-11).String())
	assert.Equal(t, "2023-11-15", d.AddMonths(-24).String())
	assert.Equal(t, "2075-11-15", d.AddMonths(600).String())
}

func TestAddDays(t *testing.T) {
	assert.Equal(t, "2024-03-01", generic.MustParseDate("2024-02-28").AddDays(2).String())
	assert.Equal(t, "2024-12-31", generic.MustParseDate("2025-01-01").AddDays(-1).String())
}

func TestDaysIn_LeapYears(t *testing.T) {
	assert.Equal(t, 29, generic.DaysIn(2024, time.February))
	assert.Equal(t, 28, generic.DaysIn(2100, time.February))
	assert.Equal(t, 29, generic.DaysIn(2000, time.February))
	assert.Equal(t, 31, generic.DaysIn(2025, time.December))
}

// =============================================================================
// PARSING & JSON
// =============================================================================

func TestParseDate_Malformed(t *testing.T) {
	for _, in := range []string{"", "2025-13-01", "15.03.2025", "2025-02-30"} {
		_, err := generic.ParseDate(in)
		var dateErr *generic.MalformedDateError
		require.ErrorAs(t, err, &dateErr, "input %q", in)
		assert.Equal(t, in, dateErr.Input)
		assert.True(t, generic.IsClientError(err))
	}
}

func TestTimePoint_JSON(t *testing.T) {
	type wrapper struct {
		Date generic.TimePoint  `json:"date"`
		Opt  *generic.TimePoint `json:"opt,omitempty"`
	}

	data, err := json.Marshal(wrapper{Date: generic.NewTimePoint(2025, time.March, 5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-03-05"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2024-02-29","opt":"2024-03-01"}`), &w))
	assert.Equal(t, "2024-02-29", w.Date.String())
	require.NotNil(t, w.Opt)
	assert.Equal(t, "2024-03-01", w.Opt.String())

	err = json.Unmarshal([]byte(`{"date":"03/05/2025"}`), &w)
	var dateErr *generic.MalformedDateError
	assert.ErrorAs(t, err, &dateErr)
}

func TestMonthsBetween(t *testing.T) {
	assert.Equal(t, 0, generic.MonthsBetween(generic.MustParseDate("2025-03-01"), generic.MustParseDate("2025-03-31")))
	assert.Equal(t, 13, generic.MonthsBetween(generic.MustParseDate("2024-12-31"), generic.MustParseDate("2026-01-01")))
	assert.Equal(t, -2, generic.MonthsBetween(generic.MustParseDate("2025-03-01"), generic.MustParseDate("2025-01-31")))
}

func TestPeriod_ContainsAndValidate(t *testing.T) {
	p := generic.Period{Start: generic.MustParseDate("2025-03-01"), End: generic.MustParseDate("2025-04-30")}

	assert.True(t, p.Contains(generic.MustParseDate("2025-03-01")))
	assert.True(t, p.Contains(generic.MustParseDate("2025-04-30")))
	assert.False(t, p.Contains(generic.MustParseDate("2025-05-01")))
	assert.Equal(t, 2, p.Months())
	assert.NoError(t, p.Validate())

	assert.True(t, p.Overlaps(generic.Period{Start: p.End, End: generic.MustParseDate("2025-06-01")}))
	assert.False(t, p.Overlaps(generic.Period{Start: generic.MustParseDate("2025-05-01"), End: generic.MustParseDate("2025-06-01")}))

	bad := generic.Period{Start: p.End, End: p.Start}
	assert.ErrorIs(t, bad.Validate(), generic.ErrInvalidPeriod)
}
