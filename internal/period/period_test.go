package period

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func referenceRange() Range {
	return Range{YearStart: 2002, YearEnd: 2022, MonthStart: 1, MonthEnd: 12}
}

func TestRange_ReferenceHas252Periods(t *testing.T) {
	r := referenceRange()
	require.NoError(t, r.Validate())
	assert.Equal(t, 252, r.Len())

	ps := r.Slice()
	require.Len(t, ps, 252)
	assert.Equal(t, Period{Year: 2002, Month: 1}, ps[0])
	assert.Equal(t, Period{Year: 2002, Month: 12}, ps[11])
	assert.Equal(t, Period{Year: 2003, Month: 1}, ps[12])
	assert.Equal(t, Period{Year: 2022, Month: 12}, ps[251])
}

func TestRange_AllIsReiterable(t *testing.T) {
	r := Range{YearStart: 2020, YearEnd: 2021, MonthStart: 6, MonthEnd: 7}
	var first, second []Period
	for p := range r.All() {
		first = append(first, p)
	}
	for p := range r.All() {
		second = append(second, p)
	}
	assert.Equal(t, first, second)
	assert.Len(t, first, 4)
}

func TestRange_AllStopsEarly(t *testing.T) {
	n := 0
	for range referenceRange().All() {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestRange_Validate(t *testing.T) {
	tests := []struct {
		name    string
		r       Range
		wantErr string
	}{
		{"reference", referenceRange(), ""},
		{"single month", Range{2010, 2010, 5, 5}, ""},
		{"years reversed", Range{2022, 2002, 1, 12}, "empty year range"},
		{"months reversed", Range{2002, 2022, 12, 1}, "empty month range"},
		{"month zero", Range{2002, 2022, 0, 12}, "within 1..12"},
		{"month thirteen", Range{2002, 2022, 1, 13}, "within 1..12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRange_LenEmpty(t *testing.T) {
	assert.Equal(t, 0, Range{YearStart: 2022, YearEnd: 2002, MonthStart: 1, MonthEnd: 12}.Len())
	assert.Empty(t, Range{YearStart: 2002, YearEnd: 2002, MonthStart: 6, MonthEnd: 5}.Slice())
}

func TestPeriod_Bounds(t *testing.T) {
	p := Period{Year: 2004, Month: 2}
	assert.Equal(t, time.Date(2004, 2, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2004, 3, 1, 0, 0, 0, 0, time.UTC), p.End())
	assert.True(t, p.Contains(time.Date(2004, 2, 29, 23, 59, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2004, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2004, 1, 31, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2004-02", p.String())
}

func TestPeriod_DecemberRollsOver(t *testing.T) {
	p := Period{Year: 2022, Month: 12}
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), p.End())
}

func TestPeriod_TimeStartMillis(t *testing.T) {
	assert.Equal(t, int64(1009843200000), Period{Year: 2002, Month: 1}.TimeStartMillis())
}

func TestParseDateRange(t *testing.T) {
	dr, err := ParseDateRange("2002-01-01", "2024-12-31")
	require.NoError(t, err)

	assert.True(t, dr.Contains(time.Date(2002, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, dr.Contains(time.Date(2024, 12, 31, 18, 0, 0, 0, time.UTC)))
	assert.False(t, dr.Contains(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, dr.Contains(time.Date(2001, 12, 31, 23, 0, 0, 0, time.UTC)))
}

func TestParseDateRange_Errors(t *testing.T) {
	_, err := ParseDateRange("2024-12-31", "2002-01-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after end date")

	_, err = ParseDateRange("2002/01/01", "2024-12-31")
	require.Error(t, err)

	_, err = ParseDateRange("2002-01-01", "not-a-date")
	require.Error(t, err)
}

func TestDateRange_SameDay(t *testing.T) {
	dr, err := ParseDateRange("2010-06-15", "2010-06-15")
	require.NoError(t, err)
	assert.True(t, dr.Contains(time.Date(2010, 6, 15, 12, 0, 0, 0, time.UTC)))
	assert.True(t, dr.Overlaps(Period{Year: 2010, Month: 6}))
	assert.False(t, dr.Overlaps(Period{Year: 2010, Month: 7}))
}

func TestDateRange_Clip(t *testing.T) {
	dr, err := ParseDateRange("2002-01-15", "2024-12-31")
	require.NoError(t, err)

	got, ok := dr.Clip(Period{Year: 2002, Month: 1})
	require.True(t, ok)
	assert.Equal(t, "2002-01-15", got.Start.Format(DateLayout))
	assert.Equal(t, "2002-01-31", got.End.Format(DateLayout))
	assert.True(t, got.Contains(time.Date(2002, 1, 31, 23, 0, 0, 0, time.UTC)))
	assert.False(t, got.Contains(time.Date(2002, 2, 1, 0, 0, 0, 0, time.UTC)))

	got, ok = dr.Clip(Period{Year: 2024, Month: 2})
	require.True(t, ok)
	assert.Equal(t, "2024-02-01", got.Start.Format(DateLayout))
	assert.Equal(t, "2024-02-29", got.End.Format(DateLayout))

	_, ok = dr.Clip(Period{Year: 2025, Month: 1})
	assert.False(t, ok)
	_, ok = dr.Clip(Period{Year: 2001, Month: 12})
	assert.False(t, ok)
}

func TestDateRange_TextRoundTrip(t *testing.T) {
	dr, err := ParseDateRange("2002-01-01", "2024-12-31")
	require.NoError(t, err)

	b, err := json.Marshal(dr)
	require.NoError(t, err)
	assert.JSONEq(t, `"2002-01-01/2024-12-31"`, string(b))

	var got DateRange
	require.NoError(t, json.Unmarshal(b, &got))
	assert.True(t, dr.Start.Equal(got.Start))
	assert.True(t, dr.End.Equal(got.End))

	assert.Error(t, json.Unmarshal([]byte(`"2002-01-01"`), &got))
}
