package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miketropi/wp-backup/internal/model"
)

func TestPeriodKey(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 30, 15, 0, time.UTC)
	tests := []struct {
		freq model.Frequency
		want string
	}{
		{model.FrequencyHourly, "2025-03-14-09"},
		{model.FrequencyDaily, "2025-03-14"},
		{model.FrequencyWeekly, "2025-11"},
		{model.FrequencyMonthly, "2025-03"},
		{model.FrequencyYearly, "2025"},
		{model.FrequencyCustom, "custom-1741944615"},
	}
	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			got, err := PeriodKey(tt.freq, at, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := PeriodKey(tt.freq, at, "")
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestPeriodKey_UsesUTC(t *testing.T) {
	tz := time.FixedZone("UTC+10", 10*3600)
	at := time.Date(2025, 3, 15, 1, 0, 0, 0, tz)
	got, err := PeriodKey(model.FrequencyDaily, at, "")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14", got)
}

func TestPeriodKey_WeeklyBoundaries(t *testing.T) {
	key := func(ts time.Time) string {
		k, err := PeriodKey(model.FrequencyWeekly, ts, "")
		require.NoError(t, err)
		return k
	}
	monday := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2025, 3, 16, 23, 59, 59, 0, time.UTC)
	nextMonday := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, key(monday), key(sunday))
	assert.NotEqual(t, key(sunday), key(nextMonday))

	// ISO week-numbering year differs from the calendar year here.
	assert.Equal(t, "2025-01", key(time.Date(2024, 12, 30, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2020-53", key(time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)))
}

func TestPeriodKey_CustomCron(t *testing.T) {
	expr := "0 3 * * *"
	morning := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	got, err := PeriodKey(model.FrequencyCustom, morning, expr)
	require.NoError(t, err)
	assert.Equal(t, "custom-1741921200", got) // 2025-03-14T03:00:00Z

	later, err := PeriodKey(model.FrequencyCustom, morning.Add(10*time.Hour), expr)
	require.NoError(t, err)
	assert.Equal(t, got, later)

	early := time.Date(2025, 3, 14, 2, 0, 0, 0, time.UTC)
	prev, err := PeriodKey(model.FrequencyCustom, early, expr)
	require.NoError(t, err)
	assert.Equal(t, "custom-1741834800", prev) // 2025-03-13T03:00:00Z

	exact := time.Date(2025, 3, 14, 3, 0, 0, 0, time.UTC)
	onTime, err := PeriodKey(model.FrequencyCustom, exact, expr)
	require.NoError(t, err)
	assert.Equal(t, got, onTime)

	yearly, err := PeriodKey(model.FrequencyCustom, morning, "0 0 1 1 *")
	require.NoError(t, err)
	assert.Equal(t, "custom-1735689600", yearly) // 2025-01-01T00:00:00Z
}

func TestPeriodKey_Errors(t *testing.T) {
	_, err := PeriodKey(model.FrequencyCustom, time.Now(), "not a cron")
	assert.ErrorIs(t, err, model.ErrConfigInvalid)

	_, err = PeriodKey("fortnightly", time.Now(), "")
	assert.ErrorIs(t, err, model.ErrConfigInvalid)
}
