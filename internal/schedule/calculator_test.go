package schedule

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/connsync/internal/clock"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time {
	return &t
}

func TestTimeToWait_ManualAndInactive(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(clock.NewFake(baseTime))
	hourly := Descriptor{Type: TypeBasic, Units: 1, TimeUnit: TimeUnitHours}

	tests := []struct {
		name       string
		descriptor Descriptor
		active     bool
		lastRun    *time.Time
		want       time.Duration
	}{
		{
			name:       "manual schedule never fires",
			descriptor: Descriptor{Type: TypeManual},
			active:     true,
			want:       Forever,
		},
		{
			name:       "inactive connection never fires",
			descriptor: hourly,
			active:     false,
			lastRun:    ptr(baseTime.Add(-2 * time.Hour)),
			want:       Forever,
		},
		{
			name:       "never run basic schedule runs immediately",
			descriptor: hourly,
			active:     true,
			want:       0,
		},
		{
			name:       "never run cron schedule runs immediately",
			descriptor: Descriptor{Type: TypeCron, CronExpression: "0 0 3 * * ?", Timezone: "UTC"},
			active:     true,
			want:       0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := calc.TimeToWait(tt.descriptor, tt.active, tt.lastRun)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeToWait_IntervalProperty(t *testing.T) {
	t.Parallel()

	interval := 6 * time.Hour
	d := Descriptor{Type: TypeBasic, Units: 6, TimeUnit: TimeUnitHours}
	t0 := baseTime

	// timeToWait(now) == max(0, t0 + I - now) for a sweep of "now" values
	for offset := -time.Hour; offset <= 8*time.Hour; offset += 17 * time.Minute {
		now := t0.Add(offset)
		calc := NewCalculator(clock.NewFake(now))

		got, err := calc.TimeToWait(d, true, ptr(t0))
		require.NoError(t, err)
		assert.Equal(t, max(0, t0.Add(interval).Sub(now)), got, "now offset %s", offset)
	}
}

func TestInterval_Units(t *testing.T) {
	t.Parallel()

	tests := []struct {
		unit TimeUnit
		want time.Duration
	}{
		{TimeUnitMinutes, 3 * time.Minute},
		{TimeUnitHours, 3 * time.Hour},
		{TimeUnitDays, 3 * 24 * time.Hour},
		{TimeUnitWeeks, 3 * 7 * 24 * time.Hour},
		{TimeUnitMonths, 3 * 30 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(string(tt.unit), func(t *testing.T) {
			t.Parallel()
			got, err := Descriptor{Type: TypeBasic, Units: 3, TimeUnit: tt.unit}.Interval()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeToWait_CronDebounce(t *testing.T) {
	t.Parallel()

	// Fires every 10 seconds, far more often than the debounce allows
	d := Descriptor{Type: TypeCron, CronExpression: "*/10 * * * * *", Timezone: "UTC"}

	fake := clock.NewFake(baseTime)
	calc := NewCalculator(fake)

	last := baseTime
	for i := 0; i < 20; i++ {
		// The orchestrator wakes up right after the previous run started
		fake.Set(last.Add(time.Duration(i%3) * time.Second))

		next, ok, err := calc.NextRun(d, true, ptr(last))
		require.NoError(t, err)
		require.True(t, ok)
		assert.GreaterOrEqual(t, next.Sub(last), MinCronInterval)
		last = next
	}
}

func TestTimeToWait_CronLateWakeup(t *testing.T) {
	t.Parallel()

	// Top of every minute; the scheduler woke up 5 seconds after the previous run
	d := Descriptor{Type: TypeCron, CronExpression: "0 * * * * ?", Timezone: "UTC"}
	lastRun := baseTime
	calc := NewCalculator(clock.NewFake(baseTime.Add(5 * time.Second)))

	wait, err := calc.TimeToWait(d, true, ptr(lastRun))
	require.NoError(t, err)
	// Must not double-fire within the same minute: next fire is 12:01:00
	assert.Equal(t, 55*time.Second, wait)
}

func TestTimeToWait_CronOverdueRunsImmediately(t *testing.T) {
	t.Parallel()

	d := Descriptor{Type: TypeCron, CronExpression: "0 0 * * * ?", Timezone: "UTC"}
	// Last run was long ago and "now" is exactly on a fire time
	calc := NewCalculator(clock.NewFake(baseTime))

	wait, err := calc.TimeToWait(d, true, ptr(baseTime.Add(-48*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), wait)
}

func TestTimeToWait_CronTimezone(t *testing.T) {
	t.Parallel()

	// 09:00 in New York is 14:00 UTC in January
	d := Descriptor{Type: TypeCron, CronExpression: "0 0 9 * * ?", Timezone: "America/New_York"}
	calc := NewCalculator(clock.NewFake(baseTime))

	wait, err := calc.TimeToWait(d, true, ptr(baseTime.Add(-22*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, wait)
}

func TestTimeToWait_ConfigErrors(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(clock.NewFake(baseTime))
	lastRun := ptr(baseTime.Add(-time.Hour))

	tests := []struct {
		name       string
		descriptor Descriptor
		wantField  string
	}{
		{
			name:       "unparseable cron",
			descriptor: Descriptor{Type: TypeCron, CronExpression: "not a cron", Timezone: "UTC"},
			wantField:  "schedule.cronExpression",
		},
		{
			name:       "unknown timezone",
			descriptor: Descriptor{Type: TypeCron, CronExpression: "0 * * * *", Timezone: "Mars/Olympus"},
			wantField:  "schedule.timezone",
		},
		{
			name:       "missing timezone",
			descriptor: Descriptor{Type: TypeCron, CronExpression: "0 * * * *"},
			wantField:  "schedule.timezone",
		},
		{
			name:       "year field",
			descriptor: Descriptor{Type: TypeCron, CronExpression: "0 0 12 * * ? 2030", Timezone: "UTC"},
			wantField:  "schedule.cronExpression",
		},
		{
			name:       "zero units",
			descriptor: Descriptor{Type: TypeBasic, TimeUnit: TimeUnitHours},
			wantField:  "schedule.units",
		},
		{
			name:       "unknown unit",
			descriptor: Descriptor{Type: TypeBasic, Units: 1, TimeUnit: "fortnights"},
			wantField:  "schedule.timeUnit",
		},
		{
			name:       "missing schedule",
			descriptor: Descriptor{},
			wantField:  "schedule.type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := calc.TimeToWait(tt.descriptor, true, lastRun)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSchedule))

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestNextRun_ManualHasNoNextRun(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(clock.NewFake(baseTime))
	_, ok, err := calc.NextRun(Descriptor{Type: TypeManual}, true, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}
