package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailySpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "07:00", want: "0 7 * * *"},
		{in: "18:30", want: "30 18 * * *"},
		{in: "00:05", want: "5 0 * * *"},
		{in: "7am", wantErr: true},
		{in: "25:00", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := DailySpec(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextRun(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 10:00 UTC is 06:00 in New York in October
	from := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	next, err := NextRun("07:00", loc, from)
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2026, 10, 18, 7, 0, 0, 0, loc)), "got %s", next)

	next, err = NextRun("05:30", loc, from)
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2026, 10, 19, 5, 30, 0, 0, loc)), "got %s", next)
}

func TestNewInvalidTimezone(t *testing.T) {
	_, err := New("Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestAddAndRemoveJobs(t *testing.T) {
	s, err := New("UTC")
	require.NoError(t, err)

	noop := func(context.Context) error { return nil }

	require.NoError(t, s.AddDailyJob("briefing", "07:00", noop))
	assert.Error(t, s.AddDailyJob("briefing", "08:00", noop), "names are unique")
	assert.Error(t, s.AddDailyJob("other", "noon", noop))
	assert.Error(t, s.AddJob("bad", "not a cron spec", noop))

	s.Start()
	defer s.Stop()

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "briefing", jobs[0].Name)

	s.RemoveJob("briefing")
	assert.Empty(t, s.ListJobs())
}

func TestRunNowAppliesTimeout(t *testing.T) {
	s, err := New("UTC")
	require.NoError(t, err)
	s.JobTimeout = time.Hour

	var deadline time.Time
	err = s.RunNow(context.Background(), "briefing", func(ctx context.Context) error {
		var ok bool
		deadline, ok = ctx.Deadline()
		require.True(t, ok)
		return errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.WithinDuration(t, time.Now().Add(time.Hour), deadline, time.Minute)
}
