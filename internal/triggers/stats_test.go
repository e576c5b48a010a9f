package triggers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil)
	require.Equal(t, 0, stats.TotalExecutions)
	require.Equal(t, 1.0, stats.SuccessRate)
	require.Equal(t, 0, stats.ErrorCount)
	require.Equal(t, 0, stats.PeakExecutionsPerHour)
	require.Zero(t, stats.AverageExecutionTime)
	require.Nil(t, stats.LastExecution)
}

func TestComputeStats(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	entries := []LogEntry{
		{Timestamp: base.Add(50 * time.Minute), DurationMs: 10, Success: true},
		{Timestamp: base.Add(55 * time.Minute), DurationMs: 20, Success: false, Error: "x"},
		{Timestamp: base.Add(70 * time.Minute), DurationMs: 30, Success: true},
		{Timestamp: base.Add(75 * time.Minute), DurationMs: 40, Success: true},
		{Timestamp: base.Add(80 * time.Minute), DurationMs: 50, Success: true},
		{Timestamp: base.Add(5 * time.Minute), DurationMs: 30, Success: false, Error: "y"},
	}

	stats := ComputeStats(entries)
	require.Equal(t, 6, stats.TotalExecutions)
	require.Equal(t, 2, stats.ErrorCount)
	require.InDelta(t, 4.0/6.0, stats.SuccessRate, 1e-9)
	require.InDelta(t, 30.0, stats.AverageExecutionTime, 1e-9)
	require.NotNil(t, stats.LastExecution)
	require.True(t, stats.LastExecution.Equal(base.Add(80*time.Minute)))

	// 10:00-11:00 holds three entries, 11:00-12:00 holds three. A rolling
	// window from 10:50 would see five.
	require.Equal(t, 3, stats.PeakExecutionsPerHour)
}

func TestComputeStats_BucketsUseUTC(t *testing.T) {
	loc := time.FixedZone("plus-half", 30*60)
	entries := []LogEntry{
		{Timestamp: time.Date(2026, 5, 1, 10, 40, 0, 0, loc), Success: true},
		{Timestamp: time.Date(2026, 5, 1, 10, 20, 0, 0, loc), Success: true},
	}

	// 10:40+00:30 is 10:10 UTC and 10:20+00:30 is 09:50 UTC.
	require.Equal(t, 1, ComputeStats(entries).PeakExecutionsPerHour)
}
