package triggers

import "time"

// ComputeStats folds log entries into aggregate statistics.
//
// PeakExecutionsPerHour counts entries per UTC clock hour
// (Timestamp truncated to the hour) and reports the busiest bucket.
func ComputeStats(entries []LogEntry) Stats {
	stats := Stats{SuccessRate: 1.0}
	if len(entries) == 0 {
		return stats
	}

	var (
		successes int
		totalMs   float64
		last      time.Time
		buckets   = make(map[time.Time]int)
	)

	for _, e := range entries {
		if e.Success {
			successes++
		} else {
			stats.ErrorCount++
		}
		totalMs += e.DurationMs

		ts := e.Timestamp.UTC()
		if ts.After(last) {
			last = ts
		}

		hour := ts.Truncate(time.Hour)
		buckets[hour]++
		if buckets[hour] > stats.PeakExecutionsPerHour {
			stats.PeakExecutionsPerHour = buckets[hour]
		}
	}

	stats.TotalExecutions = len(entries)
	stats.SuccessRate = float64(successes) / float64(len(entries))
	stats.AverageExecutionTime = totalMs / float64(len(entries))
	stats.LastExecution = &last

	return stats
}
