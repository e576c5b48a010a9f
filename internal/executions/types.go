// Package executions persists the trigger execution log in SQLite and
// prunes it on a cron schedule.
package executions

import "time"

// Filter narrows a List query. Zero values match everything.
type Filter struct {
	TriggerID   string
	EntityClass string
	Success     *bool
	Since       time.Time
	Limit       int
	Offset      int
}
