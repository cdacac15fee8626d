/*
ratelimit.go - Daily cap and business-hours throttling

PURPOSE:
  Answers "how many messages may this campaign send right now?". Capacity
  is zero outside Mon-Fri business hours in the campaign's time zone;
  inside the window it is the remaining daily cap, clamped to the
  per-tick batch size so sends spread across the day instead of bursting
  at 9am.

DESIGN:
  - Pure read over the send log; reserving capacity writes nothing.
  - Business day boundaries are computed in the campaign's configured
    time zone, then converted for the UTC send-log query.
  - Never returns a negative number and never errors into one.

SEE ALSO:
  - api/scheduler.go: calls ReserveCapacity once per tick per campaign
*/
package campaign

import (
	"context"
	"time"
)

// RateLimiter enforces the daily send cap and business-hours window.
type RateLimiter struct {
	Sends SendLog
}

func NewRateLimiter(sends SendLog) *RateLimiter {
	return &RateLimiter{Sends: sends}
}

// ReserveCapacity returns how many sends the campaign may dispatch at
// the given instant: 0 on weekends or outside [WindowStartHour,
// WindowEndHour) local time, otherwise min(BatchSize, DailyCap minus
// sends already logged for the local business day).
func (rl *RateLimiter) ReserveCapacity(ctx context.Context, c *Campaign, at time.Time) (int, error) {
	local := at.In(c.Location())

	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return 0, nil
	}
	if local.Hour() < c.WindowStartHour || local.Hour() >= c.WindowEndHour {
		return 0, nil
	}

	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	sentToday, err := rl.Sends.CountSendsBetween(ctx, c.ID, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return 0, err
	}

	remaining := c.DailyCap - sentToday
	if remaining <= 0 {
		return 0, nil
	}
	if remaining > c.BatchSize {
		return c.BatchSize, nil
	}
	return remaining, nil
}
