package us

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"marketpulse/internal/util"
)

// calendarSource is the part of the Alpaca trading client used to find
// session days.
type calendarSource interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// NewCalendar returns an Alpaca trading-API client usable as the session
// calendar of a DailyBarGatherer.
func NewCalendar(apiKey, apiSecret, baseURL string) *alpaca.Client {
	return alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
}

// latestFinishedTradingDay returns the most recent session whose daily bar
// is final at now: today counts only after 20:05 ET, once extended-hours
// data has settled. Without a calendar it falls back to the last completed
// weekday.
func latestFinishedTradingDay(cal calendarSource, now time.Time) (time.Time, error) {
	if cal == nil {
		return util.LastCompletedWeekday(now), nil
	}

	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}
	now = now.In(et)

	days, err := cal.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}

	today := now.Format(time.DateOnly)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, et)
	for i := len(days) - 1; i >= 0; i-- {
		if days[i].Date == today && !now.After(cutoff) {
			continue
		}
		d, err := util.ParseDay(days[i].Date)
		if err != nil {
			continue
		}
		if days[i].Date <= today {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("no finished trading day in the week before %s", today)
}
