package server

import (
	"context"
	"time"

	"github.com/woozymasta/mcwatch/internal/models"
)

// monthWindows returns the start of the current month, the start of the
// previous month and the same instant one month ago, clamped to the end of
// the previous month.
func monthWindows(now time.Time) (thisMonth, lastMonth, lastMonthToDate time.Time) {
	now = now.UTC()
	thisMonth = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonth = thisMonth.AddDate(0, -1, 0)

	lastMonthToDate = now.AddDate(0, -1, 0)
	if !lastMonthToDate.Before(thisMonth) {
		lastMonthToDate = thisMonth
	}

	return thisMonth, lastMonth, lastMonthToDate
}

// serverStats derives vote and check counters from range filters over the
// append-only history.
func (s *Server) serverStats(ctx context.Context, serverID int64, now time.Time) (*models.ServerStats, error) {
	thisMonth, lastMonth, lastMonthToDate := monthWindows(now)
	stats := &models.ServerStats{ServerID: serverID}

	counters := []struct {
		dst   *int64
		count func() (int64, error)
	}{
		{&stats.Votes, func() (int64, error) { return s.storage.CountVotesSince(ctx, serverID, time.Time{}) }},
		{&stats.VotesThisMonth, func() (int64, error) { return s.storage.CountVotesSince(ctx, serverID, thisMonth) }},
		{&stats.VotesLastMonthToDate, func() (int64, error) {
			return s.storage.CountVotesBetween(ctx, serverID, lastMonth, lastMonthToDate)
		}},
		{&stats.Checks, func() (int64, error) { return s.storage.CountChecksSince(ctx, serverID, time.Time{}) }},
		{&stats.ChecksThisMonth, func() (int64, error) { return s.storage.CountChecksSince(ctx, serverID, thisMonth) }},
		{&stats.ChecksLastMonthToDate, func() (int64, error) {
			return s.storage.CountChecksBetween(ctx, serverID, lastMonth, lastMonthToDate)
		}},
	}

	for _, c := range counters {
		n, err := c.count()
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}

	return stats, nil
}
