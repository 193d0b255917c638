package tasks

import (
	"context"
	"log/slog"
	"slices"
)

// newStatusReportTask logs the connection state and the size of every channel history.
func newStatusReportTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "status_report")

	return func(ctx context.Context) error {
		attrs := make([]any, 0, 10)
		if deps.Connection != nil {
			st := deps.Connection.Status()
			attrs = append(attrs,
				"state", st.State,
				"nick", st.Nick,
				"session_id", st.SessionID,
				"failed_attempts", st.Attempts,
				"connections", st.Connections,
				"next_delay", st.Delay,
			)
		}
		if deps.Breaker != nil {
			attrs = append(attrs, "breaker", deps.Breaker.BreakerState())
		}

		if deps.Store != nil {
			stats := deps.Store.Stats()
			channels := make([]string, 0, len(stats))
			for ch := range stats {
				channels = append(channels, ch)
			}
			slices.Sort(channels)

			sizes := make([]any, 0, len(channels))
			for _, ch := range channels {
				sizes = append(sizes, slog.Int(ch, stats[ch]))
			}
			attrs = append(attrs, slog.Group("history", sizes...), "history_limit", deps.Store.Limit())
		}

		log.InfoContext(ctx, "Status report", attrs...)
		return nil
	}
}
