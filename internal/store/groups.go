package store

import (
	"time"

	"github.com/chatclient/internal/model"
)

// Group is a run of messages sharing one calendar-day section header.
type Group struct {
	Label    string
	Messages []model.Message
}

// GroupByDate buckets chronologically ordered messages into date-labeled
// groups without changing their order. Day boundaries use the local wall
// clock of "now".
func GroupByDate(messages []model.Message, now time.Time) []Group {
	var groups []Group
	for _, m := range messages {
		label := dateLabel(m.CreatedAt, now)
		if n := len(groups); n > 0 && groups[n-1].Label == label {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, Group{Label: label, Messages: []model.Message{m}})
	}
	return groups
}

// dateLabel renders Today / Yesterday / a weekday name within the last
// seven days / the full date otherwise.
func dateLabel(t, now time.Time) string {
	t = t.In(now.Location())
	days := daysBetween(t, now)
	switch {
	case days == 0:
		return "Today"
	case days == 1:
		return "Yesterday"
	case days >= 2 && days <= 7:
		return t.Weekday().String()
	default:
		return t.Format("Mon Jan 02, 2006")
	}
}

// daysBetween counts calendar days between t and now (negative for
// timestamps in the future). The local dates are re-anchored in UTC so a
// 23- or 25-hour DST day still counts as exactly one day.
func daysBetween(t, now time.Time) int {
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	tMid := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	nMid := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(nMid.Sub(tMid) / (24 * time.Hour))
}
