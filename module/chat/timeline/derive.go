package timeline

import (
	"sort"
	"time"

	"github.com/techwave-ventures/Connektx-sub004/module/chat/model"
)

// DeriveTimeline turns an unordered message set into the rendered sequence:
// sorted by (createdAt, id) with a separator wherever the local calendar
// day changes. Deterministic for a given (msgs, now, loc); safe to rerun on
// every mutation.
func DeriveTimeline(msgs []*model.Message, now time.Time, loc *time.Location) []model.TimelineEntry {
	if loc == nil {
		loc = time.Local
	}
	sorted := make([]*model.Message, len(msgs))
	copy(sorted, msgs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	out := make([]model.TimelineEntry, 0, len(sorted)+4)
	prevKey := ""
	for _, m := range sorted {
		local := m.CreatedAt.In(loc)
		key := local.Format("2006-01-02")
		if key != prevKey {
			out = append(out, model.TimelineEntry{Separator: &model.DateSeparator{
				DateKey: key,
				Label:   dayLabel(local, now.In(loc)),
			}})
			prevKey = key
		}
		out = append(out, model.TimelineEntry{Message: m})
	}
	return out
}

func dayLabel(day, now time.Time) string {
	dy, dm, dd := day.Date()
	ny, nm, nd := now.Date()
	if dy == ny && dm == nm && dd == nd {
		return "Today"
	}
	yy, ym, yd := now.AddDate(0, 0, -1).Date()
	if dy == yy && dm == ym && dd == yd {
		return "Yesterday"
	}
	if dy == ny {
		return day.Format("Mon, Jan 2")
	}
	return day.Format("Mon, Jan 2, 2006")
}
