package model

// TimelineEntry is one row of the derived, date-separated view: either a
// message or a synthetic separator. Never persisted, recomputed from the
// message set on every mutation.
type TimelineEntry struct {
	Message   *Message       `json:"message,omitempty"`
	Separator *DateSeparator `json:"separator,omitempty"`
}

// DateSeparator marks a local-calendar-day boundary in the timeline.
type DateSeparator struct {
	DateKey string `json:"dateKey"` // YYYY-MM-DD in the display timezone
	Label   string `json:"label"`   // Today / Yesterday / Mon, Jan 2 ...
}

// PaginationCursor 每个会话的历史拉取进度，只由 timeline engine 修改。
type PaginationCursor struct {
	ConversationID string `json:"conversationId"`
	Page           int    `json:"page"` // next page to request, starts at 1
	Limit          int    `json:"limit"`
	HasMore        bool   `json:"hasMore"`
}
