package model

import "time"

// 分享引用类型
const (
	SharedPost     = "post"
	SharedNews     = "news"
	SharedShowcase = "showcase"
	SharedUser     = "user"
)

// SharedRef points at an app entity forwarded into the chat instead of a
// text body.
type SharedRef struct {
	Kind string `json:"kind"` // post | news | showcase | user
	ID   string `json:"id"`
}

// Message 一条消息。服务端分配的 ID 是全局唯一且单调的，合并去重只看 ID。
// Immutable once created.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Content        string     `json:"content,omitempty"`
	Shared         *SharedRef `json:"shared,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	SeenBy         []string   `json:"seenBy,omitempty"`
}

// Less is the total order of a conversation timeline: non-decreasing
// CreatedAt, ties broken by id so the result does not depend on which
// channel delivered the message.
func (m *Message) Less(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return LessID(m.ID, other.ID)
}

// LessID compares decimal snowflake ids numerically without parsing:
// a shorter decimal string is always the smaller number.
func LessID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
