package model

import (
	"fmt"
	"time"
)

// RequestState 消息请求状态机：pending → accepted | rejected，两个终态都
// 不可逆。A rejected sender that writes again shows up as a brand new
// pending request with a new conversation identity.
type RequestState string

const (
	RequestPending  RequestState = "pending"
	RequestAccepted RequestState = "accepted"
	RequestRejected RequestState = "rejected"
)

// Transition validates a state change without applying it.
func (s RequestState) Transition(to RequestState) error {
	if s == RequestPending && (to == RequestAccepted || to == RequestRejected) {
		return nil
	}
	if s == to {
		// Double accept/reject is idempotent by outcome.
		return nil
	}
	return fmt.Errorf("invalid request transition %s -> %s", s, to)
}

func (s RequestState) Terminal() bool {
	return s == RequestAccepted || s == RequestRejected
}

// MessageRequest 一条待准入的陌生人会话
type MessageRequest struct {
	ID           string       `json:"id"` // equals the pending conversation id
	From         Participant  `json:"from"`
	FirstMessage *Message     `json:"firstMessage,omitempty"`
	State        RequestState `json:"state"`
	CreatedAt    time.Time    `json:"createdAt"`
}
