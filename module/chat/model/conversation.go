package model

import "time"

// 会话状态
const (
	ConversationActive  = "active"
	ConversationPending = "pending" // awaiting recipient admission
)

type Participant struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Conversation 表示会话列表里的一条会话
type Conversation struct {
	ID           string        `json:"id"`
	Participants []Participant `json:"participants"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	UnreadCount  int           `json:"unreadCount"`
	Status       string        `json:"status"` // active | pending
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Peer returns the other participant of a 1:1 conversation.
func (c *Conversation) Peer(selfID string) (Participant, bool) {
	if !c.HasParticipant(selfID) {
		return Participant{}, false
	}
	for _, p := range c.Participants {
		if p.UserID != selfID {
			return p, true
		}
	}
	return Participant{}, false
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
