package conn

import "github.com/techwave-ventures/Connektx-sub004/module/chat/model"

type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventConnectError EventType = "connect_error"
	EventMessage      EventType = "message"
	EventSeen         EventType = "seen"
)

// Event is what subscribers receive. Lifecycle events drive the
// connectivity indicator and the post-reconnect catch-up fetch; message
// events feed the timeline engine.
type Event struct {
	Type    EventType
	Reason  string
	Message *model.Message
	UserID  string
	ConvID  string
}
