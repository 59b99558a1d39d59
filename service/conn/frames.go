package conn

import (
	"encoding/json"

	"github.com/techwave-ventures/Connektx-sub004/module/chat/model"
)

// 帧类型
const (
	FrameAuthOK    = "auth_ok"
	FrameAuthError = "auth_error"
	FrameMessage   = "message"
	FrameSeen      = "seen"
)

// Frame is the JSON envelope on the socket. The server pushes exactly one
// frame type the sync engine cares about (message); auth frames only appear
// as the first frame after the handshake.
type Frame struct {
	Type    string         `json:"type"`
	Reason  string         `json:"reason,omitempty"`  // auth_error
	Message *model.Message `json:"message,omitempty"` // message push
	UserID  string         `json:"userId,omitempty"`  // seen signal origin
	ConvID  string         `json:"conversationId,omitempty"`
}

func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Frame) Encode() []byte {
	b, _ := json.Marshal(f)
	return b
}
