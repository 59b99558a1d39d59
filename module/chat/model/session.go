package model

import (
	"github.com/techwave-ventures/Connektx-sub004/tools/security"
)

// Session lives for the authenticated app lifetime. It owns the credential
// the connection manager hands to the socket handshake.
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// NewSession derives the user id from the token's sub claim.
func NewSession(token string) (*Session, error) {
	uid, err := security.Subject(token)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, UserID: uid}, nil
}
