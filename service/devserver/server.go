package devserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/techwave-ventures/Connektx-sub004/logger"
	"github.com/techwave-ventures/Connektx-sub004/module/chat/model"
	"github.com/techwave-ventures/Connektx-sub004/service/conn"
	"github.com/techwave-ventures/Connektx-sub004/tools/errs"
	"github.com/techwave-ventures/Connektx-sub004/tools/security"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// socket is one registered push target with its private write lock
// (gorilla allows a single concurrent writer).
type socket struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (s *socket) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.ws.WriteMessage(websocket.TextMessage, data)
}

// Server is the local stand-in for the production backend: the full REST
// surface the client core talks to plus the push socket. One instance
// backs the demo binary and the integration tests.
type Server struct {
	store  *Store
	secret []byte

	sockMu sync.Mutex
	socks  map[string]map[*socket]struct{} // userID -> live sockets
}

func NewServer(secret []byte) *Server {
	return &Server{
		store:  NewStore(),
		secret: secret,
		socks:  make(map[string]map[*socket]struct{}),
	}
}

func (s *Server) Store() *Store { return s.store }

// IssueToken mints a session token for a (possibly new) user.
func (s *Server) IssueToken(userID, name string) (string, error) {
	s.store.AddUser(userID, name)
	token, _, err := security.Generate(security.DefaultOptions(s.secret), userID)
	return token, err
}

// Engine assembles the gin router.
func (s *Server) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws", s.handleWS)

	api := r.Group("/", s.authRequired)
	api.GET("/conversations", s.listConversations)
	api.POST("/conversations", s.findOrCreate)
	api.GET("/conversations/requests", s.listRequests)
	api.POST("/conversations/requests/:id/accept", s.acceptRequest)
	api.POST("/conversations/requests/:id/reject", s.rejectRequest)
	api.GET("/conversations/:id/messages", s.listMessages)
	api.POST("/conversations/:id/messages", s.sendMessage)
	api.POST("/conversations/:id/seen", s.markSeen)
	return r
}

// ===== middleware =====

func (s *Server) authRequired(c *gin.Context) {
	raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	uid, err := security.Verify(security.DefaultOptions(s.secret), raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Set("uid", uid)
	c.Next()
}

func uid(c *gin.Context) string { return c.GetString("uid") }

func fail(c *gin.Context, err error) {
	var ce *errs.CodeError
	status := http.StatusInternalServerError
	if errors.As(err, &ce) {
		switch ce.Code {
		case errs.CodeNotFound:
			status = http.StatusNotFound
		case errs.CodeConflict:
			status = http.StatusConflict
		case errs.CodeAuth:
			status = http.StatusUnauthorized
		}
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// ===== REST handlers =====

func (s *Server) listConversations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"conversations": s.store.List(uid(c))})
}

func (s *Server) listRequests(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"requests": s.store.Requests(uid(c))})
}

func (s *Server) findOrCreate(c *gin.Context) {
	var body struct {
		RecipientID string `json:"recipientId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.RecipientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipientId required"})
		return
	}
	conv, err := s.store.FindOrCreate(uid(c), body.RecipientID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) acceptRequest(c *gin.Context) {
	conv, err := s.store.Accept(uid(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) rejectRequest(c *gin.Context) {
	if err := s.store.Reject(uid(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) listMessages(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	msgs, err := s.store.Page(uid(c), c.Param("id"), page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "page": page, "limit": limit})
}

func (s *Server) sendMessage(c *gin.Context) {
	var body struct {
		Content          string `json:"content"`
		SharedPostID     string `json:"sharedPostId"`
		SharedNewsID     string `json:"sharedNewsId"`
		SharedShowcaseID string `json:"sharedShowcaseId"`
		SharedUserID     string `json:"sharedUserId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad body"})
		return
	}
	var shared *model.SharedRef
	switch {
	case body.SharedPostID != "":
		shared = &model.SharedRef{Kind: model.SharedPost, ID: body.SharedPostID}
	case body.SharedNewsID != "":
		shared = &model.SharedRef{Kind: model.SharedNews, ID: body.SharedNewsID}
	case body.SharedShowcaseID != "":
		shared = &model.SharedRef{Kind: model.SharedShowcase, ID: body.SharedShowcaseID}
	case body.SharedUserID != "":
		shared = &model.SharedRef{Kind: model.SharedUser, ID: body.SharedUserID}
	}
	if body.Content == "" && shared == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
		return
	}

	msg, err := s.store.Append(uid(c), c.Param("id"), body.Content, shared, time.Now())
	if err != nil {
		fail(c, err)
		return
	}

	// Push to everyone in the conversation. The sender already has the
	// message via this response; its other devices dedup by id.
	frame := (&conn.Frame{Type: conn.FrameMessage, Message: &msg}).Encode()
	for _, member := range s.store.Participants(msg.ConversationID) {
		s.push(member, frame)
	}

	c.JSON(http.StatusOK, msg)
}

func (s *Server) markSeen(c *gin.Context) {
	peers, err := s.store.Seen(uid(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	frame := (&conn.Frame{Type: conn.FrameSeen, UserID: uid(c), ConvID: c.Param("id")}).Encode()
	for _, peer := range peers {
		s.push(peer, frame)
	}
	c.JSON(http.StatusOK, gin.H{})
}

// ===== socket =====

func (s *Server) handleWS(c *gin.Context) {
	token := c.Query("token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[devserver] upgrade: %v", err)
		return
	}

	userID, verr := security.Verify(security.DefaultOptions(s.secret), token)
	if verr != nil {
		_ = ws.WriteMessage(websocket.TextMessage,
			(&conn.Frame{Type: conn.FrameAuthError, Reason: "invalid token"}).Encode())
		_ = ws.Close()
		return
	}
	if err := ws.WriteMessage(websocket.TextMessage, (&conn.Frame{Type: conn.FrameAuthOK}).Encode()); err != nil {
		_ = ws.Close()
		return
	}

	sock := &socket{ws: ws}
	s.register(userID, sock)
	defer func() {
		s.unregister(userID, sock)
		_ = ws.Close()
	}()

	// The client only sends control frames; keep reading so pings are
	// answered and the close is noticed.
	ws.SetReadLimit(1 << 20)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) register(userID string, sock *socket) {
	s.sockMu.Lock()
	defer s.sockMu.Unlock()
	if s.socks[userID] == nil {
		s.socks[userID] = make(map[*socket]struct{})
	}
	s.socks[userID][sock] = struct{}{}
}

func (s *Server) unregister(userID string, sock *socket) {
	s.sockMu.Lock()
	defer s.sockMu.Unlock()
	if mm := s.socks[userID]; mm != nil {
		delete(mm, sock)
		if len(mm) == 0 {
			delete(s.socks, userID)
		}
	}
}

func (s *Server) push(userID string, data []byte) {
	s.sockMu.Lock()
	targets := make([]*socket, 0, 2)
	for sock := range s.socks[userID] {
		targets = append(targets, sock)
	}
	s.sockMu.Unlock()

	for _, sock := range targets {
		if err := sock.write(data); err != nil {
			logger.Warnf("[devserver] push to %s: %v", userID, err)
		}
	}
}

// DisconnectUser force-closes a user's sockets (outage simulation).
func (s *Server) DisconnectUser(userID string) {
	s.sockMu.Lock()
	targets := make([]*socket, 0, 2)
	for sock := range s.socks[userID] {
		targets = append(targets, sock)
	}
	s.sockMu.Unlock()
	for _, sock := range targets {
		_ = sock.ws.Close()
	}
}
