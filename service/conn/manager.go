package conn

import (
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/techwave-ventures/Connektx-sub004/logger"
	"github.com/techwave-ventures/Connektx-sub004/tools/errs"
)

// ===== 配置 =====

type ManagerConf struct {
	URL               string        // ws endpoint, token is attached as a query param
	ReconnectAttempts int           // bounded retries after a transport drop (default 5)
	ReconnectDelay    time.Duration // fixed delay between attempts (default 2s)
	PingInterval      time.Duration // keepalive pings (default 30s)
	HandshakeTimeout  time.Duration // dial + auth frame deadline (default 10s)
	Dialer            *websocket.Dialer
	Clock             func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = 5
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{}
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// ===== 状态 =====

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Manager owns the single authenticated socket of a session. It is the only
// holder of the channel reference; everything else observes it through
// Subscribe. At most one live connection exists at any instant.
type Manager struct {
	mu    sync.Mutex
	conf  ManagerConf
	state State
	ws    *websocket.Conn
	token string // last token that passed the handshake, reused on reconnect
	gen   uint64 // bumped per physical connection, guards stale loop events

	subMu  sync.RWMutex
	subs   map[int]chan Event
	subSeq int

	closed bool
}

func NewManager(conf ManagerConf) *Manager {
	conf.norm()
	return &Manager{
		conf: conf,
		subs: make(map[int]chan Event),
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers an event channel. Slow consumers lose events rather
// than blocking the read loop. The returned func unsubscribes.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subSeq++
	id := m.subSeq
	ch := make(chan Event, 64)
	m.subs[id] = ch
	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

func (m *Manager) emit(ev Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			logger.Warnf("[conn] subscriber full, drop event type=%s", ev.Type)
		}
	}
}

// Connect opens the socket with the given token. A call while an attempt is
// in flight or a connection is live is a no-op: the guard is the current
// state, not a queue of pending connects.
func (m *Manager) Connect(token string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errs.ErrClosed.WithDetail("conn manager")
	}
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	expect := m.gen
	m.mu.Unlock()

	ws, err := m.dial(token)
	if err != nil {
		m.mu.Lock()
		if m.gen == expect && m.state == StateConnecting {
			m.state = StateDisconnected
		}
		m.mu.Unlock()
		m.emit(Event{Type: EventConnectError, Reason: err.Error()})
		return err
	}

	if !m.attach(ws, token, expect) {
		return errs.ErrClosed.WithDetail("torn down during connect")
	}
	return nil
}

// dial opens the transport and waits for the auth frame. An auth_error is
// terminal for the attempt; the caller must supply a fresh token.
func (m *Manager) dial(token string) (*websocket.Conn, error) {
	u := m.conf.URL
	if parsed, err := url.Parse(u); err == nil {
		q := parsed.Query()
		q.Set("token", token)
		parsed.RawQuery = q.Encode()
		u = parsed.String()
	}

	dialer := m.conf.Dialer
	dialer.HandshakeTimeout = m.conf.HandshakeTimeout

	ws, resp, err := dialer.Dial(u, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == 401 || resp.StatusCode == 403) {
			return nil, errs.ErrAuth.WithDetail("ws handshake rejected")
		}
		return nil, errs.ErrNetwork.WithDetail("ws dial: " + err.Error())
	}

	_ = ws.SetReadDeadline(m.conf.Clock().Add(m.conf.HandshakeTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return nil, errs.ErrNetwork.WithDetail("ws auth read: " + err.Error())
	}
	f, err := ParseFrame(data)
	if err != nil {
		_ = ws.Close()
		return nil, errs.ErrNetwork.WithDetail("ws auth frame: " + err.Error())
	}
	switch f.Type {
	case FrameAuthOK:
	case FrameAuthError:
		_ = ws.Close()
		return nil, errs.ErrAuth.WithDetail(f.Reason)
	default:
		_ = ws.Close()
		return nil, errs.ErrNetwork.WithDetail("unexpected first frame " + f.Type)
	}
	_ = ws.SetReadDeadline(time.Time{})
	return ws, nil
}

// attach installs a freshly authenticated socket and starts its loops.
// expect is the generation observed when the attempt started; if Disconnect
// or Close bumped it meanwhile, the new socket is discarded.
func (m *Manager) attach(ws *websocket.Conn, token string, expect uint64) bool {
	m.mu.Lock()
	if m.closed || m.gen != expect {
		m.mu.Unlock()
		_ = ws.Close()
		return false
	}
	m.gen++
	gen := m.gen
	m.ws = ws
	m.token = token
	m.state = StateConnected
	m.mu.Unlock()

	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(m.conf.Clock().Add(3 * m.conf.PingInterval))
	})
	_ = ws.SetReadDeadline(m.conf.Clock().Add(3 * m.conf.PingInterval))

	go m.pingLoop(ws, gen)
	go m.readLoop(ws, gen)

	m.emit(Event{Type: EventConnected})
	return true
}

// pingLoop is the single writer on the socket. The client never sends data
// frames; outbound writes go through REST.
func (m *Manager) pingLoop(ws *websocket.Conn, gen uint64) {
	t := time.NewTicker(m.conf.PingInterval)
	defer t.Stop()
	for range t.C {
		if !m.isCurrent(ws, gen) {
			return
		}
		deadline := m.conf.Clock().Add(5 * time.Second)
		if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
			return
		}
	}
}

func (m *Manager) readLoop(ws *websocket.Conn, gen uint64) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			m.onDrop(ws, gen, err)
			return
		}
		f, perr := ParseFrame(data)
		if perr != nil {
			logger.Debugf("[conn] bad frame: %v", perr)
			continue
		}
		switch f.Type {
		case FrameMessage:
			if f.Message != nil {
				m.emit(Event{Type: EventMessage, Message: f.Message})
			}
		case FrameSeen:
			m.emit(Event{Type: EventSeen, UserID: f.UserID, ConvID: f.ConvID})
		default:
			logger.Debugf("[conn] ignore frame type=%s", f.Type)
		}
	}
}

func (m *Manager) isCurrent(ws *websocket.Conn, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen && m.ws == ws
}

// onDrop handles a transport-level failure of the current connection and
// runs the bounded reconnect policy with the last good token.
func (m *Manager) onDrop(ws *websocket.Conn, gen uint64, cause error) {
	m.mu.Lock()
	if m.gen != gen || m.ws != ws {
		// Stale loop from a connection already replaced or torn down.
		m.mu.Unlock()
		return
	}
	m.ws = nil
	m.state = StateDisconnected
	token := m.token
	closed := m.closed
	m.mu.Unlock()

	_ = ws.Close()
	m.emit(Event{Type: EventDisconnected, Reason: cause.Error()})
	if closed {
		return
	}

	for attempt := 1; attempt <= m.conf.ReconnectAttempts; attempt++ {
		time.Sleep(m.conf.ReconnectDelay)

		m.mu.Lock()
		if m.closed || m.state != StateDisconnected || m.gen != gen {
			// Someone else reconnected or tore the manager down meanwhile.
			m.mu.Unlock()
			return
		}
		m.state = StateConnecting
		m.mu.Unlock()

		next, err := m.dial(token)
		if err == nil {
			if m.attach(next, token, gen) {
				logger.Infof("[conn] reconnected after %d attempt(s)", attempt)
			}
			return
		}

		m.mu.Lock()
		if m.gen == gen && m.state == StateConnecting {
			m.state = StateDisconnected
		}
		m.mu.Unlock()

		if errs.IsAuth(err) {
			// Token went stale during the outage; retrying is pointless.
			m.emit(Event{Type: EventConnectError, Reason: err.Error()})
			return
		}
		logger.Warnf("[conn] reconnect attempt %d/%d failed: %v", attempt, m.conf.ReconnectAttempts, err)
	}
	logger.Warnf("[conn] reconnect attempts exhausted, staying disconnected")
	m.emit(Event{Type: EventConnectError, Reason: "reconnect attempts exhausted"})
}

// Disconnect tears the channel down. Idempotent. Must run at logout so an
// authenticated socket never outlives its session.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	ws := m.ws
	wasConnected := m.state == StateConnected
	m.ws = nil
	m.token = ""
	m.state = StateDisconnected
	m.gen++ // invalidate running loops and pending reconnects
	m.mu.Unlock()

	if ws != nil {
		_ = ws.Close()
	}
	if wasConnected {
		m.emit(Event{Type: EventDisconnected, Reason: "client disconnect"})
	}
}

// Close disconnects and rejects further use.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.Disconnect()

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}
