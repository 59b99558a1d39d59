package timeline

import (
	"context"
	"sync"
	"time"

	"github.com/techwave-ventures/Connektx-sub004/logger"
	"github.com/techwave-ventures/Connektx-sub004/module/chat/model"
)

// Fetcher is the REST side of history loading. Implemented by the
// conversation directory; faked in tests.
type Fetcher interface {
	FetchMessages(ctx context.Context, conversationID string, page, limit int) ([]model.Message, error)
}

type Conf struct {
	PageLimit int              // messages per history page (default 30)
	Clock     func() time.Time // 可注入时钟（单测用）；nil => time.Now
	Location  *time.Location   // display timezone for separators; nil => Local
}

func (c *Conf) norm() {
	if c.PageLimit <= 0 {
		c.PageLimit = 30
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Location == nil {
		c.Location = time.Local
	}
}

// convState is the append-only message set of one conversation plus its
// pagination cursor. Messages are keyed by server-assigned id, which makes
// the merge of REST pages and live pushes commutative and idempotent.
type convState struct {
	msgs     map[string]*model.Message
	cursor   model.PaginationCursor
	inflight map[int]struct{} // pages currently being fetched
}

// Engine merges the two producers of a conversation timeline: paginated
// REST history and the live push stream. The merged set is exposed only
// through the pure Timeline derivation.
type Engine struct {
	mu      sync.Mutex
	conf    Conf
	fetcher Fetcher
	convs   map[string]*convState
}

func NewEngine(fetcher Fetcher, conf Conf) *Engine {
	conf.norm()
	return &Engine{
		conf:    conf,
		fetcher: fetcher,
		convs:   make(map[string]*convState),
	}
}

// 需要在持锁状态下调用
func (e *Engine) stateLocked(convID string) *convState {
	st, ok := e.convs[convID]
	if !ok {
		st = &convState{
			msgs:     make(map[string]*model.Message),
			inflight: make(map[int]struct{}),
			cursor: model.PaginationCursor{
				ConversationID: convID,
				Page:           1,
				Limit:          e.conf.PageLimit,
				HasMore:        true,
			},
		}
		e.convs[convID] = st
	}
	return st
}

// LoadPage fetches the next unloaded history page and merges it in. It
// returns how many messages were new. Concurrent calls for the same
// (conversation, page) collapse into one request; the losers return 0.
func (e *Engine) LoadPage(ctx context.Context, convID string) (int, error) {
	e.mu.Lock()
	st := e.stateLocked(convID)
	if !st.cursor.HasMore {
		e.mu.Unlock()
		return 0, nil
	}
	page := st.cursor.Page
	limit := st.cursor.Limit
	if _, busy := st.inflight[page]; busy {
		e.mu.Unlock()
		return 0, nil
	}
	st.inflight[page] = struct{}{}
	e.mu.Unlock()

	msgs, err := e.fetcher.FetchMessages(ctx, convID, page, limit)

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(st.inflight, page)
	if err != nil {
		return 0, err
	}

	added := 0
	for i := range msgs {
		if e.insertLocked(st, &msgs[i], convID) {
			added++
		}
	}
	// Advance the cursor only if no one moved it while we were fetching.
	if st.cursor.Page == page {
		st.cursor.Page = page + 1
		st.cursor.HasMore = len(msgs) == limit
	}
	return added, nil
}

// Reload fetches page 1 again without resetting what is already merged.
// Used for the catch-up after a reconnect: anything the peer sent during
// the outage is on the newest page, and merging it twice is harmless.
func (e *Engine) Reload(ctx context.Context, convID string) (int, error) {
	e.mu.Lock()
	st := e.stateLocked(convID)
	limit := st.cursor.Limit
	if _, busy := st.inflight[1]; busy {
		e.mu.Unlock()
		return 0, nil
	}
	st.inflight[1] = struct{}{}
	e.mu.Unlock()

	msgs, err := e.fetcher.FetchMessages(ctx, convID, 1, limit)

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(st.inflight, 1)
	if err != nil {
		return 0, err
	}
	added := 0
	for i := range msgs {
		if e.insertLocked(st, &msgs[i], convID) {
			added++
		}
	}
	return added, nil
}

// IngestLive inserts a pushed message. A message whose id is already in the
// set is a no-op, whichever channel delivered it first. Messages for
// conversations with no loaded history are still kept; the timeline is
// merely sparse until the user scrolls back.
func (e *Engine) IngestLive(msg *model.Message) bool {
	if msg == nil || msg.ID == "" || msg.ConversationID == "" {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.stateLocked(msg.ConversationID)
	return e.insertLocked(st, msg, msg.ConversationID)
}

func (e *Engine) insertLocked(st *convState, msg *model.Message, convID string) bool {
	if msg.ID == "" {
		return false
	}
	if msg.ConversationID != convID {
		// A late response applied to the wrong conversation would
		// cross-contaminate timelines; drop and complain.
		logger.Warnf("[timeline] message %s for conv %s routed to conv %s, dropped",
			msg.ID, msg.ConversationID, convID)
		return false
	}
	if _, dup := st.msgs[msg.ID]; dup {
		return false
	}
	cp := *msg
	st.msgs[msg.ID] = &cp
	return true
}

// Timeline derives the date-separated view. Pure with respect to engine
// state: calling it is always safe and never mutates anything.
func (e *Engine) Timeline(convID string) []model.TimelineEntry {
	e.mu.Lock()
	var msgs []*model.Message
	if st, ok := e.convs[convID]; ok {
		msgs = make([]*model.Message, 0, len(st.msgs))
		for _, m := range st.msgs {
			msgs = append(msgs, m)
		}
	}
	e.mu.Unlock()
	return DeriveTimeline(msgs, e.conf.Clock(), e.conf.Location)
}

// Cursor returns a copy of the conversation's pagination progress.
func (e *Engine) Cursor(convID string) model.PaginationCursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked(convID).cursor
}

// Size reports how many distinct messages are held for the conversation.
func (e *Engine) Size(convID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.convs[convID]; ok {
		return len(st.msgs)
	}
	return 0
}

// Forget drops a conversation's local state (leave/reject).
func (e *Engine) Forget(convID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.convs, convID)
}

// OpenConversations lists ids with local state, used for catch-up fetches.
func (e *Engine) OpenConversations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.convs))
	for id := range e.convs {
		out = append(out, id)
	}
	return out
}
