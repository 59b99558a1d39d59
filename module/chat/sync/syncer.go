package sync

import (
	"context"
	"time"

	"github.com/techwave-ventures/Connektx-sub004/logger"
	"github.com/techwave-ventures/Connektx-sub004/module/chat/model"
	"github.com/techwave-ventures/Connektx-sub004/module/chat/timeline"
	"github.com/techwave-ventures/Connektx-sub004/service/conn"
)

// DirectorySource is the slice of the conversation directory the syncer
// needs for the post-reconnect refresh.
type DirectorySource interface {
	List(ctx context.Context) ([]model.Conversation, error)
	Requests(ctx context.Context) ([]model.MessageRequest, error)
}

// Syncer wires the connection manager's event stream into the timeline
// engine. It is the only consumer that reacts to lifecycle events: pushes
// go straight to IngestLive, and a connected-after-drop triggers the
// catch-up fetch that recovers whatever the peers sent during the outage
// (those messages were never pushed, only REST has them).
type Syncer struct {
	engine *timeline.Engine
	dir    DirectorySource

	events <-chan conn.Event
	cancel func()
	done   chan struct{}

	// CatchupTimeout bounds one catch-up round. Zero means 30s.
	CatchupTimeout time.Duration
}

func NewSyncer(mgr *conn.Manager, engine *timeline.Engine, dir DirectorySource) *Syncer {
	events, cancel := mgr.Subscribe()
	return &Syncer{
		engine: engine,
		dir:    dir,
		events: events,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Run consumes events until Close. Call it in its own goroutine.
func (s *Syncer) Run() {
	defer close(s.done)
	dropped := false
	for ev := range s.events {
		switch ev.Type {
		case conn.EventMessage:
			if s.engine.IngestLive(ev.Message) {
				logger.Debugf("[sync] live message %s conv=%s", ev.Message.ID, ev.Message.ConversationID)
			}
		case conn.EventDisconnected:
			dropped = true
		case conn.EventConnected:
			if dropped {
				dropped = false
				s.catchUp()
			}
		case conn.EventConnectError:
			logger.Warnf("[sync] connect error: %s", ev.Reason)
		case conn.EventSeen:
			// Read receipts do not change the merged message set.
		}
	}
}

// catchUp re-reads the newest history page of every open conversation and
// refreshes the directory lists. Merging is idempotent, so overlap with
// messages that did arrive live is harmless.
func (s *Syncer) catchUp() {
	timeout := s.CatchupTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, convID := range s.engine.OpenConversations() {
		added, err := s.engine.Reload(ctx, convID)
		if err != nil {
			logger.Warnf("[sync] catch-up conv=%s: %v", convID, err)
			continue
		}
		if added > 0 {
			logger.Infof("[sync] catch-up conv=%s recovered %d message(s)", convID, added)
		}
	}
	if s.dir == nil {
		return
	}
	if _, err := s.dir.List(ctx); err != nil {
		logger.Warnf("[sync] catch-up conversation list: %v", err)
	}
	if _, err := s.dir.Requests(ctx); err != nil {
		logger.Warnf("[sync] catch-up request list: %v", err)
	}
}

// Close unsubscribes and waits for Run to drain.
func (s *Syncer) Close() {
	s.cancel()
	<-s.done
}
