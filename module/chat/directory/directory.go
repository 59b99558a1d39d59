package directory

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/techwave-ventures/Connektx-sub004/logger"
	"github.com/techwave-ventures/Connektx-sub004/module/chat/model"
	"github.com/techwave-ventures/Connektx-sub004/service/rest"
	"github.com/techwave-ventures/Connektx-sub004/tools/errs"
)

// ===== wire payloads =====

type conversationList struct {
	Conversations []model.Conversation `json:"conversations"`
}

type requestList struct {
	Requests []model.MessageRequest `json:"requests"`
}

type messagePage struct {
	Messages []model.Message `json:"messages"`
	Page     int             `json:"page"`
	Limit    int             `json:"limit"`
}

type sendBody struct {
	Content          string `json:"content,omitempty"`
	SharedPostID     string `json:"sharedPostId,omitempty"`
	SharedNewsID     string `json:"sharedNewsId,omitempty"`
	SharedShowcaseID string `json:"sharedShowcaseId,omitempty"`
	SharedUserID     string `json:"sharedUserId,omitempty"`
}

// Directory is the REST-backed authority on which conversations exist and
// which are still pending admission. It caches the last fetched lists so
// screens can read synchronously between refreshes; the server stays the
// source of truth for every mutation.
type Directory struct {
	rc   *rest.Client
	self string

	mu    sync.RWMutex
	convs []model.Conversation
	reqs  []model.MessageRequest
}

func NewDirectory(rc *rest.Client, session *model.Session) *Directory {
	return &Directory{rc: rc, self: session.UserID}
}

// List fetches active conversations ordered by most recent activity.
func (d *Directory) List(ctx context.Context) ([]model.Conversation, error) {
	var out conversationList
	if err := d.rc.Get(ctx, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	sort.SliceStable(out.Conversations, func(i, j int) bool {
		return out.Conversations[i].UpdatedAt.After(out.Conversations[j].UpdatedAt)
	})
	d.mu.Lock()
	d.convs = out.Conversations
	d.mu.Unlock()
	return out.Conversations, nil
}

// Requests fetches pending message requests addressed to the current user.
func (d *Directory) Requests(ctx context.Context) ([]model.MessageRequest, error) {
	var out requestList
	if err := d.rc.Get(ctx, "/conversations/requests", nil, &out); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.reqs = out.Requests
	d.mu.Unlock()
	return out.Requests, nil
}

// Accept admits a pending request. The server call happens first; the local
// caches move the conversation from pending to active only on success, so a
// failed accept leaves the UI exactly where it was. A Conflict means another
// device raced us; if the end state is what we wanted, that is a success.
func (d *Directory) Accept(ctx context.Context, requestID string) error {
	err := d.rc.Post(ctx, "/conversations/requests/"+requestID+"/accept", nil, nil)
	if err != nil {
		if errs.IsConflict(err) && d.settled(ctx, requestID, model.RequestAccepted) {
			return nil
		}
		return err
	}
	d.applyAdmission(requestID, model.RequestAccepted)
	return nil
}

// Reject drops a pending request. The conversation disappears from both
// lists and is never resurrected locally; if the sender writes again the
// server issues a fresh pending entity with a new id.
func (d *Directory) Reject(ctx context.Context, requestID string) error {
	err := d.rc.Post(ctx, "/conversations/requests/"+requestID+"/reject", nil, nil)
	if err != nil {
		if errs.IsConflict(err) && d.settled(ctx, requestID, model.RequestRejected) {
			return nil
		}
		return err
	}
	d.applyAdmission(requestID, model.RequestRejected)
	return nil
}

// settled re-reads both lists and reports whether the request already ended
// up in the desired terminal state (two-device race resolution:
// idempotent by outcome).
func (d *Directory) settled(ctx context.Context, requestID string, want model.RequestState) bool {
	if _, err := d.Requests(ctx); err != nil {
		return false
	}
	if _, err := d.List(ctx); err != nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.reqs {
		if r.ID == requestID {
			return false // still pending, the conflict was something else
		}
	}
	active := false
	for _, c := range d.convs {
		if c.ID == requestID {
			active = true
			break
		}
	}
	if want == model.RequestAccepted {
		return active
	}
	return !active
}

func (d *Directory) applyAdmission(requestID string, to model.RequestState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, r := range d.reqs {
		if r.ID != requestID {
			continue
		}
		if err := r.State.Transition(to); err != nil {
			logger.Warnf("[directory] %v", err)
			return
		}
		d.reqs = append(d.reqs[:i], d.reqs[i+1:]...)
		if to == model.RequestAccepted {
			conv := model.Conversation{
				ID:           r.ID,
				Participants: []model.Participant{r.From, {UserID: d.self}},
				LastMessage:  r.FirstMessage,
				Status:       model.ConversationActive,
			}
			if r.FirstMessage != nil {
				conv.UpdatedAt = r.FirstMessage.CreatedAt
			}
			d.convs = append([]model.Conversation{conv}, d.convs...)
		}
		return
	}
}

// FindOrCreate asks the server for the conversation with recipientID,
// creating it if absent. Idempotence is the server's contract: the client
// must not cache the pair mapping because a second device could create the
// conversation concurrently.
func (d *Directory) FindOrCreate(ctx context.Context, recipientID string) (model.Conversation, error) {
	var conv model.Conversation
	body := map[string]string{"recipientId": recipientID}
	if err := d.rc.Post(ctx, "/conversations", body, &conv); err != nil {
		return model.Conversation{}, err
	}
	return conv, nil
}

// Send posts a message through REST (the durable write path; the socket is
// receive-only). Sending into a conversation that is pending for us as the
// recipient is blocked client-side as a UX guard; the server enforces the
// real boundary.
func (d *Directory) Send(ctx context.Context, convID, content string, shared *model.SharedRef) (model.Message, error) {
	if d.pendingForSelf(convID) {
		return model.Message{}, errs.ErrConflict.WithDetail("conversation awaiting admission")
	}
	body := sendBody{Content: content}
	if shared != nil {
		switch shared.Kind {
		case model.SharedPost:
			body.SharedPostID = shared.ID
		case model.SharedNews:
			body.SharedNewsID = shared.ID
		case model.SharedShowcase:
			body.SharedShowcaseID = shared.ID
		case model.SharedUser:
			body.SharedUserID = shared.ID
		default:
			return model.Message{}, fmt.Errorf("unknown shared kind %q", shared.Kind)
		}
	}
	var msg model.Message
	if err := d.rc.Post(ctx, "/conversations/"+convID+"/messages", body, &msg); err != nil {
		// Never auto-retry: a blind resend could duplicate the write.
		return model.Message{}, err
	}
	return msg, nil
}

func (d *Directory) pendingForSelf(convID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.reqs {
		if r.ID == convID && r.State == model.RequestPending {
			return true
		}
	}
	return false
}

// MarkSeen is advisory: it moves read receipts, not message integrity, so
// it runs fire-and-forget and failures are only logged.
func (d *Directory) MarkSeen(convID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := d.rc.Post(ctx, "/conversations/"+convID+"/seen", nil, nil); err != nil {
			logger.Warnf("[directory] mark seen conv=%s: %v", convID, err)
		}
	}()
}

// FetchMessages implements the timeline engine's history source.
// Newest-page-first: page 1 is the most recent window.
func (d *Directory) FetchMessages(ctx context.Context, convID string, page, limit int) ([]model.Message, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var out messagePage
	if err := d.rc.Get(ctx, "/conversations/"+convID+"/messages", q, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// CachedConversations returns the last fetched active list without I/O.
func (d *Directory) CachedConversations() []model.Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Conversation, len(d.convs))
	copy(out, d.convs)
	return out
}

// CachedRequests returns the last fetched pending list without I/O.
func (d *Directory) CachedRequests() []model.MessageRequest {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.MessageRequest, len(d.reqs))
	copy(out, d.reqs)
	return out
}
