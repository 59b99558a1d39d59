package devserver

import (
	"sort"
	"sync"
	"time"

	"github.com/techwave-ventures/Connektx-sub004/module/chat/model"
	"github.com/techwave-ventures/Connektx-sub004/tools/errs"
	"github.com/techwave-ventures/Connektx-sub004/tools/ids"
)

// serverConv is one conversation as the backend sees it: the member list,
// the full ordered message log, and the admission state.
type serverConv struct {
	conv       model.Conversation
	msgs       []model.Message
	pendingFor string // recipient who must admit; empty once active
	rejected   bool   // terminal; rejected convs stop matching lookups
}

// Store is the in-memory backend state. Message ids come from the
// snowflake generator so they are monotonic, which is what the client's
// (createdAt, id) tie-break relies on.
type Store struct {
	mu    sync.Mutex
	gen   *ids.Generator
	users map[string]model.Participant
	convs map[string]*serverConv
}

func NewStore() *Store {
	return &Store{
		gen:   ids.NewGenerator(7),
		users: make(map[string]model.Participant),
		convs: make(map[string]*serverConv),
	}
}

func (s *Store) AddUser(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = model.Participant{UserID: id, Name: name}
}

func (s *Store) participantLocked(id string) model.Participant {
	if p, ok := s.users[id]; ok {
		return p
	}
	return model.Participant{UserID: id}
}

// FindOrCreate returns the live conversation between the two users,
// creating a pending one if none exists. Rejected conversations never
// match: a sender who writes again after a reject gets a brand new pending
// entity with a new identity.
func (s *Store) FindOrCreate(selfID, recipientID string) (model.Conversation, error) {
	if selfID == recipientID {
		return model.Conversation{}, errs.ErrConflict.WithDetail("cannot converse with yourself")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sc := range s.convs {
		if sc.rejected {
			continue
		}
		if sc.conv.HasParticipant(selfID) && sc.conv.HasParticipant(recipientID) {
			return sc.conv, nil
		}
	}

	sc := &serverConv{
		conv: model.Conversation{
			ID: s.gen.NextString(),
			Participants: []model.Participant{
				s.participantLocked(selfID),
				s.participantLocked(recipientID),
			},
			Status:    model.ConversationPending,
			UpdatedAt: time.Now(),
		},
		pendingFor: recipientID,
	}
	s.convs[sc.conv.ID] = sc
	return sc.conv, nil
}

// Append writes a message. Recipients of a pending conversation cannot
// send; senders into a rejected conversation see NotFound because the
// server stopped routing it.
func (s *Store) Append(senderID, convID, content string, shared *model.SharedRef, at time.Time) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.convs[convID]
	if !ok || sc.rejected {
		return model.Message{}, errs.ErrNotFound.WithDetail("conversation " + convID)
	}
	if !sc.conv.HasParticipant(senderID) {
		return model.Message{}, errs.ErrNotFound.WithDetail("not a participant")
	}
	if sc.pendingFor == senderID {
		return model.Message{}, errs.ErrConflict.WithDetail("conversation awaiting your acceptance")
	}

	msg := model.Message{
		ID:             s.gen.NextString(),
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		Shared:         shared,
		CreatedAt:      at,
		SeenBy:         []string{senderID},
	}
	sc.msgs = append(sc.msgs, msg)
	cp := msg
	sc.conv.LastMessage = &cp
	sc.conv.UpdatedAt = at
	return msg, nil
}

// Page returns one history window, newest-page-first: page 1 holds the
// most recent limit messages, page 2 the window before it, and so on.
// Messages inside a window come back in ascending timeline order.
func (s *Store) Page(userID, convID string, page, limit int) ([]model.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 30
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.convs[convID]
	if !ok || sc.rejected || !sc.conv.HasParticipant(userID) {
		return nil, errs.ErrNotFound.WithDetail("conversation " + convID)
	}

	sorted := make([]model.Message, len(sc.msgs))
	copy(sorted, sc.msgs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(&sorted[j]) })

	end := len(sorted) - (page-1)*limit
	if end <= 0 {
		return nil, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]model.Message, end-start)
	copy(out, sorted[start:end])
	return out, nil
}

// List returns the user's conversations, most recent first. A pending
// conversation shows up on the sender's side (status pending); on the
// recipient's side it lives in the requests list instead.
func (s *Store) List(userID string) []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Conversation, 0, len(s.convs))
	for _, sc := range s.convs {
		if sc.rejected || sc.pendingFor == userID {
			continue
		}
		if sc.conv.HasParticipant(userID) {
			out = append(out, sc.conv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Requests returns pending conversations awaiting this user's admission.
func (s *Store) Requests(userID string) []model.MessageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.MessageRequest, 0, 4)
	for _, sc := range s.convs {
		if sc.rejected || sc.pendingFor != userID {
			continue
		}
		req := model.MessageRequest{
			ID:        sc.conv.ID,
			State:     model.RequestPending,
			CreatedAt: sc.conv.UpdatedAt,
		}
		if p, ok := sc.conv.Peer(userID); ok {
			req.From = p
		}
		if len(sc.msgs) > 0 {
			first := sc.msgs[0]
			req.FirstMessage = &first
			req.CreatedAt = first.CreatedAt
		}
		out = append(out, req)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Accept flips a pending conversation to active. Only the admitted
// recipient may accept; a second accept (or an accept after reject)
// surfaces as Conflict so clients can resolve by outcome.
func (s *Store) Accept(userID, convID string) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.convs[convID]
	if !ok {
		return model.Conversation{}, errs.ErrNotFound.WithDetail("request " + convID)
	}
	if sc.rejected || sc.pendingFor == "" {
		return model.Conversation{}, errs.ErrConflict.WithDetail("request already settled")
	}
	if sc.pendingFor != userID {
		return model.Conversation{}, errs.ErrNotFound.WithDetail("request " + convID)
	}
	sc.pendingFor = ""
	sc.conv.Status = model.ConversationActive
	return sc.conv, nil
}

// Reject terminates a pending conversation.
func (s *Store) Reject(userID, convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.convs[convID]
	if !ok {
		return errs.ErrNotFound.WithDetail("request " + convID)
	}
	if sc.rejected || sc.pendingFor == "" {
		return errs.ErrConflict.WithDetail("request already settled")
	}
	if sc.pendingFor != userID {
		return errs.ErrNotFound.WithDetail("request " + convID)
	}
	sc.rejected = true
	return nil
}

// Seen stamps the user onto every message of the conversation and reports
// the other participants who should receive the read-receipt signal.
func (s *Store) Seen(userID, convID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.convs[convID]
	if !ok || sc.rejected || !sc.conv.HasParticipant(userID) {
		return nil, errs.ErrNotFound.WithDetail("conversation " + convID)
	}
	for i := range sc.msgs {
		seen := false
		for _, u := range sc.msgs[i].SeenBy {
			if u == userID {
				seen = true
				break
			}
		}
		if !seen {
			sc.msgs[i].SeenBy = append(sc.msgs[i].SeenBy, userID)
		}
	}
	peers := make([]string, 0, 1)
	for _, p := range sc.conv.Participants {
		if p.UserID != userID {
			peers = append(peers, p.UserID)
		}
	}
	return peers, nil
}

// Participants lists member ids for push fan-out.
func (s *Store) Participants(convID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.convs[convID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(sc.conv.Participants))
	for _, p := range sc.conv.Participants {
		out = append(out, p.UserID)
	}
	return out
}
