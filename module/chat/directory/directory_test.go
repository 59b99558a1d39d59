package directory

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/techwave-ventures/Connektx-sub004/module/chat/model"
	"github.com/techwave-ventures/Connektx-sub004/service/devserver"
	"github.com/techwave-ventures/Connektx-sub004/service/rest"
	"github.com/techwave-ventures/Connektx-sub004/tools/errs"
)

type fixture struct {
	srv     *devserver.Server
	baseURL string
	tokens  map[string]string
	alice   *Directory
	bob     *Directory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := devserver.NewServer([]byte("test-secret"))
	ts := httptest.NewServer(srv.Engine())
	t.Cleanup(ts.Close)

	fx := &fixture{srv: srv, baseURL: ts.URL, tokens: make(map[string]string)}
	mk := func(userID, name string) *Directory {
		tok, err := srv.IssueToken(userID, name)
		if err != nil {
			t.Fatalf("issue token for %s: %v", userID, err)
		}
		fx.tokens[userID] = tok
		return fx.directory(t, userID)
	}
	fx.alice = mk("u_alice", "Alice")
	fx.bob = mk("u_bob", "Bob")
	return fx
}

// directory builds a fresh client for the user, with empty caches — the
// same user on another device.
func (fx *fixture) directory(t *testing.T, userID string) *Directory {
	t.Helper()
	tok := fx.tokens[userID]
	sess, err := model.NewSession(tok)
	if err != nil {
		t.Fatalf("session for %s: %v", userID, err)
	}
	return NewDirectory(rest.NewClient(rest.Config{BaseURL: fx.baseURL, Token: tok}), sess)
}

func TestFindOrCreateIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.bob.FindOrCreate(ctx, "u_alice")
	if err != nil {
		t.Fatalf("find-or-create: %v", err)
	}
	if first.Status != model.ConversationPending {
		t.Fatalf("status = %s, want pending", first.Status)
	}
	second, err := fx.bob.FindOrCreate(ctx, "u_alice")
	if err != nil {
		t.Fatalf("second find-or-create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("ids differ: %s vs %s", first.ID, second.ID)
	}
}

func TestFirstContactLandsAsRequest(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	conv, err := fx.bob.FindOrCreate(ctx, "u_alice")
	if err != nil {
		t.Fatalf("find-or-create: %v", err)
	}
	if _, err := fx.bob.Send(ctx, conv.ID, "hi alice", nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	reqs, err := fx.alice.Requests(ctx)
	if err != nil {
		t.Fatalf("requests: %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	r := reqs[0]
	if r.From.UserID != "u_bob" {
		t.Fatalf("from = %s, want u_bob", r.From.UserID)
	}
	if r.FirstMessage == nil || r.FirstMessage.Content != "hi alice" {
		t.Fatalf("first message = %+v", r.FirstMessage)
	}
	if r.State != model.RequestPending {
		t.Fatalf("state = %s, want pending", r.State)
	}

	// The pending conversation is invisible in the recipient's main list.
	convs, err := fx.alice.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 0 {
		t.Fatalf("pending conversation leaked into list: %+v", convs)
	}
}

func TestAcceptMovesRequestIntoConversations(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	conv, _ := fx.bob.FindOrCreate(ctx, "u_alice")
	if _, err := fx.bob.Send(ctx, conv.ID, "hi", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := fx.alice.Requests(ctx); err != nil {
		t.Fatalf("requests: %v", err)
	}

	if err := fx.alice.Accept(ctx, conv.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got := fx.alice.CachedRequests(); len(got) != 0 {
		t.Fatalf("request still cached after accept: %+v", got)
	}
	cached := fx.alice.CachedConversations()
	if len(cached) != 1 || cached[0].ID != conv.ID || cached[0].Status != model.ConversationActive {
		t.Fatalf("cached conversations after accept: %+v", cached)
	}

	// Server agrees.
	convs, err := fx.alice.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != conv.ID {
		t.Fatalf("server list after accept: %+v", convs)
	}

	// Alice can now reply.
	if _, err := fx.alice.Send(ctx, conv.ID, "hello bob", nil); err != nil {
		t.Fatalf("reply after accept: %v", err)
	}
}

func TestRejectRemovesConversationEverywhere(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	conv, _ := fx.bob.FindOrCreate(ctx, "u_alice")
	if _, err := fx.bob.Send(ctx, conv.ID, "hi", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := fx.alice.Requests(ctx); err != nil {
		t.Fatalf("requests: %v", err)
	}

	if err := fx.alice.Reject(ctx, conv.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	reqs, _ := fx.alice.Requests(ctx)
	convs, _ := fx.alice.List(ctx)
	if len(reqs) != 0 || len(convs) != 0 {
		t.Fatalf("rejected conversation still visible: reqs=%v convs=%v", reqs, convs)
	}

	// The sender's follow-up into the dead conversation bounces.
	if _, err := fx.bob.Send(ctx, conv.ID, "still there?", nil); !errs.IsNotFound(err) {
		t.Fatalf("send into rejected conversation: err = %v, want not-found", err)
	}

	// Writing again starts a brand new pending conversation.
	fresh, err := fx.bob.FindOrCreate(ctx, "u_alice")
	if err != nil {
		t.Fatalf("re-contact: %v", err)
	}
	if fresh.ID == conv.ID {
		t.Fatal("re-contact reused the rejected conversation id")
	}
	if fresh.Status != model.ConversationPending {
		t.Fatalf("re-contact status = %s, want pending", fresh.Status)
	}
}

func TestRecipientCannotSendIntoPending(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	conv, _ := fx.bob.FindOrCreate(ctx, "u_alice")
	if _, err := fx.bob.Send(ctx, conv.ID, "hi", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := fx.alice.Requests(ctx); err != nil {
		t.Fatalf("requests: %v", err)
	}

	// Blocked locally once the pending request is known.
	if _, err := fx.alice.Send(ctx, conv.ID, "premature", nil); !errs.IsConflict(err) {
		t.Fatalf("send into own pending: err = %v, want conflict", err)
	}

	// A second device with cold caches hits the same wall server-side.
	cold := fx.directory(t, "u_alice")
	if _, err := cold.Send(ctx, conv.ID, "premature", nil); !errs.IsConflict(err) {
		t.Fatalf("cold send into own pending: err = %v, want conflict", err)
	}

	// Reading the pending history is still allowed (the request preview).
	msgs, err := fx.alice.FetchMessages(ctx, conv.ID, 1, 30)
	if err != nil {
		t.Fatalf("fetch pending history: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("pending history = %d messages, want 1", len(msgs))
	}
}

func TestAcceptConflictResolvedByOutcome(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	conv, _ := fx.bob.FindOrCreate(ctx, "u_alice")
	if _, err := fx.bob.Send(ctx, conv.ID, "hi", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := fx.alice.Requests(ctx); err != nil {
		t.Fatalf("requests: %v", err)
	}
	if err := fx.alice.Accept(ctx, conv.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Second device races: the server answers Conflict, but the end state is
	// exactly what was asked for, so the call reports success.
	if err := fx.alice.Accept(ctx, conv.ID); err != nil {
		t.Fatalf("repeated accept: %v", err)
	}

	// Asking for the opposite terminal state is a real conflict.
	if err := fx.alice.Reject(ctx, conv.ID); !errs.IsConflict(err) {
		t.Fatalf("reject after accept: err = %v, want conflict", err)
	}
}

func TestSendSharedReference(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	conv, _ := fx.bob.FindOrCreate(ctx, "u_alice")
	msg, err := fx.bob.Send(ctx, conv.ID, "look at this", &model.SharedRef{Kind: model.SharedPost, ID: "post-42"})
	if err != nil {
		t.Fatalf("send shared: %v", err)
	}
	if msg.Shared == nil || msg.Shared.Kind != model.SharedPost || msg.Shared.ID != "post-42" {
		t.Fatalf("shared ref round-trip: %+v", msg.Shared)
	}
}

func TestFetchMessagesNewestPageFirst(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	conv, _ := fx.bob.FindOrCreate(ctx, "u_alice")
	for _, text := range []string{"one", "two", "three", "four", "five"} {
		if _, err := fx.bob.Send(ctx, conv.ID, text, nil); err != nil {
			t.Fatalf("send %q: %v", text, err)
		}
	}

	page1, err := fx.bob.FetchMessages(ctx, conv.ID, 1, 2)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1) != 2 || page1[0].Content != "four" || page1[1].Content != "five" {
		t.Fatalf("page 1 = %+v", contents(page1))
	}
	page3, err := fx.bob.FetchMessages(ctx, conv.ID, 3, 2)
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(page3) != 1 || page3[0].Content != "one" {
		t.Fatalf("page 3 = %+v", contents(page3))
	}
	page4, err := fx.bob.FetchMessages(ctx, conv.ID, 4, 2)
	if err != nil {
		t.Fatalf("page 4: %v", err)
	}
	if len(page4) != 0 {
		t.Fatalf("past-the-end page = %+v", contents(page4))
	}
}

func TestMarkSeenEventuallySticks(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	conv, _ := fx.bob.FindOrCreate(ctx, "u_alice")
	if _, err := fx.bob.Send(ctx, conv.ID, "hi", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := fx.alice.Requests(ctx); err != nil {
		t.Fatalf("requests: %v", err)
	}
	if err := fx.alice.Accept(ctx, conv.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	fx.alice.MarkSeen(conv.ID)

	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs, err := fx.bob.FetchMessages(ctx, conv.ID, 1, 30)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if len(msgs) == 1 && contains(msgs[0].SeenBy, "u_alice") {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("seen marker never landed: %+v", msgs)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func contents(msgs []model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
