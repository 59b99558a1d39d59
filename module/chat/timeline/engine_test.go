package timeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/techwave-ventures/Connektx-sub004/module/chat/model"
)

// fakeFetcher serves canned history pages and counts calls.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[int][]model.Message
	calls int
	gate  chan struct{} // when set, FetchMessages blocks until closed
}

func (f *fakeFetcher) FetchMessages(_ context.Context, _ string, page, _ int) ([]model.Message, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	out := append([]model.Message(nil), f.pages[page]...)
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return out, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var engineBase = time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)

func mk(id string, minute int) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: "c1",
		SenderID:       "u2",
		Content:        "m" + id,
		CreatedAt:      engineBase.Add(time.Duration(minute) * time.Minute),
	}
}

func newTestEngine(f Fetcher) *Engine {
	return NewEngine(f, Conf{
		PageLimit: 3,
		Clock:     func() time.Time { return engineBase.Add(6 * time.Hour) },
		Location:  time.UTC,
	})
}

func timelineIDs(e *Engine, convID string) []string {
	var out []string
	for _, entry := range e.Timeline(convID) {
		if entry.Message != nil {
			out = append(out, entry.Message.ID)
		}
	}
	return out
}

// The merged set must come out identical no matter in which order history
// pages and live pushes arrive.
func TestEngineMergeOrderIndependent(t *testing.T) {
	a, b := mk("101", 0), mk("102", 1)
	c, d, e5 := mk("103", 2), mk("104", 3), mk("105", 4)
	f6 := mk("106", 5)

	build := func() (*Engine, *fakeFetcher) {
		ff := &fakeFetcher{pages: map[int][]model.Message{
			1: {c, d, e5}, // newest window
			2: {a, b},
		}}
		return newTestEngine(ff), ff
	}

	want := []string{"101", "102", "103", "104", "105", "106"}

	type op func(e *Engine)
	loadPage := func(e *Engine) { _, _ = e.LoadPage(context.Background(), "c1") }
	ingest := func(m model.Message) op {
		return func(e *Engine) { e.IngestLive(&m) }
	}

	orders := [][]op{
		{loadPage, loadPage, ingest(d), ingest(f6)},
		{ingest(f6), ingest(d), loadPage, loadPage},
		{loadPage, ingest(f6), loadPage, ingest(d)},
		{ingest(d), loadPage, ingest(f6), loadPage},
	}

	for i, ops := range orders {
		eng, _ := build()
		for _, o := range ops {
			o(eng)
		}
		got := timelineIDs(eng, "c1")
		if len(got) != len(want) {
			t.Fatalf("order %d: ids = %v, want %v", i, got, want)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("order %d: ids = %v, want %v", i, got, want)
			}
		}
	}
}

func TestEngineDedupAcrossChannels(t *testing.T) {
	m := mk("201", 0)
	ff := &fakeFetcher{pages: map[int][]model.Message{1: {m}}}
	eng := newTestEngine(ff)

	if !eng.IngestLive(&m) {
		t.Fatal("first ingest must add")
	}
	if eng.IngestLive(&m) {
		t.Fatal("second ingest of same id must be a no-op")
	}
	added, err := eng.LoadPage(context.Background(), "c1")
	if err != nil {
		t.Fatalf("load page: %v", err)
	}
	if added != 0 {
		t.Fatalf("history overlap counted as new: added=%d", added)
	}
	if eng.Size("c1") != 1 {
		t.Fatalf("size = %d, want 1", eng.Size("c1"))
	}
}

func TestEngineSingleFlightPerPage(t *testing.T) {
	gate := make(chan struct{})
	ff := &fakeFetcher{
		pages: map[int][]model.Message{1: {mk("301", 0)}},
		gate:  gate,
	}
	eng := newTestEngine(ff)

	done := make(chan int, 1)
	go func() {
		added, _ := eng.LoadPage(context.Background(), "c1")
		done <- added
	}()

	// Wait for the first call to be parked inside the fetcher.
	deadline := time.Now().Add(2 * time.Second)
	for ff.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first fetch never started")
		}
		time.Sleep(time.Millisecond)
	}

	// Loser of the single-flight returns immediately with nothing.
	added, err := eng.LoadPage(context.Background(), "c1")
	if err != nil || added != 0 {
		t.Fatalf("concurrent load: added=%d err=%v", added, err)
	}

	close(gate)
	if got := <-done; got != 1 {
		t.Fatalf("winner added %d, want 1", got)
	}
	if ff.callCount() != 1 {
		t.Fatalf("fetch calls = %d, want 1", ff.callCount())
	}
}

func TestEngineCursorExhaustion(t *testing.T) {
	ff := &fakeFetcher{pages: map[int][]model.Message{
		1: {mk("401", 2), mk("402", 3), mk("403", 4)},
		2: {mk("404", 0), mk("405", 1)}, // short page: end of history
	}}
	eng := newTestEngine(ff)
	ctx := context.Background()

	if added, _ := eng.LoadPage(ctx, "c1"); added != 3 {
		t.Fatalf("page 1 added %d, want 3", added)
	}
	cur := eng.Cursor("c1")
	if cur.Page != 2 || !cur.HasMore {
		t.Fatalf("cursor after full page = %+v", cur)
	}

	if added, _ := eng.LoadPage(ctx, "c1"); added != 2 {
		t.Fatalf("page 2 added %d, want 2", added)
	}
	cur = eng.Cursor("c1")
	if cur.HasMore {
		t.Fatalf("short page must end pagination, cursor = %+v", cur)
	}

	// Exhausted: no further fetches happen.
	if added, _ := eng.LoadPage(ctx, "c1"); added != 0 {
		t.Fatalf("post-exhaustion load added %d", added)
	}
	if ff.callCount() != 2 {
		t.Fatalf("fetch calls = %d, want 2", ff.callCount())
	}
}

func TestEngineReloadKeepsCursorAndDedups(t *testing.T) {
	p1 := []model.Message{mk("501", 0), mk("502", 1), mk("503", 2)}
	ff := &fakeFetcher{pages: map[int][]model.Message{1: p1}}
	eng := newTestEngine(ff)
	ctx := context.Background()

	if added, _ := eng.LoadPage(ctx, "c1"); added != 3 {
		t.Fatal("seed load failed")
	}
	before := eng.Cursor("c1")

	// A new message lands server-side; reload recovers it without touching
	// pagination progress.
	ff.mu.Lock()
	ff.pages[1] = []model.Message{mk("502", 1), mk("503", 2), mk("504", 3)}
	ff.mu.Unlock()

	added, err := eng.Reload(ctx, "c1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if added != 1 {
		t.Fatalf("reload added %d, want 1", added)
	}
	if after := eng.Cursor("c1"); after != before {
		t.Fatalf("reload moved cursor: %+v -> %+v", before, after)
	}
	if eng.Size("c1") != 4 {
		t.Fatalf("size = %d, want 4", eng.Size("c1"))
	}
}

func TestEngineLiveBeforeHistoryIsSparse(t *testing.T) {
	ff := &fakeFetcher{pages: map[int][]model.Message{}}
	eng := newTestEngine(ff)

	m := mk("601", 10)
	if !eng.IngestLive(&m) {
		t.Fatal("live message for unopened conversation must be kept")
	}
	ids := timelineIDs(eng, "c1")
	if len(ids) != 1 || ids[0] != "601" {
		t.Fatalf("sparse timeline = %v", ids)
	}
}

func TestEngineDropsCrossConversationMessage(t *testing.T) {
	wrong := mk("701", 0)
	wrong.ConversationID = "other"
	ff := &fakeFetcher{pages: map[int][]model.Message{1: {wrong}}}
	eng := newTestEngine(ff)

	added, err := eng.LoadPage(context.Background(), "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if added != 0 || eng.Size("c1") != 0 {
		t.Fatalf("misrouted message was merged: added=%d size=%d", added, eng.Size("c1"))
	}
}

func TestEngineForget(t *testing.T) {
	ff := &fakeFetcher{pages: map[int][]model.Message{1: {mk("801", 0)}}}
	eng := newTestEngine(ff)
	if _, err := eng.LoadPage(context.Background(), "c1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	eng.Forget("c1")
	if eng.Size("c1") != 0 {
		t.Fatal("forget must drop local state")
	}
	if len(eng.OpenConversations()) != 0 {
		t.Fatal("forgotten conversation still listed as open")
	}
}

func TestEngineTimelineUnknownConversation(t *testing.T) {
	eng := newTestEngine(&fakeFetcher{})
	if got := eng.Timeline("nope"); len(got) != 0 {
		t.Fatalf("unknown conversation derived %d entries", len(got))
	}
}
