package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/techwave-ventures/Connektx-sub004/global"
	"github.com/techwave-ventures/Connektx-sub004/logger"
	"github.com/techwave-ventures/Connektx-sub004/module/chat/directory"
	"github.com/techwave-ventures/Connektx-sub004/module/chat/model"
	chatsync "github.com/techwave-ventures/Connektx-sub004/module/chat/sync"
	"github.com/techwave-ventures/Connektx-sub004/module/chat/timeline"
	"github.com/techwave-ventures/Connektx-sub004/service/conn"
	"github.com/techwave-ventures/Connektx-sub004/service/devserver"
	"github.com/techwave-ventures/Connektx-sub004/service/rest"
)

// Demo wiring: boots the local dev backend, logs two users in, has bob
// message alice, and runs alice's sync core end to end (request admission,
// history page, live push, derived timeline).
func main() {
	cfg := global.DefaultConfig()

	srv := devserver.NewServer(global.GetJwtSecret())
	go func() {
		if err := http.ListenAndServe(":8080", srv.Engine()); err != nil {
			logger.Errorf("devserver: %v", err)
			os.Exit(1)
		}
	}()
	time.Sleep(200 * time.Millisecond)

	aliceTok, err := srv.IssueToken("u_alice", "Alice")
	if err != nil {
		logger.Errorf("issue token: %v", err)
		return
	}
	bobTok, err := srv.IssueToken("u_bob", "Bob")
	if err != nil {
		logger.Errorf("issue token: %v", err)
		return
	}

	ctx := context.Background()

	// Bob opens a conversation with Alice and sends the first message.
	bobSess, _ := model.NewSession(bobTok)
	bobDir := directory.NewDirectory(rest.NewClient(rest.Config{BaseURL: cfg.APIBaseURL, Token: bobTok}), bobSess)
	conv, err := bobDir.FindOrCreate(ctx, "u_alice")
	if err != nil {
		logger.Errorf("find-or-create: %v", err)
		return
	}
	if _, err := bobDir.Send(ctx, conv.ID, "hey, saw your showcase — impressive!", nil); err != nil {
		logger.Errorf("send: %v", err)
		return
	}

	// Alice's client core.
	aliceSess, _ := model.NewSession(aliceTok)
	aliceDir := directory.NewDirectory(rest.NewClient(rest.Config{BaseURL: cfg.APIBaseURL, Token: aliceTok}), aliceSess)
	engine := timeline.NewEngine(aliceDir, timeline.Conf{PageLimit: cfg.PageLimit})

	mgr := conn.NewManager(conn.ManagerConf{
		URL:               cfg.WSURL,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		PingInterval:      cfg.PingInterval,
	})
	defer mgr.Close()

	syncer := chatsync.NewSyncer(mgr, engine, aliceDir)
	go syncer.Run()
	defer syncer.Close()

	if err := mgr.Connect(aliceTok); err != nil {
		logger.Errorf("connect: %v", err)
		return
	}

	// The first contact lands as a message request.
	reqs, err := aliceDir.Requests(ctx)
	if err != nil {
		logger.Errorf("requests: %v", err)
		return
	}
	for _, r := range reqs {
		logger.Infof("request from %s: %q", r.From.Name, r.FirstMessage.Content)
		if err := aliceDir.Accept(ctx, r.ID); err != nil {
			logger.Errorf("accept: %v", err)
			return
		}
	}

	if _, err := engine.LoadPage(ctx, conv.ID); err != nil {
		logger.Errorf("load page: %v", err)
		return
	}
	if _, err := aliceDir.Send(ctx, conv.ID, "thanks! happy to chat", nil); err != nil {
		logger.Errorf("reply: %v", err)
		return
	}
	aliceDir.MarkSeen(conv.ID)

	// Give the push a moment, then render.
	time.Sleep(300 * time.Millisecond)
	for _, entry := range engine.Timeline(conv.ID) {
		switch {
		case entry.Separator != nil:
			logger.Infof("--- %s ---", entry.Separator.Label)
		case entry.Message != nil:
			logger.Infof("[%s] %s", entry.Message.SenderID, entry.Message.Content)
		}
	}
}
