package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"socialgo/internal/app"
	"socialgo/internal/config"
)

const (
	listFriends       = "friends"
	listRequests      = "friend_requests"
	listConversations = "conversations"
	listNotifications = "notifications"
	listFeed          = "feed"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run client", "error", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "", "REST API base url")
	pushURL := flag.String("push", "", "push websocket url (ws:// or wss://)")
	token := flag.String("token", "", "auth token")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Initialize(ctx, func(cfg *config.AppConfig) {
		if v := strings.TrimSpace(*server); v != "" {
			cfg.Server.APIBaseURL = v
		}
		if v := strings.TrimSpace(*pushURL); v != "" {
			cfg.Server.PushURL = v
		}
		if v := strings.TrimSpace(*token); v != "" {
			cfg.Server.AuthToken = v
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Warn("close runtime", "error", closeErr)
		}
	}()

	logger := rt.LogManager.Logger("cli")
	logger.Info("session established", "self_id", rt.SelfID)

	loadInitialPages(ctx, rt, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")

			return nil
		case <-rt.Store.Changes():
			printState(rt)
		}
	}
}

func loadInitialPages(ctx context.Context, rt *app.Runtime, logger *slog.Logger) {
	loads := []struct {
		key    string
		path   string
		ingest func(map[string]any) (string, error)
	}{
		{listFriends, "/friends", rt.Fetcher.IngestUser},
		{listRequests, "/friends/requests", rt.Fetcher.IngestFriendRequest},
		{listConversations, "/conversations", rt.Fetcher.IngestConversation},
		{listNotifications, "/notifications", rt.Fetcher.IngestNotification},
		{listFeed, "/posts", rt.Fetcher.IngestPost},
	}
	for _, load := range loads {
		if err := rt.Fetcher.LoadPage(ctx, load.key, load.path, nil, 1, load.ingest); err != nil {
			logger.Warn("initial page load failed", "list", load.key, "error", err)
		}
	}
}

func printState(rt *app.Runtime) {
	users := rt.Store.UsersSnapshot()
	conversations := rt.Store.ConversationsSnapshot()
	unread := 0
	for _, c := range conversations {
		unread += c.UnreadCount
	}

	status := "unknown"
	if s, ok := rt.CurrentConnStatus(); ok {
		status = string(s.State)
	}

	fmt.Printf("[%s] users=%d conversations=%d unread_messages=%d unread_notifications=%d\n",
		status, len(users), len(conversations), unread, rt.Store.UnreadNotifications())
}
