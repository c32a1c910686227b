package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"socialgo/internal/bus"
	"socialgo/internal/config"
	"socialgo/internal/domain"
	"socialgo/internal/events"
	"socialgo/internal/notifications"
)

// NotificationService listens to bus events and emits user-facing notifications.
type NotificationService struct {
	bus           bus.MessageBus
	store         *domain.Store
	currentConfig func() config.AppConfig
	sender        notifications.Sender
	logger        *slog.Logger

	connStatusMu     sync.Mutex
	lastConnState    events.ConnectionState
	lastConnStateSet bool
}

func NewNotificationService(
	messageBus bus.MessageBus,
	store *domain.Store,
	currentConfig func() config.AppConfig,
	sender notifications.Sender,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default().With("component", "app.notifications")
	}

	return &NotificationService{
		bus:           messageBus,
		store:         store,
		currentConfig: currentConfig,
		sender:        sender,
		logger:        logger,
	}
}

func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || s.bus == nil || s.sender == nil {
		return
	}

	messageSub := s.bus.Subscribe(events.TopicMessage)
	notifSub := s.bus.Subscribe(events.TopicNotification)
	connSub := s.bus.Subscribe(events.TopicConnStatus)

	go func() {
		defer s.bus.Unsubscribe(messageSub, events.TopicMessage)
		defer s.bus.Unsubscribe(notifSub, events.TopicNotification)
		defer s.bus.Unsubscribe(connSub, events.TopicConnStatus)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-messageSub:
				if !ok {
					return
				}
				event, ok := raw.(events.MessageReceived)
				if !ok {
					continue
				}
				s.handleIncomingMessage(event)
			case raw, ok := <-notifSub:
				if !ok {
					return
				}
				event, ok := raw.(events.NotificationReceived)
				if !ok {
					continue
				}
				s.handleNotification(event)
			case raw, ok := <-connSub:
				if !ok {
					return
				}
				status, ok := raw.(events.ConnectionStatus)
				if !ok {
					continue
				}
				s.handleConnectionStatus(status)
			}
		}
	}()
}

func (s *NotificationService) handleIncomingMessage(event events.MessageReceived) {
	prefs := s.notificationPrefs()
	if !s.shouldNotify(prefs, prefs.Events.IncomingMessage) {
		return
	}

	senderName := s.senderName(event.Summary.SenderUserID)
	body := strings.TrimSpace(event.Summary.Preview)
	if body == "" {
		body = "(empty)"
	}

	s.send(notifications.Payload{
		Title:   "@" + senderName,
		Content: fmt.Sprintf("%s: %s", senderName, body),
	})
}

func (s *NotificationService) handleNotification(event events.NotificationReceived) {
	prefs := s.notificationPrefs()
	if !s.shouldNotify(prefs, prefs.Events.NewNotification) {
		return
	}

	content := strings.TrimSpace(event.Notification.Message)
	if content == "" {
		return
	}

	s.send(notifications.Payload{
		Title:   s.senderName(event.Notification.SenderUserID),
		Content: content,
	})
}

func (s *NotificationService) handleConnectionStatus(status events.ConnectionStatus) {
	prefs := s.notificationPrefs()
	if status.State == "" {
		return
	}

	s.connStatusMu.Lock()
	if s.lastConnStateSet && s.lastConnState == status.State {
		s.connStatusMu.Unlock()

		return
	}
	s.lastConnState = status.State
	s.lastConnStateSet = true
	s.connStatusMu.Unlock()

	if status.State != events.ConnectionStateConnected &&
		status.State != events.ConnectionStateDisconnected {
		return
	}
	if !s.shouldNotify(prefs, prefs.Events.ConnectionStatus) {
		return
	}

	details := strings.TrimSpace(status.Target)
	if details == "" {
		details = "No connection details"
	}
	if status.State == events.ConnectionStateDisconnected {
		if errText := strings.TrimSpace(status.Err); errText != "" {
			details = fmt.Sprintf("%s (error: %s)", details, errText)
		}
	}

	s.send(notifications.Payload{
		Title:   fmt.Sprintf("Push channel - %s", status.State),
		Content: details,
	})
}

func (s *NotificationService) shouldNotify(prefs config.NotificationConfig, kindEnabled bool) bool {
	return prefs.Enabled && kindEnabled
}

func (s *NotificationService) notificationPrefs() config.NotificationConfig {
	cfg := config.Default()
	if s.currentConfig != nil {
		cfg = s.currentConfig()
		cfg.FillMissingDefaults()
	}

	return cfg.Notifications
}

func (s *NotificationService) senderName(userID string) string {
	if s.store != nil {
		if user, ok := s.store.User(userID); ok {
			if name := strings.TrimSpace(user.DisplayName); name != "" {
				return name
			}
			if handle := strings.TrimSpace(user.Handle); handle != "" {
				return handle
			}
		}
	}
	if userID != "" {
		return userID
	}

	return "unknown"
}

func (s *NotificationService) send(payload notifications.Payload) {
	s.logger.Debug("sending desktop notification", "title", payload.Title)
	s.sender.Send(payload)
}
