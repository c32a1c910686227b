package push

import (
	"context"
	"log/slog"
	"time"

	"socialgo/internal/bus"
	"socialgo/internal/events"
	"socialgo/internal/transport"
)

const (
	initialBackoff  = time.Second
	maxBackoff      = 15 * time.Second
	readTimeout     = 60 * time.Second
	keepAlivePeriod = 30 * time.Second
)

var keepAlivePayload = []byte(`{"event":"ping"}`)

// Service owns the push channel: it keeps the transport connected with
// exponential backoff, decodes incoming events, and publishes them to the
// bus. Delivery is at-least-once and possibly out of order; consumers carry
// their own idempotency and version checks.
type Service struct {
	logger    *slog.Logger
	transport transport.Transport
	bus       bus.MessageBus
}

func NewService(logger *slog.Logger, b bus.MessageBus, tr transport.Transport) *Service {
	if logger == nil {
		logger = slog.Default().With("component", "push")
	}

	return &Service{logger: logger, transport: tr, bus: b}
}

func (s *Service) Start(ctx context.Context) {
	go s.runConnector(ctx)
}

func (s *Service) runConnector(ctx context.Context) {
	backoff := initialBackoff
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		s.publishConnStatus(events.ConnectionStateConnecting, nil)
		if err := s.transport.Connect(ctx); err != nil {
			s.publishConnStatus(events.ConnectionStateReconnecting, err)
			s.logger.Error("transport connect failed", "error", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			if backoff < maxBackoff {
				backoff *= 2
			}

			continue
		}

		backoff = initialBackoff
		s.publishConnStatus(events.ConnectionStateConnected, nil)

		keepAliveCtx, cancelKeepAlive := context.WithCancel(ctx)
		go s.runKeepAlive(keepAliveCtx)
		err := s.runReader(ctx)
		cancelKeepAlive()
		_ = s.transport.Close()
		s.publishConnStatus(events.ConnectionStateReconnecting, err)

		if !sleepWithContext(ctx, backoff) {
			return
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (s *Service) runReader(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		payload, err := s.transport.ReadMessage(readCtx)
		cancel()
		if err != nil {
			return err
		}

		s.bus.Publish(events.TopicRawFrameIn, events.RawFrame{Payload: string(payload), Len: len(payload)})
		decoded, err := DecodeEvent(payload)
		if err != nil {
			s.logger.Warn("decode push event failed", "error", err)

			continue
		}

		if decoded.Presence != nil {
			s.bus.Publish(events.TopicPresence, *decoded.Presence)
		}
		if decoded.Message != nil {
			s.bus.Publish(events.TopicMessage, *decoded.Message)
		}
		if decoded.Notification != nil {
			s.bus.Publish(events.TopicNotification, *decoded.Notification)
		}
		if decoded.Membership != nil {
			s.bus.Publish(events.TopicMembership, *decoded.Membership)
		}
	}
}

func (s *Service) runKeepAlive(ctx context.Context) {
	ticker := time.NewTicker(keepAlivePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := s.transport.WriteMessage(writeCtx, keepAlivePayload)
			cancel()
			if err != nil {
				s.logger.Debug("keepalive write failed", "error", err)
			}
		}
	}
}

func (s *Service) publishConnStatus(state events.ConnectionState, err error) {
	status := events.ConnectionStatus{
		State:     state,
		Timestamp: time.Now(),
	}
	if err != nil {
		status.Err = err.Error()
	}
	if resolver, ok := s.transport.(transport.StatusTargetResolver); ok {
		status.Target = resolver.StatusTarget()
	}
	s.bus.Publish(events.TopicConnStatus, status)
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
