package notifications

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

// BeeepSender delivers notifications via the OS notification daemon.
type BeeepSender struct {
	logger *slog.Logger
}

func NewBeeepSender(logger *slog.Logger) *BeeepSender {
	if logger == nil {
		logger = slog.Default().With("component", "notifications.beeep")
	}

	return &BeeepSender{logger: logger}
}

func (s *BeeepSender) Send(payload Payload) {
	if err := beeep.Notify(payload.Title, payload.Content, ""); err != nil {
		s.logger.Error("failed to send desktop notification", "title", payload.Title, "error", err)
	}
}
