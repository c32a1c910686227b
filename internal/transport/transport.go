package transport

import "context"

// Transport is a framed, bidirectional connection to the push endpoint.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, payload []byte) error
}

// StatusTargetResolver exposes a human-readable connection target for status
// reporting.
type StatusTargetResolver interface {
	StatusTarget() string
}
