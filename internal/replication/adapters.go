package replication

import (
	"context"
	"encoding/json"
)

//go:generate mockgen -destination=mocks/mock_adapters.go -package=mocks -source=adapters.go Source,Destination

// Source reads messages from an external system
type Source interface {
	// Start opens the source with its configuration, the catalog to read and the state to resume from
	Start(ctx context.Context, config map[string]any, catalog Catalog, state json.RawMessage) error

	// IsFinished reports whether the source has no more input
	IsFinished() bool

	// AttemptRead returns the next message. A nil message with a nil error means nothing was
	// available yet.
	AttemptRead(ctx context.Context) (*Message, error)

	// Cancel stops the source early
	Cancel() error

	// Close releases the source
	Close() error
}

// Destination writes messages to an external system. Accept may buffer internally but must
// block rather than drop a message when its buffers are full.
type Destination interface {
	// Start opens the destination with its configuration and the catalog it will receive
	Start(ctx context.Context, config map[string]any, catalog Catalog) error

	// Accept takes responsibility for a message
	Accept(ctx context.Context, msg *Message) error

	// NotifyEndOfInput tells the destination no more messages follow; buffered data is flushed
	NotifyEndOfInput() error

	// Cancel stops the destination early
	Cancel() error

	// Close releases the destination
	Close() error
}

// Discoverer is implemented by sources that can list their streams. It is used to build the
// catalog of connections that select no streams.
type Discoverer interface {
	Discover(ctx context.Context, config map[string]any) (Catalog, error)
}
