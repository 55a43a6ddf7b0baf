// Package replication implements the loop that pumps messages from a source adapter through a
// mapper to a destination adapter for one attempt.
package replication

import (
	"encoding/json"
	"time"
)

// MessageType is the kind of a message exchanged with adapters
type MessageType string

const (
	// MessageTypeRecord carries one row of a stream
	MessageTypeRecord MessageType = "RECORD"

	// MessageTypeState carries a checkpoint the source can resume from
	MessageTypeState MessageType = "STATE"

	// MessageTypeLog carries a log line from an adapter
	MessageTypeLog MessageType = "LOG"
)

// StreamDescriptor identifies a stream
type StreamDescriptor struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// String returns namespace.name, or name without a namespace
func (s StreamDescriptor) String() string {
	if s.Namespace == "" {
		return s.Name
	}
	return s.Namespace + "." + s.Name
}

// Record is one row of a stream
type Record struct {
	Stream    StreamDescriptor `json:"stream"`
	Data      json.RawMessage  `json:"data"`
	EmittedAt time.Time        `json:"emittedAt"`
}

// State is a checkpoint. Stream is set for per-stream state and nil for global state.
type State struct {
	Stream *StreamDescriptor `json:"stream,omitempty"`
	Data   json.RawMessage   `json:"data"`
}

// Log is a log line emitted by an adapter
type Log struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Message is the unit read from sources and written to destinations
type Message struct {
	Type   MessageType `json:"type"`
	Record *Record     `json:"record,omitempty"`
	State  *State      `json:"state,omitempty"`
	Log    *Log        `json:"log,omitempty"`
}

// SyncMode is how a stream is read and written
type SyncMode string

const (
	// SyncModeFullRefresh reads the whole stream every time
	SyncModeFullRefresh SyncMode = "full_refresh"

	// SyncModeIncremental reads from the last checkpoint
	SyncModeIncremental SyncMode = "incremental"
)

// DestinationSyncMode is how a destination applies a stream
type DestinationSyncMode string

const (
	// DestinationSyncModeAppend appends records
	DestinationSyncModeAppend DestinationSyncMode = "append"

	// DestinationSyncModeOverwrite replaces the stream contents
	DestinationSyncModeOverwrite DestinationSyncMode = "overwrite"
)

// ConfiguredStream is a stream selected for replication
type ConfiguredStream struct {
	Stream              StreamDescriptor    `json:"stream"`
	SyncMode            SyncMode            `json:"syncMode"`
	DestinationSyncMode DestinationSyncMode `json:"destinationSyncMode"`
	// JSONSchema describes the records of the stream; records are not validated when empty
	JSONSchema json.RawMessage `json:"jsonSchema,omitempty"`
}

// Catalog lists the streams of an attempt
type Catalog struct {
	Streams []ConfiguredStream `json:"streams"`
}

// Names returns the stream names of the catalog
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.Streams))
	for _, s := range c.Streams {
		names = append(names, s.Stream.String())
	}
	return names
}
