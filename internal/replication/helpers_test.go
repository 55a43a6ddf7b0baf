package replication

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
)

// scriptedSource replays a fixed list of messages. When failAt is set, AttemptRead fails on
// that read. When endless is set, the source never finishes and keeps emitting records.
type scriptedSource struct {
	messages []*Message
	failAt   int
	failErr  error
	endless  bool
	startErr error

	mu         sync.Mutex
	pos        int
	reads      atomic.Int64
	state      json.RawMessage
	cancelled  atomic.Bool
	closed     atomic.Bool
	cancelErr  error
	readSignal chan struct{}
}

func (s *scriptedSource) Start(_ context.Context, _ map[string]any, _ Catalog, state json.RawMessage) error {
	s.state = state
	return s.startErr
}

func (s *scriptedSource) IsFinished() bool {
	if s.endless {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos >= len(s.messages)
}

func (s *scriptedSource) AttemptRead(ctx context.Context) (*Message, error) {
	n := s.reads.Add(1)
	if s.readSignal != nil && n == 10 {
		close(s.readSignal)
	}
	if s.failAt > 0 && int(n) == s.failAt {
		return nil, s.failErr
	}
	if s.endless {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return recordMsg("users", `{"id":0}`), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.messages) {
		return nil, nil
	}
	msg := s.messages[s.pos]
	s.pos++
	return msg, nil
}

func (s *scriptedSource) Cancel() error {
	s.cancelled.Store(true)
	return s.cancelErr
}

func (s *scriptedSource) Close() error {
	s.closed.Store(true)
	return nil
}

// memoryWriter is a StreamWriter keeping batches in memory
type memoryWriter struct {
	mu       sync.Mutex
	batches  map[StreamDescriptor][][]json.RawMessage
	startErr error
	writeErr error
	closed   bool
}

func newMemoryWriter() *memoryWriter {
	return &memoryWriter{batches: make(map[StreamDescriptor][][]json.RawMessage)}
}

func (w *memoryWriter) Start(_ context.Context, _ map[string]any, _ Catalog) error {
	return w.startErr
}

func (w *memoryWriter) Write(_ context.Context, stream StreamDescriptor, records []json.RawMessage) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches[stream] = append(w.batches[stream], records)
	return nil
}

func (w *memoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memoryWriter) records(stream StreamDescriptor) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches[stream] {
		n += len(b)
	}
	return n
}

func recordMsg(stream, data string) *Message {
	return &Message{
		Type:   MessageTypeRecord,
		Record: &Record{Stream: StreamDescriptor{Name: stream}, Data: json.RawMessage(data)},
	}
}

func stateMsg(data string) *Message {
	return &Message{Type: MessageTypeState, State: &State{Data: json.RawMessage(data)}}
}

func testCatalog(streams ...string) Catalog {
	var c Catalog
	for _, s := range streams {
		c.Streams = append(c.Streams, ConfiguredStream{
			Stream:              StreamDescriptor{Name: s},
			SyncMode:            SyncModeIncremental,
			DestinationSyncMode: DestinationSyncModeAppend,
		})
	}
	return c
}

var errBoom = errors.New("boom")
