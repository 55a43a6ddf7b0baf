package replication

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// MessageTracker accumulates counters and the latest state for one attempt
type MessageTracker interface {
	Accept(msg *Message)
	RecordCount() int64
	BytesCount() int64
	// OutputState returns the last state seen, or nil
	OutputState() json.RawMessage
	StreamStats() []StreamStatsSnapshot
}

// StreamStatsSnapshot is the per-stream counters of a tracker
type StreamStatsSnapshot struct {
	Stream           StreamDescriptor
	Records          int64
	Bytes            int64
	InvalidRecords   int64
	ValidationErrors []string
}

type streamCounters struct {
	records          int64
	bytes            int64
	invalid          int64
	validationErrors []string
}

// messageTracker is the default MessageTracker. It keeps per-stream counters, the latest global
// state and the latest state of each stream.
type messageTracker struct {
	mu                 sync.Mutex
	maxValidationPerSt int
	streams            map[StreamDescriptor]*streamCounters
	states             stateCollector
	schemas            StreamSchemas
}

// StreamSchemas holds the compiled record schema of each stream that declares one
type StreamSchemas map[StreamDescriptor]*jsonschema.Schema

// CompileSchemas compiles the JSON schemas of a catalog. The catalog must use the stream names
// the tracker will see, i.e. the mapped catalog.
func CompileSchemas(catalog Catalog) (StreamSchemas, error) {
	schemas := make(StreamSchemas)
	compiler := jsonschema.NewCompiler()
	for i, s := range catalog.Streams {
		if len(s.JSONSchema) == 0 {
			continue
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(s.JSONSchema))
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema of stream %s: %w", s.Stream, err)
		}
		url := fmt.Sprintf("https://connsync.local/schemas/stream-%d.json", i)
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("failed to add schema of stream %s: %w", s.Stream, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema of stream %s: %w", s.Stream, err)
		}
		schemas[s.Stream] = schema
	}
	return schemas, nil
}

// NewMessageTracker creates a tracker keeping up to maxValidationErrors samples per stream.
// Records of streams with a schema are validated against it; every record must be a JSON object.
func NewMessageTracker(maxValidationErrors int, schemas StreamSchemas) MessageTracker {
	return &messageTracker{
		maxValidationPerSt: maxValidationErrors,
		streams:            make(map[StreamDescriptor]*streamCounters),
		schemas:            schemas,
	}
}

func (t *messageTracker) Accept(msg *Message) {
	if msg == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch msg.Type {
	case MessageTypeRecord:
		if msg.Record == nil {
			return
		}
		c := t.counters(msg.Record.Stream)
		c.records++
		c.bytes += int64(len(msg.Record.Data))
		if err := validateRecord(msg.Record.Data, t.schemas[msg.Record.Stream]); err != nil {
			c.invalid++
			if len(c.validationErrors) < t.maxValidationPerSt {
				c.validationErrors = append(c.validationErrors, err.Error())
			}
		}
	case MessageTypeState:
		t.states.accept(msg.State)
	case MessageTypeLog:
	}
}

func (t *messageTracker) counters(s StreamDescriptor) *streamCounters {
	c, ok := t.streams[s]
	if !ok {
		c = &streamCounters{}
		t.streams[s] = c
	}
	return c
}

func (t *messageTracker) RecordCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var n int64
	for _, c := range t.streams {
		n += c.records
	}
	return n
}

func (t *messageTracker) BytesCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var n int64
	for _, c := range t.streams {
		n += c.bytes
	}
	return n
}

// OutputState returns the latest global state, or the latest state of every stream
func (t *messageTracker) OutputState() json.RawMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states.output()
}

func (t *messageTracker) StreamStats() []StreamStatsSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]StreamStatsSnapshot, 0, len(t.streams))
	for s, c := range t.streams {
		out = append(out, StreamStatsSnapshot{
			Stream:           s,
			Records:          c.records,
			Bytes:            c.bytes,
			InvalidRecords:   c.invalid,
			ValidationErrors: append([]string(nil), c.validationErrors...),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Stream.String() < out[j].Stream.String()
	})
	return out
}

func validateRecord(data json.RawMessage, schema *jsonschema.Schema) error {
	if len(data) == 0 {
		return fmt.Errorf("record has no data")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("record data is not valid JSON: %w", err)
	}
	if _, ok := inst.(map[string]any); !ok {
		return fmt.Errorf("record data is not a JSON object")
	}
	if schema == nil {
		return nil
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("record does not match stream schema: %w", err)
	}
	return nil
}

// stateCollector keeps the latest global state and the latest state of each stream
type stateCollector struct {
	global   json.RawMessage
	byStream map[StreamDescriptor]json.RawMessage
	order    []StreamDescriptor
}

func (c *stateCollector) accept(st *State) {
	if st == nil {
		return
	}
	data := append(json.RawMessage(nil), st.Data...)
	if st.Stream == nil {
		c.global = data
		return
	}
	if c.byStream == nil {
		c.byStream = make(map[StreamDescriptor]json.RawMessage)
	}
	s := *st.Stream
	if _, seen := c.byStream[s]; !seen {
		c.order = append(c.order, s)
	}
	c.byStream[s] = data
}

// output returns the global state, or the per-stream states as a JSON array of State in the
// order streams first reported state. Nil when no state was seen.
func (c *stateCollector) output() json.RawMessage {
	if len(c.byStream) == 0 {
		if len(c.global) == 0 {
			return nil
		}
		return append(json.RawMessage(nil), c.global...)
	}

	states := make([]State, 0, len(c.order))
	for _, s := range c.order {
		stream := s
		states = append(states, State{Stream: &stream, Data: c.byStream[s]})
	}
	data, err := json.Marshal(states)
	if err != nil {
		return nil
	}
	return data
}
