package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stacklok/connsync/internal/clock"
	"github.com/stacklok/connsync/internal/replication"
	"github.com/stacklok/connsync/internal/status"
)

const (
	defaultFakerRecords    = 100
	defaultFakerStateEvery = 10
	defaultFakerStream     = "users"
)

// ErrInjectedFailure is the error a faker source configured with failAfter returns
var ErrInjectedFailure = errors.New("injected failure")

type fakerConfig struct {
	// Records is the number of records per stream
	Records int `mapstructure:"records"`
	// StateEvery emits a checkpoint after this many records
	StateEvery int `mapstructure:"stateEvery"`
	// FailAfter fails the read after this many records in one attempt; 0 never fails
	FailAfter int `mapstructure:"failAfter"`
	// FailWithConfigError makes the injected failure a non-retryable configuration error
	FailWithConfigError bool `mapstructure:"failWithConfigError"`
	// ReadDelay is waited before every record, on the wall clock
	ReadDelay time.Duration `mapstructure:"readDelay"`
	// Streams are the streams discovered when the connection selects none
	Streams []string `mapstructure:"streams"`
}

// FakerSource emits synthetic records for every stream of the catalog, one stream after the
// other. Its state is {"cursor": n} where n is the number of records already emitted, so an
// attempt resumes where the last committed checkpoint left off.
type FakerSource struct {
	clock   clock.Clock
	cfg     fakerConfig
	streams []replication.StreamDescriptor

	cursor       int
	total        int
	emitted      int
	pendingState bool
	finalState   bool
	done         atomic.Bool
}

// Discover returns the configured streams, or a single users stream
func (*FakerSource) Discover(_ context.Context, config map[string]any) (replication.Catalog, error) {
	var cfg fakerConfig
	if err := decodeConfig(status.FailureOriginSource, config, &cfg); err != nil {
		return replication.Catalog{}, err
	}
	names := cfg.Streams
	if len(names) == 0 {
		names = []string{defaultFakerStream}
	}

	var catalog replication.Catalog
	for _, name := range names {
		catalog.Streams = append(catalog.Streams, replication.ConfiguredStream{
			Stream:              replication.StreamDescriptor{Name: name},
			SyncMode:            replication.SyncModeIncremental,
			DestinationSyncMode: replication.DestinationSyncModeAppend,
			JSONSchema:          json.RawMessage(fakerSchema),
		})
	}
	return catalog, nil
}

const fakerSchema = `{
  "type": "object",
  "required": ["id", "name"],
  "properties": {
    "id": {"type": "integer"},
    "name": {"type": "string"},
    "stream": {"type": "string"}
  }
}`

// Start decodes the configuration and positions the cursor from the input state
func (s *FakerSource) Start(_ context.Context, config map[string]any, catalog replication.Catalog,
	state json.RawMessage) error {
	s.cfg = fakerConfig{Records: defaultFakerRecords, StateEvery: defaultFakerStateEvery}
	if err := decodeConfig(status.FailureOriginSource, config, &s.cfg); err != nil {
		return err
	}
	if s.cfg.Records < 0 || s.cfg.StateEvery <= 0 || s.cfg.FailAfter < 0 {
		return replication.ConfigError(status.FailureOriginSource,
			"records and failAfter must not be negative and stateEvery must be positive", nil)
	}
	if len(catalog.Streams) == 0 {
		return replication.ConfigError(status.FailureOriginSource, "catalog has no streams", nil)
	}

	for _, st := range catalog.Streams {
		s.streams = append(s.streams, st.Stream)
	}
	s.total = s.cfg.Records * len(s.streams)
	if len(state) > 0 {
		cursor := gjson.GetBytes(state, "cursor")
		if !cursor.Exists() || cursor.Type != gjson.Number {
			return replication.ConfigError(status.FailureOriginSource, "state has no numeric cursor", nil)
		}
		s.cursor = min(int(cursor.Int()), s.total)
	}
	return nil
}

// IsFinished reports whether every record and the final checkpoint were emitted
func (s *FakerSource) IsFinished() bool {
	return s.done.Load()
}

// AttemptRead returns the next record or checkpoint
func (s *FakerSource) AttemptRead(ctx context.Context) (*replication.Message, error) {
	if s.done.Load() {
		return nil, nil
	}
	if s.pendingState {
		s.pendingState = false
		return s.stateMessage(), nil
	}
	if s.cursor >= s.total {
		// A final checkpoint is emitted once, also when the input was already exhausted
		s.done.Store(true)
		if s.finalState {
			return nil, nil
		}
		return s.stateMessage(), nil
	}

	if s.cfg.FailAfter > 0 && s.emitted >= s.cfg.FailAfter {
		if s.cfg.FailWithConfigError {
			return nil, replication.ConfigError(status.FailureOriginSource, "faker was told to fail", ErrInjectedFailure)
		}
		return nil, replication.TransientError(status.FailureOriginSource, "faker was told to fail", ErrInjectedFailure)
	}

	if s.cfg.ReadDelay > 0 {
		timer := time.NewTimer(s.cfg.ReadDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	stream := s.streams[s.cursor/max(s.cfg.Records, 1)]
	id := s.cursor%max(s.cfg.Records, 1) + 1
	data, err := json.Marshal(map[string]any{
		"id":     id,
		"name":   stream.Name + "-" + strconv.Itoa(id),
		"stream": stream.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	s.cursor++
	s.emitted++
	if s.cursor%s.cfg.StateEvery == 0 {
		s.pendingState = true
		if s.cursor >= s.total {
			s.finalState = true
		}
	}

	return &replication.Message{
		Type: replication.MessageTypeRecord,
		Record: &replication.Record{
			Stream:    stream,
			Data:      data,
			EmittedAt: s.now(),
		},
	}, nil
}

func (s *FakerSource) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}

func (s *FakerSource) stateMessage() *replication.Message {
	return &replication.Message{
		Type:  replication.MessageTypeState,
		State: &replication.State{Data: json.RawMessage(fmt.Sprintf(`{"cursor":%d}`, s.cursor))},
	}
}

// Cancel stops the source
func (s *FakerSource) Cancel() error {
	s.done.Store(true)
	return nil
}

// Close is a no-op
func (*FakerSource) Close() error {
	return nil
}

// EmptySource has no records. Reset jobs read from it so the destination only clears streams.
type EmptySource struct{}

// Start is a no-op
func (*EmptySource) Start(context.Context, map[string]any, replication.Catalog, json.RawMessage) error {
	return nil
}

// IsFinished is always true
func (*EmptySource) IsFinished() bool {
	return true
}

// AttemptRead never returns a message
func (*EmptySource) AttemptRead(context.Context) (*replication.Message, error) {
	return nil, nil
}

// Cancel is a no-op
func (*EmptySource) Cancel() error {
	return nil
}

// Close is a no-op
func (*EmptySource) Close() error {
	return nil
}
