// Package connectors provides the built-in source and destination connectors: a faker source
// for synthetic data, an empty source used by reset jobs, a devnull destination and a JSON Lines
// file destination.
package connectors

import (
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/stacklok/connsync/internal/clock"
	"github.com/stacklok/connsync/internal/replication"
	"github.com/stacklok/connsync/internal/status"
)

// Connector types
const (
	TypeFaker   = "faker"
	TypeEmpty   = "empty"
	TypeDevNull = "devnull"
	TypeJSONL   = "jsonl"
)

// ErrUnknownConnector is returned for a connector type that is not registered
var ErrUnknownConnector = errors.New("unknown connector type")

// Registry builds fresh connector instances for every attempt
type Registry struct {
	bufferByteThreshold int64
	clock               clock.Clock
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithClock sets the clock sources stamp records with
func WithClock(c clock.Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = c
	}
}

// NewRegistry creates a registry whose destinations buffer up to bufferByteThreshold bytes per stream
func NewRegistry(bufferByteThreshold int64, opts ...RegistryOption) *Registry {
	r := &Registry{bufferByteThreshold: bufferByteThreshold}
	for _, opt := range opts {
		opt(r)
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	return r
}

// Source returns a source for the given type. Reset jobs always read from the empty source.
func (r *Registry) Source(sourceType string, configType status.ConfigType) (replication.Source, error) {
	if configType == status.ConfigTypeReset {
		return &EmptySource{}, nil
	}
	switch sourceType {
	case TypeFaker:
		return &FakerSource{clock: r.clock}, nil
	case TypeEmpty:
		return &EmptySource{}, nil
	default:
		return nil, fmt.Errorf("%w: source '%s'", ErrUnknownConnector, sourceType)
	}
}

// Destination returns a buffered destination for the given type
func (r *Registry) Destination(destinationType string) (replication.Destination, error) {
	var writer replication.StreamWriter
	switch destinationType {
	case TypeDevNull:
		writer = &DevNullWriter{}
	case TypeJSONL:
		writer = &JSONLWriter{}
	default:
		return nil, fmt.Errorf("%w: destination '%s'", ErrUnknownConnector, destinationType)
	}
	return replication.NewBufferedDestination(writer, r.bufferByteThreshold), nil
}

// decodeConfig decodes a loosely typed connector configuration. YAML and JSON numbers and
// duration strings are both accepted.
func decodeConfig(origin status.FailureOrigin, input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           out,
	})
	if err != nil {
		return replication.ConfigError(origin, "invalid connector configuration", err)
	}
	if err := decoder.Decode(input); err != nil {
		return replication.ConfigError(origin, "invalid connector configuration", err)
	}
	return nil
}
