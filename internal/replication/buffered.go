package replication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrDestinationClosed is returned by Accept after end of input or cancellation
var ErrDestinationClosed = errors.New("destination no longer accepts messages")

// StreamWriter persists batches of records for a stream. Writes of one destination are never
// concurrent.
type StreamWriter interface {
	// Start prepares the streams of the catalog; overwrite streams are cleared here
	Start(ctx context.Context, config map[string]any, catalog Catalog) error

	// Write durably stores a batch of records of one stream
	Write(ctx context.Context, stream StreamDescriptor, records []json.RawMessage) error

	// Close releases the writer
	Close() error
}

// Committer is implemented by destinations that know how much of their input is durably written
type Committer interface {
	// CommittedRecords returns how many records were durably written
	CommittedRecords() int64

	// CommittedState returns the last state whose preceding records were all written
	CommittedState() json.RawMessage
}

type batch struct {
	stream  StreamDescriptor
	records []json.RawMessage
}

// flushRequest is handed to the flush worker. A request with hasState set is a barrier: its
// state is committed only after all its batches, and every batch sent before it, were written.
type flushRequest struct {
	batches  []batch
	state    json.RawMessage
	hasState bool
}

type streamBuffer struct {
	records []json.RawMessage
	bytes   int64
}

// BufferedDestination is a Destination that buffers records per stream and hands full buffers to
// a single flush worker. Accept blocks while the worker is busy, so no record is ever dropped
// and memory stays bounded by the per-stream threshold.
type BufferedDestination struct {
	writer    StreamWriter
	threshold int64

	// touched only by the goroutine calling Accept
	buffers map[StreamDescriptor]*streamBuffer
	order   []StreamDescriptor
	states  stateCollector
	dirty   bool

	flushes  chan flushRequest
	group    *errgroup.Group
	groupCtx context.Context
	cancel   context.CancelFunc
	ended    bool
	drained  bool
	closeCh  sync.Once

	committedRecords atomic.Int64
	mu               sync.Mutex
	committedState   json.RawMessage
}

// NewBufferedDestination wraps writer with per-stream buffers of threshold bytes
func NewBufferedDestination(writer StreamWriter, threshold int64) *BufferedDestination {
	if threshold <= 0 {
		threshold = 1
	}
	return &BufferedDestination{
		writer:    writer,
		threshold: threshold,
		buffers:   make(map[StreamDescriptor]*streamBuffer),
		flushes:   make(chan flushRequest),
	}
}

// Start starts the writer and the flush worker
func (d *BufferedDestination) Start(ctx context.Context, config map[string]any, catalog Catalog) error {
	if err := d.writer.Start(ctx, config, catalog); err != nil {
		return err
	}

	workerCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.group, d.groupCtx = errgroup.WithContext(workerCtx)
	d.group.Go(func() error {
		return d.flushLoop(d.groupCtx)
	})
	return nil
}

func (d *BufferedDestination) flushLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-d.flushes:
			if !ok {
				return nil
			}
			for _, b := range req.batches {
				if err := d.writer.Write(ctx, b.stream, b.records); err != nil {
					return TransientError("", fmt.Sprintf("failed to write stream %s", b.stream), err)
				}
				d.committedRecords.Add(int64(len(b.records)))
			}
			if req.hasState {
				d.mu.Lock()
				d.committedState = req.state
				d.mu.Unlock()
			}
		}
	}
}

// Accept buffers a record, or turns a state message into a flush barrier
func (d *BufferedDestination) Accept(ctx context.Context, msg *Message) error {
	if d.group == nil {
		return fmt.Errorf("destination was not started")
	}
	if d.ended {
		return ErrDestinationClosed
	}
	if msg == nil {
		return nil
	}

	switch msg.Type {
	case MessageTypeRecord:
		if msg.Record == nil {
			return nil
		}
		buf, ok := d.buffers[msg.Record.Stream]
		if !ok {
			buf = &streamBuffer{}
			d.buffers[msg.Record.Stream] = buf
			d.order = append(d.order, msg.Record.Stream)
		}
		buf.records = append(buf.records, msg.Record.Data)
		buf.bytes += int64(len(msg.Record.Data))
		if buf.bytes >= d.threshold {
			req := flushRequest{batches: []batch{{stream: msg.Record.Stream, records: buf.records}}}
			d.buffers[msg.Record.Stream] = &streamBuffer{}
			return d.send(ctx, req)
		}
	case MessageTypeState:
		d.states.accept(msg.State)
		d.dirty = true
		return d.send(ctx, d.drain(true))
	case MessageTypeLog:
	}
	return nil
}

// drain empties every buffer into one request, optionally carrying the collected state
func (d *BufferedDestination) drain(withState bool) flushRequest {
	var req flushRequest
	for _, s := range d.order {
		buf := d.buffers[s]
		if len(buf.records) == 0 {
			continue
		}
		req.batches = append(req.batches, batch{stream: s, records: buf.records})
		d.buffers[s] = &streamBuffer{}
	}
	if withState && d.dirty {
		req.state = d.states.output()
		req.hasState = true
		d.dirty = false
	}
	return req
}

// send blocks until the flush worker takes the request
func (d *BufferedDestination) send(ctx context.Context, req flushRequest) error {
	if len(req.batches) == 0 && !req.hasState {
		return nil
	}
	select {
	case d.flushes <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.groupCtx.Done():
		if err := d.group.Wait(); err != nil {
			return err
		}
		return d.groupCtx.Err()
	}
}

// NotifyEndOfInput flushes every buffer and waits for the flush worker to finish
func (d *BufferedDestination) NotifyEndOfInput() error {
	if d.group == nil {
		return fmt.Errorf("destination was not started")
	}
	if d.ended {
		return nil
	}
	err := d.send(context.Background(), d.drain(true))
	d.endInput()
	d.drained = true
	if waitErr := d.group.Wait(); waitErr != nil {
		return waitErr
	}
	return err
}

func (d *BufferedDestination) endInput() {
	d.ended = true
	d.closeCh.Do(func() {
		close(d.flushes)
	})
}

// Cancel stops the flush worker without writing what is still buffered
func (d *BufferedDestination) Cancel() error {
	d.ended = true
	if d.cancel != nil {
		d.cancel()
	}
	return nil
}

// Close stops the flush worker if still running and closes the writer
func (d *BufferedDestination) Close() error {
	var errs []error
	if d.group != nil {
		if !d.ended {
			// Close without end of input discards buffered records
			d.cancel()
		}
		d.endInput()
		if err := d.group.Wait(); err != nil && !d.drained && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
		d.cancel()
	}
	if err := d.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close writer: %w", err))
	}
	return errors.Join(errs...)
}

// CommittedRecords returns the number of records the writer stored
func (d *BufferedDestination) CommittedRecords() int64 {
	return d.committedRecords.Load()
}

// CommittedState returns the last state all of whose preceding records were stored
func (d *BufferedDestination) CommittedState() json.RawMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.committedState
}
