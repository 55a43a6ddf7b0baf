package connection

import (
	"sync"

	"github.com/stacklok/connsync/internal/ledger"
)

// SignalType is the kind of a signal sent to a state machine instance
type SignalType string

const (
	// SignalManualSync runs a job without waiting for the schedule
	SignalManualSync SignalType = "manual_sync"

	// SignalCancel cancels the running job
	SignalCancel SignalType = "cancel"

	// SignalUpdate replaces the connection definition and restarts the scheduling cycle
	SignalUpdate SignalType = "update"

	// SignalDelete stops scheduling the connection
	SignalDelete SignalType = "delete"

	// SignalReset requests a reset of streams
	SignalReset SignalType = "reset"

	// SignalRetryFailedActivity releases a quarantined instance
	SignalRetryFailedActivity SignalType = "retry_failed_activity"
)

// Signal is a message sent to a state machine instance
type Signal struct {
	Type SignalType

	// Definition is the new definition of an update signal
	Definition *Definition

	// Streams are the streams of a reset signal
	Streams []ledger.StreamDescriptor

	// WithScheduling keeps the schedule wait before the reset job runs
	WithScheduling bool
}

// signalQueue is an unbounded FIFO. Senders never block; the receiver selects on ready().
type signalQueue struct {
	mu     sync.Mutex
	items  []Signal
	notify chan struct{}
}

func newSignalQueue() *signalQueue {
	return &signalQueue{notify: make(chan struct{}, 1)}
}

func (q *signalQueue) push(s Signal) {
	q.mu.Lock()
	q.items = append(q.items, s)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *signalQueue) ready() <-chan struct{} {
	return q.notify
}

// pop returns the oldest signal. When signals remain it re-arms the ready channel.
func (q *signalQueue) pop() (Signal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Signal{}, false
	}
	s := q.items[0]
	q.items = q.items[1:]
	if len(q.items) > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return s, true
}
