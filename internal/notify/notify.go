package notify

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventKind identifies the outbound notification types the UI collaborator
// consumes.
type EventKind string

const (
	EventAccountCredited        EventKind = "account-credited"
	EventWithdrawalStateChanged EventKind = "withdrawal-state-changed"
	EventCommissionPaid         EventKind = "commission-paid"
	EventSuspiciousTransfer     EventKind = "suspicious-transfer-flagged"
	EventStakeMatured           EventKind = "stake-matured"
)

// Event is one outbound notification. Delivery is best-effort; a failed or
// dropped event never affects committed ledger state.
type Event struct {
	Kind      EventKind
	AccountId string
	Amount    decimal.Decimal
	Message   string
	Severity  string // set for suspicious-transfer-flagged only
}

// Port is the single seam through which engines emit notifications.
// Implementations must never block the caller.
type Port interface {
	Publish(event Event)
}

// Dispatcher fans events out to a sink on a background goroutine. Publish is
// non-blocking: when the buffer is full, or the dispatcher is already closed,
// the event is dropped with a log line. Publish never panics, even when it
// races a shutdown.
type Dispatcher struct {
	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// Sink delivers one event to the outside world (mail, webhook, ...).
type Sink func(event Event)

func NewDispatcher(buffer int, sink Sink) *Dispatcher {
	d := &Dispatcher{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(d.done)
		for event := range d.events {
			sink(event)
		}
	}()

	return d
}

func (d *Dispatcher) Publish(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		zap.L().Warn("Notification dispatcher closed, dropping event",
			zap.String("kind", string(event.Kind)),
			zap.String("account_id", event.AccountId))
		return
	}

	select {
	case d.events <- event:
	default:
		zap.L().Warn("Notification buffer full, dropping event",
			zap.String("kind", string(event.Kind)),
			zap.String("account_id", event.AccountId))
	}
}

// Close stops the dispatcher after draining buffered events. Safe to call
// more than once; Publish calls arriving after (or during) Close are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	<-d.done
}

// LogSink writes events to the global logger. It is the default sink; a real
// deployment swaps in mail or webhook delivery.
func LogSink(event Event) {
	zap.L().Info("Notification",
		zap.String("kind", string(event.Kind)),
		zap.String("account_id", event.AccountId),
		zap.String("amount", event.Amount.String()),
		zap.String("message", event.Message))
}
