package notify

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) deliver(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestDispatcher_DeliversAndDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	dispatcher := NewDispatcher(8, sink.deliver)

	dispatcher.Publish(Event{Kind: EventAccountCredited, AccountId: "acct1", Amount: decimal.NewFromInt(100)})
	dispatcher.Publish(Event{Kind: EventCommissionPaid, AccountId: "acct2", Amount: decimal.NewFromInt(14)})
	dispatcher.Close()

	// Close returns only after buffered events reached the sink.
	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventAccountCredited, events[0].Kind)
	assert.Equal(t, EventCommissionPaid, events[1].Kind)
}

func TestDispatcher_PublishAfterCloseIsDropped(t *testing.T) {
	sink := &recordingSink{}
	dispatcher := NewDispatcher(8, sink.deliver)
	dispatcher.Close()

	// A publisher that outlives the shutdown must see a dropped event, not
	// a panic.
	assert.NotPanics(t, func() {
		dispatcher.Publish(Event{Kind: EventStakeMatured, AccountId: "acct1"})
	})
	assert.Empty(t, sink.Events())
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	dispatcher := NewDispatcher(1, func(Event) {})

	assert.NotPanics(t, func() {
		dispatcher.Close()
		dispatcher.Close()
	})
}

func TestDispatcher_ConcurrentPublishDuringClose(t *testing.T) {
	sink := &recordingSink{}
	dispatcher := NewDispatcher(4, sink.deliver)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotPanics(t, func() {
				dispatcher.Publish(Event{Kind: EventWithdrawalStateChanged, AccountId: "acct1"})
			})
		}()
	}
	dispatcher.Close()
	wg.Wait()
}
