package events

import (
	"strings"
	"sync"

	"PresaleSettlement/internal/models"
)

type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
)

type Event struct {
	Kind  Kind          `json:"kind"`
	Order *models.Order `json:"order"`
}

// Bus fans order change events out to live subscribers. Delivery is
// best-effort: a subscriber that stops draining its channel loses events
// instead of blocking writers.
type Bus struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

type Subscription struct {
	// wallet filters events to one purchaser; empty receives everything.
	wallet string
	ch     chan Event
}

func (s *Subscription) C() <-chan Event {
	return s.ch
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

func (b *Bus) Subscribe(wallet string) *Subscription {
	sub := &Subscription{
		wallet: strings.ToLower(wallet),
		ch:     make(chan Event, 16),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(evt Event) {
	if evt.Order == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if sub.wallet != "" && sub.wallet != strings.ToLower(evt.Order.WalletAddress) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}
