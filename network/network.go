package network

import (
	"context"
	"slices"
	"sync"

	"github.com/pitabwire/util"
	"github.com/rs/xid"
)

// Status is a connectivity snapshot as reported by the platform.
type Status struct {
	Connected         bool `json:"connected"`
	InternetReachable bool `json:"internetReachable"`
}

// Online reports whether the device is connected and the internet is reachable.
func (s Status) Online() bool {
	return s.Connected && s.InternetReachable
}

// Handler receives every published status.
type Handler func(ctx context.Context, status Status)

type Subscription interface {
	ID() string
	Unsubscribe()
}

// Monitor is the read side of connectivity tracking.
type Monitor interface {
	Current() Status
	Subscribe(handler Handler) Subscription
}

type subscriber struct {
	id      string
	handler Handler
}

// Notifier is a Monitor fed by Publish, typically from a platform bridge or a Prober.
type Notifier struct {
	mu          sync.RWMutex
	current     Status
	subscribers []subscriber
}

var _ Monitor = (*Notifier)(nil)

func NewNotifier(initial Status) *Notifier {
	return &Notifier{current: initial}
}

func (n *Notifier) Current() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.current
}

func (n *Notifier) Subscribe(handler Handler) Subscription {
	sub := &subscription{id: xid.New().String(), notifier: n}
	if handler == nil {
		return sub
	}

	n.mu.Lock()
	n.subscribers = append(n.subscribers, subscriber{id: sub.id, handler: handler})
	n.mu.Unlock()
	return sub
}

// Publish records status and calls every handler in subscription order on the caller's goroutine.
func (n *Notifier) Publish(ctx context.Context, status Status) {
	n.mu.Lock()
	previous := n.current
	n.current = status
	handlers := make([]Handler, 0, len(n.subscribers))
	for _, s := range n.subscribers {
		handlers = append(handlers, s.handler)
	}
	n.mu.Unlock()

	if previous.Online() != status.Online() {
		util.Log(ctx).
			WithField("connected", status.Connected).
			WithField("internet_reachable", status.InternetReachable).
			Info("connectivity changed")
	}

	for _, h := range handlers {
		h(ctx, status)
	}
}

func (n *Notifier) remove(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers = slices.DeleteFunc(n.subscribers, func(s subscriber) bool {
		return s.id == id
	})
}

type subscription struct {
	id       string
	notifier *Notifier
	once     sync.Once
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.notifier.remove(s.id)
	})
}
