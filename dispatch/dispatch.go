// Package dispatch fans live change notifications out to subscribers by
// topic. It is strictly a fan-out of live events: subscribers registered
// after a publish completed never see that publish.
package dispatch

import (
	"encoding/json"
	"sync"

	"github.com/quillworks/quill"
)

// Matcher decides whether a subscription wants a topic. A nil Matcher
// matches every topic.
type Matcher func(topic string) bool

// Topic returns a Matcher accepting exactly one topic.
func Topic(name string) Matcher {
	return func(t string) bool { return t == name }
}

// Any returns a Matcher accepting every topic.
func Any() Matcher {
	return func(string) bool { return true }
}

// Handler receives a published notification.
type Handler func(topic string, payload json.RawMessage)

type subscription struct {
	id      uint64
	matcher Matcher
	handler Handler
}

// Dispatcher routes published notifications to matching subscribers,
// synchronously and in registration order. Safe for concurrent use.
type Dispatcher struct {
	logger quill.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   []*subscription
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithLogger sets the logger used to report recovered subscriber panics.
func WithLogger(l quill.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: quill.NopLogger{}}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Subscribe registers a handler for topics accepted by m and returns its
// unsubscribe function. Unsubscribing twice is a no-op.
func (d *Dispatcher) Subscribe(m Matcher, h Handler) func() {
	d.mu.Lock()
	d.nextID++
	sub := &subscription{id: d.nextID, matcher: m, handler: h}
	d.subs = append(d.subs, sub)
	d.mu.Unlock()

	return func() { d.unsubscribe(sub.id) }
}

func (d *Dispatcher) unsubscribe(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subs {
		if s.id == id {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers payload to every subscriber whose matcher accepts
// topic, in registration order. A panicking subscriber is recovered and
// logged so later subscribers still receive the notification.
func (d *Dispatcher) Publish(topic string, payload json.RawMessage) {
	d.mu.RLock()
	subs := make([]*subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	for _, s := range subs {
		if s.matcher != nil && !s.matcher(topic) {
			continue
		}
		d.invoke(s.handler, topic, payload)
	}
}

func (d *Dispatcher) invoke(h Handler, topic string, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("subscriber panicked during publish", "topic", topic, "panic", r)
		}
	}()
	h(topic, payload)
}
