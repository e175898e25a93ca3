package server

import (
	"sync"

	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/bubbleboard/pkg/usecase/feed"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrSubscriberExists   = goerr.New("subscriber already exists")
	ErrSubscriberNotFound = goerr.New("subscriber not found")
	ErrHubClosed          = goerr.New("hub is closed")
)

// Layout is one frame pushed to browsers.
type Layout struct {
	Status  model.FeedStatus `json:"status"`
	Error   string           `json:"error,omitempty"`
	Count   int              `json:"count"`
	Bubbles []*model.Bubble  `json:"bubbles"`
}

func layoutFromSnapshot(snap feed.Snapshot) Layout {
	bubbles := snap.Bubbles
	if bubbles == nil {
		bubbles = []*model.Bubble{}
	}
	return Layout{
		Status:  snap.Status,
		Error:   snap.Error,
		Count:   len(snap.Submissions),
		Bubbles: bubbles,
	}
}

type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type hubSubscriber struct {
	ch    chan Layout
	stats SubscriberStats
}

// Hub fans layouts out to subscribers without blocking the publisher. Each subscriber
// has a one-slot buffer; a slow subscriber loses intermediate layouts but always ends up
// with the newest one.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]*hubSubscriber
	latest      *Layout
	published   uint64
	closed      bool
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]*hubSubscriber),
	}
}

// Subscribe registers id. The returned channel already holds the latest layout, if any,
// and is closed by Unsubscribe or Close.
func (h *Hub) Subscribe(id string) (<-chan Layout, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if _, exists := h.subscribers[id]; exists {
		return nil, goerr.Wrap(ErrSubscriberExists, "failed to subscribe", goerr.V("id", id))
	}

	s := &hubSubscriber{ch: make(chan Layout, 1)}
	if h.latest != nil {
		s.ch <- *h.latest
		s.stats.Sent++
	}
	h.subscribers[id] = s
	return s.ch, nil
}

func (h *Hub) Publish(layout Layout) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.latest = &layout
	h.published++

	for _, s := range h.subscribers {
		select {
		case s.ch <- layout:
			s.stats.Sent++
			continue
		default:
		}

		// full: replace the stale frame with the new one
		select {
		case <-s.ch:
			s.stats.Dropped++
		default:
		}
		select {
		case s.ch <- layout:
			s.stats.Sent++
		default:
			s.stats.Dropped++
		}
	}
}

func (h *Hub) Unsubscribe(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.subscribers[id]
	if !ok {
		return goerr.Wrap(ErrSubscriberNotFound, "failed to unsubscribe", goerr.V("id", id))
	}
	close(s.ch)
	delete(h.subscribers, id)
	return nil
}

func (h *Hub) Stats(id string) (SubscriberStats, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.subscribers[id]
	if !ok {
		return SubscriberStats{}, goerr.Wrap(ErrSubscriberNotFound, "failed to read stats", goerr.V("id", id))
	}
	return s.stats, nil
}

// Published returns how many layouts have been published.
func (h *Hub) Published() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.published
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close ends every subscription. Later Publish calls are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subscribers {
		close(s.ch)
		delete(h.subscribers, id)
	}
}
