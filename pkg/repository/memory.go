package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const memorySubscriberBuffer = 64

// Memory is a process-local Repository used for demo runs and tests.
type Memory struct {
	mu          sync.RWMutex
	rows        []*model.Submission
	index       map[model.SubmissionID]*model.Submission
	subscribers map[string]*memorySubscriber

	now func() time.Time
}

type memorySubscriber struct {
	ctx context.Context
	ch  chan *model.Submission
}

type MemoryOption func(*Memory)

// WithClock overrides the created_at source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		index:       make(map[model.SubmissionID]*model.Submission),
		subscribers: make(map[string]*memorySubscriber),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) InsertSubmission(ctx context.Context, text string) (*model.Submission, error) {
	sub := &model.Submission{
		ID:        model.NewSubmissionID(),
		Text:      text,
		CreatedAt: m.now().UTC(),
	}

	m.mu.Lock()
	m.rows = append(m.rows, sub)
	m.index[sub.ID] = sub
	inserted := sub.Clone()
	targets := make([]*memorySubscriber, 0, len(m.subscribers))
	for _, s := range m.subscribers {
		targets = append(targets, s)
	}
	m.mu.Unlock()

	for _, s := range targets {
		select {
		case s.ch <- inserted.Clone():
		case <-s.ctx.Done():
		case <-ctx.Done():
			return nil, goerr.Wrap(ctx.Err(), "insert notification interrupted", goerr.V("id", sub.ID))
		}
	}

	return inserted, nil
}

func (m *Memory) AttachEmbedding(ctx context.Context, id model.SubmissionID, embedding []float64) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.index[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrSubmissionNotFound, "failed to attach embedding", goerr.V("id", id))
	}
	sub.Embedding = append([]float64(nil), embedding...)
	return sub.Clone(), nil
}

func (m *Memory) ListRecentSubmissions(ctx context.Context, limit int) ([]*model.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.rows)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]*model.Submission, 0, n)
	for i := len(m.rows) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.rows[i].Clone())
	}
	return out, nil
}

func (m *Memory) Subscribe(ctx context.Context, handler InsertHandler) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	s := &memorySubscriber{
		ctx: subCtx,
		ch:  make(chan *model.Submission, memorySubscriberBuffer),
	}

	m.mu.Lock()
	m.subscribers[id] = s
	m.mu.Unlock()

	subscription := NewSubscription(cancel)
	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
			subscription.Close(nil)
		}()

		for {
			select {
			case <-subCtx.Done():
				return
			case sub := <-s.ch:
				handler(sub)
			}
		}
	}()

	return subscription, nil
}

// Subscribers returns the number of live subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}
