// Package feed keeps a bounded, newest-first list of submissions in sync with the
// repository's realtime insert channel.
package feed

import (
	"context"
	"slices"
	"sync"

	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/bubbleboard/pkg/placement"
	"github.com/m-mizutani/bubbleboard/pkg/repository"
	"github.com/m-mizutani/bubbleboard/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const (
	// Capacity bounds the list held by a Feed.
	Capacity = 50

	// ChannelErrorMessage is shown when the realtime channel fails. There is no retry.
	ChannelErrorMessage = "Realtime channel error. Please refresh to retry."
)

var (
	ErrAlreadyStarted = goerr.New("feed already started")
)

// Snapshot is the state handed to OnChange observers.
type Snapshot struct {
	Status      model.FeedStatus    `json:"status"`
	Error       string              `json:"error,omitempty"`
	Submissions []*model.Submission `json:"submissions"`
	Bubbles     []*model.Bubble     `json:"bubbles"`
}

// Feed is a single-use realtime consumer: Start once, Stop once.
type Feed struct {
	repo repository.Repository

	mu           sync.Mutex
	status       model.FeedStatus
	errMsg       string
	submissions  []*model.Submission
	observers    []func(Snapshot)
	started      bool
	stopped      bool
	cancel       context.CancelFunc
	subscription *repository.Subscription

	wg sync.WaitGroup
}

func New(repo repository.Repository) *Feed {
	return &Feed{
		repo:   repo,
		status: model.FeedStatusIdle,
	}
}

// OnChange registers fn to receive a Snapshot after every state change. Observers run
// while the feed is locked, in registration order, and must not call back into the Feed.
func (f *Feed) OnChange(fn func(Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, fn)
}

// Start issues the initial load and the subscription concurrently and returns without
// waiting for either. Progress is reported through OnChange.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started {
		return ErrAlreadyStarted
	}
	f.started = true

	ctx, f.cancel = context.WithCancel(ctx)
	f.status = model.FeedStatusSubscribing
	f.notifyLocked()

	f.wg.Add(2)
	go f.loadInitial(ctx)
	go f.subscribe(ctx)

	return nil
}

// Stop releases the subscription. Results that arrive afterwards are discarded.
func (f *Feed) Stop() {
	f.mu.Lock()
	if f.stopped || !f.started {
		f.stopped = true
		f.mu.Unlock()
		return
	}
	f.stopped = true
	sub := f.subscription
	f.subscription = nil
	f.cancel()
	f.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	f.wg.Wait()
}

func (f *Feed) loadInitial(ctx context.Context) {
	defer f.wg.Done()

	rows, err := f.repo.ListRecentSubmissions(ctx, Capacity)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}

	if err != nil {
		logging.From(ctx).Error("failed to load recent submissions", "error", err)
		f.errMsg = err.Error()
		f.notifyLocked()
		return
	}

	f.mergeLocked(rows)
	f.notifyLocked()
}

func (f *Feed) subscribe(ctx context.Context) {
	defer f.wg.Done()

	sub, err := f.repo.Subscribe(ctx, f.handleInsert)

	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		return
	}

	if err != nil {
		logging.From(ctx).Error("failed to subscribe to submissions", "error", err)
		f.failLocked()
		f.mu.Unlock()
		return
	}

	f.subscription = sub
	f.status = model.FeedStatusSubscribed
	f.notifyLocked()
	f.mu.Unlock()

	<-sub.Done()
	if chErr := sub.Err(); chErr != nil {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.stopped {
			logging.From(ctx).Error("realtime channel failed", "error", chErr)
			f.failLocked()
		}
	}
}

func (f *Feed) handleInsert(sub *model.Submission) {
	if sub == nil || sub.Text == "" {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped || f.indexLocked(sub.ID) >= 0 {
		return
	}

	f.submissions = append([]*model.Submission{sub}, f.submissions...)
	if len(f.submissions) > Capacity {
		f.submissions = f.submissions[:Capacity]
	}
	f.notifyLocked()
}

// mergeLocked appends initial rows behind rows already received live.
func (f *Feed) mergeLocked(rows []*model.Submission) {
	for _, row := range rows {
		if len(f.submissions) >= Capacity {
			break
		}
		if row == nil || f.indexLocked(row.ID) >= 0 {
			continue
		}
		f.submissions = append(f.submissions, row)
	}
}

func (f *Feed) indexLocked(id model.SubmissionID) int {
	return slices.IndexFunc(f.submissions, func(s *model.Submission) bool {
		return s.ID == id
	})
}

func (f *Feed) failLocked() {
	f.status = model.FeedStatusError
	f.errMsg = ChannelErrorMessage
	f.notifyLocked()
}

func (f *Feed) snapshotLocked() Snapshot {
	subs := slices.Clone(f.submissions)
	return Snapshot{
		Status:      f.status,
		Error:       f.errMsg,
		Submissions: subs,
		Bubbles:     placement.Resolve(subs),
	}
}

func (f *Feed) notifyLocked() {
	if len(f.observers) == 0 {
		return
	}
	snap := f.snapshotLocked()
	for _, fn := range f.observers {
		fn(snap)
	}
}

// Snapshot returns the current state.
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Submissions returns the held list, newest first.
func (f *Feed) Submissions() []*model.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.submissions)
}

func (f *Feed) Bubbles() []*model.Bubble {
	return placement.Resolve(f.Submissions())
}

func (f *Feed) Status() model.FeedStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// ErrorMessage returns the message shown to the user, or "".
func (f *Feed) ErrorMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errMsg
}
