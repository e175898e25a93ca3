package feed_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/bubbleboard/pkg/placement"
	"github.com/m-mizutani/bubbleboard/pkg/repository"
	"github.com/m-mizutani/bubbleboard/pkg/usecase/feed"
	"github.com/m-mizutani/gt"
)

// fakeRepo gives tests control over when the initial load and the subscribe handshake
// complete, and lets them push insert events directly.
type fakeRepo struct {
	repository.Repository

	listRows []*model.Submission
	listErr  error
	listGate chan struct{}

	subErr  error
	subGate chan struct{}

	mu      sync.Mutex
	handler repository.InsertHandler
	sub     *repository.Subscription
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		listGate: make(chan struct{}),
		subGate:  make(chan struct{}),
	}
}

func (r *fakeRepo) ListRecentSubmissions(ctx context.Context, limit int) ([]*model.Submission, error) {
	select {
	case <-r.listGate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.listRows, nil
}

func (r *fakeRepo) Subscribe(ctx context.Context, handler repository.InsertHandler) (*repository.Subscription, error) {
	select {
	case <-r.subGate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.subErr != nil {
		return nil, r.subErr
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := repository.NewSubscription(cancel)
	go func() {
		<-subCtx.Done()
		sub.Close(nil)
	}()

	r.mu.Lock()
	r.handler = handler
	r.sub = sub
	r.mu.Unlock()
	return sub, nil
}

func (r *fakeRepo) emit(sub *model.Submission) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	h(sub)
}

func (r *fakeRepo) fail(err error) {
	r.mu.Lock()
	sub := r.sub
	r.mu.Unlock()
	sub.Close(err)
}

type recorder struct {
	ch chan feed.Snapshot
}

func record(f *feed.Feed) *recorder {
	rec := &recorder{ch: make(chan feed.Snapshot, 1024)}
	f.OnChange(func(s feed.Snapshot) { rec.ch <- s })
	return rec
}

func (r *recorder) waitFor(t *testing.T, desc string, pred func(feed.Snapshot) bool) feed.Snapshot {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-r.ch:
			if pred(s) {
				return s
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", desc)
		}
	}
}

func statusIs(status model.FeedStatus) func(feed.Snapshot) bool {
	return func(s feed.Snapshot) bool { return s.Status == status }
}

func row(id string) *model.Submission {
	return &model.Submission{ID: model.SubmissionID(id), Text: "text " + id}
}

func ids(subs []*model.Submission) []string {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		out = append(out, string(s.ID))
	}
	return out
}

func TestFeedStartStatusTransitions(t *testing.T) {
	repo := newFakeRepo()
	repo.listRows = []*model.Submission{row("b"), row("a")}
	f := feed.New(repo)
	rec := record(f)

	gt.Equal(t, f.Status(), model.FeedStatusIdle)
	gt.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	rec.waitFor(t, "subscribing", statusIs(model.FeedStatusSubscribing))

	close(repo.subGate)
	rec.waitFor(t, "subscribed", statusIs(model.FeedStatusSubscribed))

	close(repo.listGate)
	snap := rec.waitFor(t, "initial rows", func(s feed.Snapshot) bool { return len(s.Submissions) == 2 })
	gt.Equal(t, ids(snap.Submissions), []string{"b", "a"})
	gt.A(t, snap.Bubbles).Length(2)
	gt.Equal(t, snap.Error, "")
}

func TestFeedStartTwice(t *testing.T) {
	repo := newFakeRepo()
	f := feed.New(repo)
	gt.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	err := f.Start(context.Background())
	gt.True(t, errors.Is(err, feed.ErrAlreadyStarted))
}

func TestFeedInsertEvents(t *testing.T) {
	repo := newFakeRepo()
	close(repo.listGate)
	close(repo.subGate)
	f := feed.New(repo)
	rec := record(f)

	gt.NoError(t, f.Start(context.Background()))
	defer f.Stop()
	rec.waitFor(t, "subscribed", statusIs(model.FeedStatusSubscribed))

	repo.emit(row("x"))
	repo.emit(row("y"))
	repo.emit(row("x"))                                // duplicate id
	repo.emit(&model.Submission{ID: "empty", Text: ""}) // empty text
	repo.emit(nil)

	gt.Equal(t, ids(f.Submissions()), []string{"y", "x"})
}

func TestFeedCapacity(t *testing.T) {
	repo := newFakeRepo()
	close(repo.listGate)
	close(repo.subGate)
	f := feed.New(repo)
	rec := record(f)

	gt.NoError(t, f.Start(context.Background()))
	defer f.Stop()
	rec.waitFor(t, "subscribed", statusIs(model.FeedStatusSubscribed))

	for i := range 60 {
		repo.emit(row(fmt.Sprintf("r%02d", i)))
	}

	subs := f.Submissions()
	gt.A(t, subs).Length(feed.Capacity)
	gt.Equal(t, string(subs[0].ID), "r59")
	gt.Equal(t, string(subs[feed.Capacity-1].ID), "r10")

	bubbles := f.Bubbles()
	gt.A(t, bubbles).Length(placement.MaxSlots)
	gt.Equal(t, bubbles[0].ID, "r59-0")
}

func TestFeedInitialLoadMergesBehindLiveRows(t *testing.T) {
	repo := newFakeRepo()
	repo.listRows = []*model.Submission{row("a"), row("x"), row("b")}
	close(repo.subGate)
	f := feed.New(repo)
	rec := record(f)

	gt.NoError(t, f.Start(context.Background()))
	defer f.Stop()
	rec.waitFor(t, "subscribed", statusIs(model.FeedStatusSubscribed))

	repo.emit(row("x"))
	close(repo.listGate)

	snap := rec.waitFor(t, "merged rows", func(s feed.Snapshot) bool { return len(s.Submissions) == 3 })
	gt.Equal(t, ids(snap.Submissions), []string{"x", "a", "b"})
}

func TestFeedInitialLoadFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.listErr = errors.New("permission denied")
	close(repo.subGate)
	f := feed.New(repo)
	rec := record(f)

	gt.NoError(t, f.Start(context.Background()))
	defer f.Stop()
	rec.waitFor(t, "subscribed", statusIs(model.FeedStatusSubscribed))

	close(repo.listGate)
	snap := rec.waitFor(t, "load error", func(s feed.Snapshot) bool { return s.Error != "" })
	gt.S(t, snap.Error).Contains("permission denied")
	gt.Equal(t, snap.Status, model.FeedStatusSubscribed)
}

func TestFeedSubscribeFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.subErr = errors.New("handshake refused")
	close(repo.subGate)
	f := feed.New(repo)
	rec := record(f)

	gt.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	snap := rec.waitFor(t, "error status", statusIs(model.FeedStatusError))
	gt.Equal(t, snap.Error, feed.ChannelErrorMessage)
	gt.Equal(t, f.ErrorMessage(), feed.ChannelErrorMessage)
}

func TestFeedChannelErrorAfterSubscribe(t *testing.T) {
	repo := newFakeRepo()
	close(repo.listGate)
	close(repo.subGate)
	f := feed.New(repo)
	rec := record(f)

	gt.NoError(t, f.Start(context.Background()))
	defer f.Stop()
	rec.waitFor(t, "subscribed", statusIs(model.FeedStatusSubscribed))

	repo.fail(errors.New("socket closed"))
	snap := rec.waitFor(t, "error status", statusIs(model.FeedStatusError))
	gt.Equal(t, snap.Error, feed.ChannelErrorMessage)
}

func TestFeedStopDiscardsLateResults(t *testing.T) {
	repo := newFakeRepo()
	repo.listRows = []*model.Submission{row("late")}
	f := feed.New(repo)

	gt.NoError(t, f.Start(context.Background()))
	f.Stop()

	close(repo.listGate)
	close(repo.subGate)

	gt.A(t, f.Submissions()).Length(0)
	gt.Equal(t, f.Status(), model.FeedStatusSubscribing)
	gt.Equal(t, f.ErrorMessage(), "")
}

func TestFeedStopReleasesSubscription(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	f := feed.New(repo)
	rec := record(f)

	gt.NoError(t, f.Start(ctx))
	rec.waitFor(t, "subscribed", statusIs(model.FeedStatusSubscribed))
	gt.Equal(t, repo.Subscribers(), 1)

	f.Stop()
	gt.Equal(t, repo.Subscribers(), 0)

	// stopping twice is harmless
	f.Stop()
}

func TestFeedStopBeforeStart(t *testing.T) {
	f := feed.New(newFakeRepo())
	f.Stop()
	gt.Equal(t, f.Status(), model.FeedStatusIdle)
}

func TestFeedWithMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()

	existing, err := repo.InsertSubmission(ctx, "rust")
	gt.NoError(t, err)

	f := feed.New(repo)
	rec := record(f)
	gt.NoError(t, f.Start(ctx))
	defer f.Stop()

	rec.waitFor(t, "subscribed with initial row", func(s feed.Snapshot) bool {
		return s.Status == model.FeedStatusSubscribed && len(s.Submissions) == 1
	})

	live, err := repo.InsertSubmission(ctx, "go")
	gt.NoError(t, err)

	snap := rec.waitFor(t, "live row", func(s feed.Snapshot) bool { return len(s.Submissions) == 2 })
	gt.Equal(t, snap.Submissions[0].ID, live.ID)
	gt.Equal(t, snap.Submissions[1].ID, existing.ID)
	gt.Equal(t, snap.Bubbles[0].ID, string(live.ID)+"-0")
	gt.Equal(t, snap.Bubbles[1].ID, string(existing.ID)+"-1")
}
