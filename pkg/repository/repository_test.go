package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/bubbleboard/pkg/embedding"
	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/bubbleboard/pkg/repository"
	"github.com/m-mizutani/gt"
)

// testRepository runs the behaviour every Repository implementation shares. It tolerates
// rows left by other runs, so it can target a live database.
func testRepository(t *testing.T, repo repository.Repository) {
	t.Run("insert then list newest first", func(t *testing.T) {
		ctx := context.Background()
		marker := uuid.NewString()

		first, err := repo.InsertSubmission(ctx, "first "+marker)
		gt.NoError(t, err)
		gt.NotEqual(t, first.ID, model.SubmissionID(""))
		gt.False(t, first.CreatedAt.IsZero())
		gt.False(t, first.HasEmbedding())

		time.Sleep(5 * time.Millisecond)
		second, err := repo.InsertSubmission(ctx, "second "+marker)
		gt.NoError(t, err)
		gt.NotEqual(t, first.ID, second.ID)

		rows, err := repo.ListRecentSubmissions(ctx, 50)
		gt.NoError(t, err)
		gt.A(t, rows).Longer(1)

		pos := map[model.SubmissionID]int{}
		for i, row := range rows {
			pos[row.ID] = i
		}
		gt.Map(t, pos).HasKey(first.ID)
		gt.Map(t, pos).HasKey(second.ID)
		gt.True(t, pos[second.ID] < pos[first.ID])

		for i := 0; i < len(rows)-1; i++ {
			gt.False(t, rows[i].CreatedAt.Before(rows[i+1].CreatedAt))
		}
	})

	t.Run("list honours limit", func(t *testing.T) {
		ctx := context.Background()
		for range 3 {
			_, err := repo.InsertSubmission(ctx, "limit "+uuid.NewString())
			gt.NoError(t, err)
		}

		rows, err := repo.ListRecentSubmissions(ctx, 2)
		gt.NoError(t, err)
		gt.A(t, rows).Length(2)
	})

	t.Run("list without limit returns every row", func(t *testing.T) {
		ctx := context.Background()
		for range 3 {
			_, err := repo.InsertSubmission(ctx, "unlimited "+uuid.NewString())
			gt.NoError(t, err)
		}

		limited, err := repo.ListRecentSubmissions(ctx, 3)
		gt.NoError(t, err)
		gt.A(t, limited).Length(3)

		for _, limit := range []int{0, -1} {
			rows, err := repo.ListRecentSubmissions(ctx, limit)
			gt.NoError(t, err)
			gt.A(t, rows).Longer(2)
		}
	})

	t.Run("attach embedding", func(t *testing.T) {
		ctx := context.Background()
		sub, err := repo.InsertSubmission(ctx, "embed "+uuid.NewString())
		gt.NoError(t, err)

		vec := embedding.Generate(sub.Text)
		updated, err := repo.AttachEmbedding(ctx, sub.ID, vec)
		gt.NoError(t, err)
		gt.Equal(t, updated.ID, sub.ID)
		gt.Equal(t, updated.Text, sub.Text)
		gt.Equal(t, updated.Embedding, vec)
	})

	t.Run("attach embedding to missing row", func(t *testing.T) {
		ctx := context.Background()
		_, err := repo.AttachEmbedding(ctx, model.NewSubmissionID(), embedding.Generate("x"))
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrSubmissionNotFound))
	})

	t.Run("subscribe receives inserts", func(t *testing.T) {
		ctx := context.Background()
		received := make(chan *model.Submission, 16)

		sub, err := repo.Subscribe(ctx, func(s *model.Submission) {
			received <- s
		})
		gt.NoError(t, err)

		inserted, err := repo.InsertSubmission(ctx, "live "+uuid.NewString())
		gt.NoError(t, err)

		timeout := time.After(10 * time.Second)
		for found := false; !found; {
			select {
			case s := <-received:
				if s.ID == inserted.ID {
					gt.Equal(t, s.Text, inserted.Text)
					found = true
				}
			case <-timeout:
				t.Fatal("insert notification not received")
			}
		}

		sub.Unsubscribe()
		select {
		case <-sub.Done():
		default:
			t.Fatal("subscription not finished after Unsubscribe")
		}
		gt.NoError(t, sub.Err())
	})
}
