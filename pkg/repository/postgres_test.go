package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/bubbleboard/pkg/repository"
	"github.com/m-mizutani/gt"
)

func newMockPostgres(t *testing.T) (*repository.Postgres, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	gt.NoError(t, err)
	t.Cleanup(func() {
		gt.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return repository.NewPostgres(db, ""), mock
}

func TestPostgresMigrate(t *testing.T) {
	repo, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS submissions")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	gt.NoError(t, repo.Migrate(context.Background()))
}

func TestPostgresInsertSubmission(t *testing.T) {
	repo, mock := newMockPostgres(t)
	createdAt := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO submissions (text) VALUES ($1) RETURNING id, text, created_at")).
		WithArgs("rust").
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "created_at"}).
			AddRow("3f1c2d9e-0000-4000-8000-000000000001", "rust", createdAt))

	sub, err := repo.InsertSubmission(context.Background(), "rust")
	gt.NoError(t, err)
	gt.Equal(t, sub.ID, model.SubmissionID("3f1c2d9e-0000-4000-8000-000000000001"))
	gt.Equal(t, sub.Text, "rust")
	gt.Equal(t, sub.CreatedAt, createdAt)
	gt.False(t, sub.HasEmbedding())
}

func TestPostgresInsertSubmissionError(t *testing.T) {
	repo, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO submissions")).
		WithArgs("rust").
		WillReturnError(errors.New("connection refused"))

	_, err := repo.InsertSubmission(context.Background(), "rust")
	gt.Error(t, err)
}

func TestPostgresAttachEmbedding(t *testing.T) {
	repo, mock := newMockPostgres(t)
	createdAt := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE submissions SET embedding = $2 WHERE id = $1")).
		WithArgs("row-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "created_at", "embedding"}).
			AddRow("row-1", "rust", createdAt, "{0.5,-0.25}"))

	sub, err := repo.AttachEmbedding(context.Background(), "row-1", []float64{0.5, -0.25})
	gt.NoError(t, err)
	gt.Equal(t, sub.Embedding, []float64{0.5, -0.25})
}

func TestPostgresAttachEmbeddingNotFound(t *testing.T) {
	repo, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE submissions SET embedding")).
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.AttachEmbedding(context.Background(), "missing", []float64{0})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrSubmissionNotFound))
}

func TestPostgresListRecentSubmissions(t *testing.T) {
	repo, mock := newMockPostgres(t)
	now := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, text, created_at, embedding FROM submissions ORDER BY created_at DESC LIMIT $1")).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text", "created_at", "embedding"}).
			AddRow("b", "second", now, nil).
			AddRow("a", "first", now.Add(-time.Minute), "{0.1}"))

	rows, err := repo.ListRecentSubmissions(context.Background(), 50)
	gt.NoError(t, err)
	gt.A(t, rows).Length(2)
	gt.Equal(t, rows[0].ID, model.SubmissionID("b"))
	gt.A(t, rows[0].Embedding).Length(0)
	gt.Equal(t, rows[1].Embedding, []float64{0.1})
}

func TestPostgresListRecentSubmissionsUnlimited(t *testing.T) {
	for _, limit := range []int{0, -1} {
		repo, mock := newMockPostgres(t)
		now := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, text, created_at, embedding FROM submissions ORDER BY created_at DESC") + "$").
			WithoutArgs().
			WillReturnRows(sqlmock.NewRows([]string{"id", "text", "created_at", "embedding"}).
				AddRow("b", "second", now, nil).
				AddRow("a", "first", now.Add(-time.Minute), nil))

		rows, err := repo.ListRecentSubmissions(context.Background(), limit)
		gt.NoError(t, err)
		gt.A(t, rows).Length(2)
	}
}

func TestParseInsertPayload(t *testing.T) {
	sub, err := repository.ParseInsertPayload(
		`{"id":"3f1c2d9e-0000-4000-8000-000000000001","text":"rust","created_at":"2026-10-19T08:30:00.123456+00:00"}`)
	gt.NoError(t, err)
	gt.Equal(t, sub.ID, model.SubmissionID("3f1c2d9e-0000-4000-8000-000000000001"))
	gt.Equal(t, sub.Text, "rust")
	gt.Equal(t, sub.CreatedAt.UnixMicro(), time.Date(2026, 10, 19, 8, 30, 0, 123456000, time.UTC).UnixMicro())

	_, err = repository.ParseInsertPayload(`not json`)
	gt.Error(t, err)

	_, err = repository.ParseInsertPayload(`{"text":"no id"}`)
	gt.Error(t, err)
}

func TestPostgresLive(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN must be set to run PostgreSQL tests")
	}

	ctx := context.Background()
	repo, err := repository.OpenPostgres(ctx, dsn)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	gt.NoError(t, repo.Migrate(ctx))
	testRepository(t, repo)
}
