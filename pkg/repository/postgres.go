package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed schema.sql
var schemaSQL string

// InsertChannel is the NOTIFY channel raised by the submissions insert trigger.
const InsertChannel = "submissions_insert"

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
)

// Postgres stores submissions in a PostgreSQL table and streams inserts over LISTEN/NOTIFY.
type Postgres struct {
	db  *sql.DB
	dsn string
}

// NewPostgres wraps an open database. dsn is used for the dedicated LISTEN connection.
func NewPostgres(db *sql.DB, dsn string) *Postgres {
	return &Postgres{db: db, dsn: dsn}
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open PostgreSQL connection")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to connect to PostgreSQL")
	}
	return NewPostgres(db, dsn), nil
}

func (r *Postgres) Close() error {
	return r.db.Close()
}

// Migrate creates the submissions table and its insert notification trigger.
func (r *Postgres) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return goerr.Wrap(err, "failed to migrate submissions schema")
	}
	return nil
}

func (r *Postgres) InsertSubmission(ctx context.Context, text string) (*model.Submission, error) {
	row := r.db.QueryRowContext(ctx,
		"INSERT INTO submissions (text) VALUES ($1) RETURNING id, text, created_at",
		text)

	var sub model.Submission
	if err := row.Scan(&sub.ID, &sub.Text, &sub.CreatedAt); err != nil {
		return nil, goerr.Wrap(err, "failed to insert submission")
	}
	return &sub, nil
}

func (r *Postgres) AttachEmbedding(ctx context.Context, id model.SubmissionID, embedding []float64) (*model.Submission, error) {
	row := r.db.QueryRowContext(ctx,
		"UPDATE submissions SET embedding = $2 WHERE id = $1 RETURNING id, text, created_at, embedding",
		id.String(), pq.Float64Array(embedding))

	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrSubmissionNotFound, "failed to attach embedding", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to attach embedding", goerr.V("id", id))
	}
	return sub, nil
}

func (r *Postgres) ListRecentSubmissions(ctx context.Context, limit int) ([]*model.Submission, error) {
	query := "SELECT id, text, created_at, embedding FROM submissions ORDER BY created_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list submissions")
	}
	defer rows.Close()

	var out []*model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan submission")
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate submissions")
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(s scanner) (*model.Submission, error) {
	var (
		sub       model.Submission
		embedding pq.Float64Array
	)
	if err := s.Scan(&sub.ID, &sub.Text, &sub.CreatedAt, &embedding); err != nil {
		return nil, err
	}
	if len(embedding) > 0 {
		sub.Embedding = []float64(embedding)
	}
	return &sub, nil
}

// Subscribe opens a dedicated LISTEN connection. It returns once the connection is up and
// LISTEN has been acknowledged. A dropped connection ends the subscription with an error
// rather than reconnecting.
func (r *Postgres) Subscribe(ctx context.Context, handler InsertHandler) (*Subscription, error) {
	events := make(chan pq.ListenerEventType, 4)
	failures := make(chan error, 4)
	listener := pq.NewListener(r.dsn, listenerMinReconnect, listenerMaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			// failure is queued before the event it explains
			if err != nil {
				select {
				case failures <- err:
				default:
				}
			}
			select {
			case events <- ev:
			default:
			}
		})

	select {
	case ev := <-events:
		if ev != pq.ListenerEventConnected {
			_ = listener.Close()
			return nil, goerr.Wrap(listenerFailure(failures), "failed to connect listener")
		}
	case <-ctx.Done():
		_ = listener.Close()
		return nil, goerr.Wrap(ctx.Err(), "subscribe interrupted")
	}

	if err := listener.Listen(InsertChannel); err != nil {
		_ = listener.Close()
		return nil, goerr.Wrap(err, "failed to LISTEN", goerr.V("channel", InsertChannel))
	}

	subCtx, cancel := context.WithCancel(ctx)
	subscription := NewSubscription(cancel)

	go func() {
		defer func() { _ = listener.Close() }()

		for {
			select {
			case <-subCtx.Done():
				subscription.Close(nil)
				return

			case ev := <-events:
				if ev == pq.ListenerEventDisconnected || ev == pq.ListenerEventConnectionAttemptFailed {
					subscription.Close(goerr.Wrap(listenerFailure(failures), "submissions listener failed"))
					return
				}

			case n := <-listener.Notify:
				if n == nil {
					continue
				}
				sub, err := ParseInsertPayload(n.Extra)
				if err != nil {
					continue
				}
				handler(sub)
			}
		}
	}()

	return subscription, nil
}

func listenerFailure(failures <-chan error) error {
	select {
	case err := <-failures:
		return err
	default:
		return goerr.New("listener disconnected")
	}
}

// ParseInsertPayload decodes the JSON row sent by the insert trigger.
func ParseInsertPayload(payload string) (*model.Submission, error) {
	var sub model.Submission
	if err := json.Unmarshal([]byte(payload), &sub); err != nil {
		return nil, goerr.Wrap(err, "failed to decode insert notification", goerr.V("payload", payload))
	}
	if sub.ID == "" {
		return nil, goerr.New("insert notification has no id", goerr.V("payload", payload))
	}
	return &sub, nil
}
