package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const submissionsCollection = "submissions"

const (
	// subscribeSkew widens the live query backwards to absorb clock drift between this
	// process and the Firestore server. Rows inside it arrive with the handshake snapshot.
	subscribeSkew = time.Minute

	// subscribeWindow bounds the live query result set to the newest rows.
	subscribeWindow = 100
)

// Firestore stores submissions as documents of the submissions collection, keyed by id.
type Firestore struct {
	client *firestore.Client
}

type submissionDoc struct {
	Text      string             `firestore:"text"`
	CreatedAt time.Time          `firestore:"created_at,serverTimestamp"`
	Embedding firestore.Vector64 `firestore:"embedding,omitempty"`
}

func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	if projectID == "" {
		return nil, goerr.New("project ID is required for Firestore repository")
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}

	return &Firestore{client: client}, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) collection() *firestore.CollectionRef {
	return r.client.Collection(submissionsCollection)
}

func (r *Firestore) InsertSubmission(ctx context.Context, text string) (*model.Submission, error) {
	sub := &model.Submission{
		ID:   model.NewSubmissionID(),
		Text: text,
	}

	// created_at is assigned by the server; it equals the commit time of the write.
	result, err := r.collection().Doc(sub.ID.String()).Create(ctx, submissionDoc{Text: sub.Text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to insert submission", goerr.V("id", sub.ID))
	}
	sub.CreatedAt = result.UpdateTime.UTC()

	return sub, nil
}

func (r *Firestore) AttachEmbedding(ctx context.Context, id model.SubmissionID, embedding []float64) (*model.Submission, error) {
	ref := r.collection().Doc(id.String())

	_, err := ref.Update(ctx, []firestore.Update{
		{Path: "embedding", Value: firestore.Vector64(embedding)},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrSubmissionNotFound, "failed to attach embedding", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to attach embedding", goerr.V("id", id))
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read updated submission", goerr.V("id", id))
	}
	return decodeSubmission(snap)
}

func (r *Firestore) ListRecentSubmissions(ctx context.Context, limit int) ([]*model.Submission, error) {
	q := r.collection().OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*model.Submission
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list submissions")
		}

		sub, err := decodeSubmission(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}

	return out, nil
}

// Subscribe listens for documents created after the call. The first snapshot is the
// handshake and is consumed before returning; later DocumentAdded changes are delivered.
// Rows pushed out of the newest subscribeWindow show up as removals and are ignored.
func (r *Firestore) Subscribe(ctx context.Context, handler InsertHandler) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	since := time.Now().UTC().Add(-subscribeSkew)

	iter := r.collection().
		Where("created_at", ">", since).
		OrderBy("created_at", firestore.Desc).
		Limit(subscribeWindow).
		Snapshots(subCtx)
	if _, err := iter.Next(); err != nil {
		iter.Stop()
		cancel()
		return nil, goerr.Wrap(err, "failed to subscribe to submissions")
	}

	subscription := NewSubscription(cancel)
	go func() {
		defer iter.Stop()

		for {
			snap, err := iter.Next()
			if err != nil {
				if subCtx.Err() != nil || status.Code(err) == codes.Canceled {
					subscription.Close(nil)
				} else {
					subscription.Close(goerr.Wrap(err, "submissions snapshot listener failed"))
				}
				return
			}

			for _, change := range snap.Changes {
				if change.Kind != firestore.DocumentAdded {
					continue
				}
				sub, err := decodeSubmission(change.Doc)
				if err != nil {
					continue
				}
				handler(sub)
			}
		}
	}()

	return subscription, nil
}

func decodeSubmission(snap *firestore.DocumentSnapshot) (*model.Submission, error) {
	var doc submissionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode submission", goerr.V("id", snap.Ref.ID))
	}

	sub := &model.Submission{
		ID:        model.SubmissionID(snap.Ref.ID),
		Text:      doc.Text,
		CreatedAt: doc.CreatedAt,
	}
	if len(doc.Embedding) > 0 {
		sub.Embedding = []float64(doc.Embedding)
	}
	return sub, nil
}
