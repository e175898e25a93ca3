package repository

import (
	"context"

	"github.com/m-mizutani/bubbleboard/pkg/model"
)

// InsertHandler receives each newly inserted submission. Calls for one subscription are
// serialized.
type InsertHandler func(sub *model.Submission)

// Repository defines the submissions table and its realtime insert feed
type Repository interface {
	// InsertSubmission stores text as a new row and assigns its id and created_at
	InsertSubmission(ctx context.Context, text string) (*model.Submission, error)

	// AttachEmbedding sets the embedding of an existing row and returns the updated row
	AttachEmbedding(ctx context.Context, id model.SubmissionID, embedding []float64) (*model.Submission, error)

	// ListRecentSubmissions returns up to limit rows, newest first. A limit of zero or
	// less returns every row.
	ListRecentSubmissions(ctx context.Context, limit int) ([]*model.Submission, error)

	// Subscribe returns once the insert channel is established
	Subscribe(ctx context.Context, handler InsertHandler) (*Subscription, error)
}
