package submission

import (
	"context"

	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/bubbleboard/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Submit stores text, computes its embedding and attaches it to the same row. The row
// returned is the final state including the embedding. A failure after the insert leaves
// the row in place without an embedding.
func (u *UseCase) Submit(ctx context.Context, text string) (*model.Submission, error) {
	normalized, err := model.NormalizeText(text)
	if err != nil {
		return nil, err
	}

	inserted, err := u.repo.InsertSubmission(ctx, normalized)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to insert submission")
	}

	logger := logging.From(ctx).With("id", inserted.ID)
	logger.Debug("submission inserted", "length", len(normalized))

	vec := u.embed(inserted.Text)
	if err := model.ValidateEmbedding(vec); err != nil {
		return nil, goerr.Wrap(err, "embedder returned an invalid vector", goerr.V("id", inserted.ID))
	}

	updated, err := u.repo.AttachEmbedding(ctx, inserted.ID, vec)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to attach embedding", goerr.V("id", inserted.ID))
	}

	logger.Info("submission stored")
	return updated, nil
}
