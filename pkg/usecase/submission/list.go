package submission

import (
	"context"

	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/bubbleboard/pkg/placement"
	"github.com/m-mizutani/goerr/v2"
)

// Recent returns the newest RecentLimit submissions.
func (u *UseCase) Recent(ctx context.Context) ([]*model.Submission, error) {
	subs, err := u.repo.ListRecentSubmissions(ctx, RecentLimit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list recent submissions")
	}
	return subs, nil
}

// Layout resolves the bubbles for the current recent submissions.
func (u *UseCase) Layout(ctx context.Context) ([]*model.Bubble, error) {
	subs, err := u.Recent(ctx)
	if err != nil {
		return nil, err
	}
	return placement.Resolve(subs), nil
}
