package submission

import (
	"github.com/m-mizutani/bubbleboard/pkg/embedding"
	"github.com/m-mizutani/bubbleboard/pkg/repository"
)

// RecentLimit is how many rows the board shows.
const RecentLimit = 50

// Embedder computes the vector attached to a stored submission.
type Embedder func(text string) []float64

// UseCase runs the insertion pipeline of the backend function and the read side of the board
type UseCase struct {
	repo  repository.Repository
	embed Embedder
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithEmbedder replaces the placeholder embedding generator
func WithEmbedder(e Embedder) Option {
	return func(uc *UseCase) {
		uc.embed = e
	}
}

func New(repo repository.Repository, opts ...Option) *UseCase {
	uc := &UseCase{
		repo:  repo,
		embed: embedding.Generate,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
