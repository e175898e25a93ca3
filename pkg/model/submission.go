package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// EmbeddingSize is the fixed width of the submissions embedding column.
const EmbeddingSize = 1536

var (
	ErrEmptyText          = goerr.New("text must be a non-empty string")
	ErrInvalidPayload     = goerr.New("expected JSON body with a string text field")
	ErrSubmissionNotFound = goerr.New("submission not found")
	ErrInvalidEmbedding   = goerr.New("invalid embedding")

	// ErrModerationRejected is returned when text hits the moderation denylist.
	ErrModerationRejected = goerr.New("Please keep submissions respectful - harmful or explicit language is not allowed.")
)

type SubmissionID string

// NewSubmissionID generates a new unique SubmissionID
func NewSubmissionID() SubmissionID {
	return SubmissionID(uuid.New().String())
}

func (x SubmissionID) String() string {
	return string(x)
}

// Submission is one row of the submissions collection. Text and CreatedAt are fixed at
// insert time; Embedding is attached once by a second write.
type Submission struct {
	ID        SubmissionID `json:"id"`
	Text      string       `json:"text"`
	CreatedAt time.Time    `json:"created_at"`
	Embedding []float64    `json:"embedding"`
}

// NormalizeText trims surrounding whitespace and rejects empty text.
func NormalizeText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyText
	}
	return trimmed, nil
}

// ValidateEmbedding checks the attached vector width and value range.
func ValidateEmbedding(embedding []float64) error {
	if len(embedding) != EmbeddingSize {
		return goerr.Wrap(ErrInvalidEmbedding, "unexpected embedding length",
			goerr.V("length", len(embedding)),
			goerr.V("expected", EmbeddingSize))
	}
	for i, v := range embedding {
		if v < -1 || v >= 1 {
			return goerr.Wrap(ErrInvalidEmbedding, "embedding value out of range",
				goerr.V("index", i),
				goerr.V("value", v))
		}
	}
	return nil
}

// HasEmbedding reports whether the embedding has been attached.
func (s *Submission) HasEmbedding() bool {
	return len(s.Embedding) > 0
}

// Clone returns a deep copy so stores can hand rows out without sharing the embedding slice.
func (s *Submission) Clone() *Submission {
	c := *s
	if s.Embedding != nil {
		c.Embedding = append([]float64(nil), s.Embedding...)
	}
	return &c
}
