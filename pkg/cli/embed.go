package cli

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/bubbleboard/pkg/embedding"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

type embedOutput struct {
	Text       string    `json:"text"`
	Normalized string    `json:"normalized"`
	Seed       int64     `json:"seed"`
	Dimensions int       `json:"dimensions"`
	Embedding  []float64 `json:"embedding"`
}

func embedCommand() *cli.Command {
	var head int64

	return &cli.Command{
		Name:      "embed",
		Usage:     "Print the placeholder embedding of a text",
		ArgsUsage: "<text>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "head",
				Usage:       "Only print the first N values (0 prints all)",
				Destination: &head,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return goerr.New("text is required")
			}
			text := strings.Join(c.Args().Slice(), " ")

			vec := embedding.Generate(text)
			out := embedOutput{
				Text:       text,
				Normalized: embedding.Normalize(text),
				Seed:       embedding.Seed(text),
				Dimensions: len(vec),
				Embedding:  vec,
			}
			if head > 0 && int(head) < len(vec) {
				out.Embedding = vec[:head]
			}

			enc := json.NewEncoder(c.Root().Writer)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return goerr.Wrap(err, "failed to write embedding")
			}
			return nil
		},
	}
}
