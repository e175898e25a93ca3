package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/bubbleboard/pkg/adapter"
	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/bubbleboard/pkg/moderation"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func submitCommand() *cli.Command {
	var (
		cfg        config
		gatewayURL string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "gateway-url",
			Aliases:     []string{"u"},
			Usage:       "Base URL of a running bubbleboard server",
			Value:       "http://127.0.0.1:8080",
			Sources:     cli.EnvVars("BUBBLEBOARD_GATEWAY_URL"),
			Destination: &gatewayURL,
		},
	}
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, moderationFlags(&cfg)...)

	return &cli.Command{
		Name:      "submit",
		Usage:     "Submit text through the gateway; prompts interactively without arguments",
		ArgsUsage: "[text...]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogging(ctx)
			if err != nil {
				return err
			}

			filter, err := cfg.newFilter(ctx)
			if err != nil {
				return err
			}

			s := &submitter{
				filter:  filter,
				gateway: adapter.NewGateway(gatewayURL),
				w:       c.Root().Writer,
			}

			if c.Args().Len() > 0 {
				return s.submit(ctx, strings.Join(c.Args().Slice(), " "))
			}
			return s.interactive(ctx)
		},
	}
}

type submitter struct {
	filter  *moderation.Filter
	gateway adapter.Backend
	w       io.Writer
}

// submit applies the moderation filter locally, then posts text to the gateway.
func (s *submitter) submit(ctx context.Context, text string) error {
	text, err := model.NormalizeText(text)
	if err != nil {
		return err
	}

	if err := s.filter.Validate(ctx, text); err != nil {
		return err
	}

	resp, err := s.gateway.SubmitText(ctx, text)
	if err != nil {
		var upstream *model.UpstreamError
		if errors.As(err, &upstream) {
			return goerr.New(gatewayMessage(upstream), goerr.V("status", upstream.Status))
		}
		return goerr.Wrap(err, "failed to submit text")
	}

	var row model.Submission
	if err := json.Unmarshal(resp, &row); err != nil || row.ID == "" {
		fmt.Fprintf(s.w, "submitted %q\n", text)
		return nil
	}
	fmt.Fprintf(s.w, "%s\t%s\n", row.ID, row.Text)
	return nil
}

func (s *submitter) interactive(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          s.w,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to start prompt")
	}
	defer rl.Close()

	fmt.Fprintf(s.w, "Type an idea and press enter. Type 'exit' to quit.\n")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		line = strings.TrimSpace(line)
		if line == "exit" {
			return nil
		}
		if line == "" {
			continue
		}

		if err := s.submit(ctx, line); err != nil {
			// keep prompting; each line is independent
			fmt.Fprintf(s.w, "error: %s\n", submitErrorMessage(err))
		}
	}
}

// gatewayMessage picks the user-facing message out of a gateway error body.
func gatewayMessage(upstream *model.UpstreamError) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(upstream.Details, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return fmt.Sprintf("gateway responded with status %d", upstream.Status)
}

func submitErrorMessage(err error) string {
	if errors.Is(err, model.ErrModerationRejected) {
		return model.ErrModerationRejected.Error()
	}
	if errors.Is(err, model.ErrEmptyText) {
		return "Text must be a non-empty string"
	}
	return err.Error()
}
