package cli

import (
	"context"

	"github.com/m-mizutani/bubbleboard/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "bubbleboard",
		Usage: "Realtime submission board with deterministic bubble placement",
		Commands: []*cli.Command{
			serveCommand(),
			submitCommand(),
			watchCommand(),
			listCommand(),
			layoutCommand(),
			embedCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.From(ctx).Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
