package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/bubbleboard/pkg/usecase/submission"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	var cfg config

	flags := []cli.Flag{}
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List the most recent submissions",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogging(ctx)
			if err != nil {
				return err
			}

			// Initialize dependencies
			repo, closeRepo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			uc := submission.New(repo)
			subs, err := uc.Recent(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to list submissions")
			}

			// Display submissions
			for _, s := range subs {
				embedded := "pending"
				if s.HasEmbedding() {
					embedded = "embedded"
				}
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\t%s\n",
					s.ID, s.CreatedAt.Format(time.RFC3339), embedded, s.Text)
			}

			return nil
		},
	}
}
