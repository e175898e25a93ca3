package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/bubbleboard/pkg/usecase/feed"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func watchCommand() *cli.Command {
	var cfg config

	flags := []cli.Flag{}
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "watch",
		Usage: "Follow new submissions and print the bubble layout on every change",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogging(ctx)
			if err != nil {
				return err
			}

			repo, closeRepo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			// observers run under the feed lock; keep only the newest snapshot
			changes := make(chan feed.Snapshot, 1)
			consumer := feed.New(repo)
			consumer.OnChange(func(snap feed.Snapshot) {
				select {
				case <-changes:
				default:
				}
				changes <- snap
			})

			sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
			sp.Suffix = " subscribing to submissions"
			sp.Start()
			defer sp.Stop()

			if err := consumer.Start(sigCtx); err != nil {
				return goerr.Wrap(err, "failed to start feed")
			}
			defer consumer.Stop()

			w := c.Root().Writer
			for {
				select {
				case <-sigCtx.Done():
					return nil

				case snap := <-changes:
					if snap.Status == model.FeedStatusSubscribing && len(snap.Submissions) == 0 {
						continue
					}
					sp.Stop()

					if err := printLayout(w, snap); err != nil {
						return err
					}
					if snap.Status == model.FeedStatusError {
						return goerr.New(snap.Error)
					}
				}
			}
		},
	}
}

func printLayout(w io.Writer, snap feed.Snapshot) error {
	fmt.Fprintf(w, "\n[%s] %s · %d visible\n", time.Now().Format("15:04:05"), snap.Status, len(snap.Bubbles))
	if snap.Error != "" {
		fmt.Fprintf(w, "error: %s\n", snap.Error)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tTOP\tLEFT\tSTYLE\tTEXT")
	for _, b := range snap.Bubbles {
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%s\t%s\n", b.Slot, b.Top, b.Left, b.Style, b.Text)
	}
	if err := tw.Flush(); err != nil {
		return goerr.Wrap(err, "failed to write layout")
	}
	return nil
}
