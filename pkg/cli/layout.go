package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/m-mizutani/bubbleboard/pkg/adapter"
	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/bubbleboard/pkg/usecase/submission"
	"github.com/m-mizutani/bubbleboard/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

type layoutSnapshot struct {
	GeneratedAt time.Time       `json:"generated_at" yaml:"generated_at"`
	Count       int             `json:"count" yaml:"count"`
	Bubbles     []*model.Bubble `json:"bubbles" yaml:"bubbles"`
}

func encodeLayout(format string, snap *layoutSnapshot) ([]byte, string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return nil, "", goerr.Wrap(err, "failed to encode layout as JSON")
		}
		return append(data, '\n'), "application/json", nil
	case "yaml":
		data, err := yaml.Marshal(snap)
		if err != nil {
			return nil, "", goerr.Wrap(err, "failed to encode layout as YAML")
		}
		return data, "application/yaml", nil
	default:
		return nil, "", goerr.New("unsupported format",
			goerr.V("format", format),
			goerr.V("supported", []string{"json", "yaml"}))
	}
}

func layoutCommand() *cli.Command {
	var (
		cfg          config
		format       string
		exportBucket string
		exportPrefix string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "format",
			Aliases:     []string{"f"},
			Usage:       "Output format (json, yaml)",
			Value:       "json",
			Destination: &format,
		},
		&cli.StringFlag{
			Name:        "export-bucket",
			Usage:       "Cloud Storage bucket to upload the layout snapshot to",
			Sources:     cli.EnvVars("BUBBLEBOARD_EXPORT_BUCKET"),
			Destination: &exportBucket,
		},
		&cli.StringFlag{
			Name:        "export-prefix",
			Usage:       "Object name prefix for exported snapshots",
			Value:       "layouts/",
			Sources:     cli.EnvVars("BUBBLEBOARD_EXPORT_PREFIX"),
			Destination: &exportPrefix,
		},
	}
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "layout",
		Usage: "Resolve the current bubble layout once",
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

			bubbles, err := submission.New(repo).Layout(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to resolve layout")
			}

			snap := &layoutSnapshot{
				GeneratedAt: time.Now().UTC(),
				Count:       len(bubbles),
				Bubbles:     bubbles,
			}
			data, contentType, err := encodeLayout(format, snap)
			if err != nil {
				return err
			}

			if _, err := c.Root().Writer.Write(data); err != nil {
				return goerr.Wrap(err, "failed to write layout")
			}

			if exportBucket == "" {
				return nil
			}

			store, err := adapter.NewGCSStore(ctx, exportBucket)
			if err != nil {
				return err
			}
			defer store.Close()

			key := fmt.Sprintf("%s%s.%s", exportPrefix, snap.GeneratedAt.Format("20060102T150405Z"), format)
			uri, err := store.PutObject(ctx, key, contentType, data)
			if err != nil {
				return goerr.Wrap(err, "failed to export layout")
			}
			logging.From(ctx).Info("layout exported", "uri", uri, "bubbles", snap.Count)
			return nil
		},
	}
}
