package cli

import (
	"context"
	"strings"

	"github.com/m-mizutani/bubbleboard/pkg/adapter"
	"github.com/m-mizutani/bubbleboard/pkg/moderation"
	"github.com/m-mizutani/bubbleboard/pkg/repository"
	"github.com/m-mizutani/bubbleboard/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const (
	storeMemory    = "memory"
	storeFirestore = "firestore"
	storePostgres  = "postgres"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Backend
	backendURL string
	serviceKey string

	// Repository
	store       string
	project     string
	database    string
	postgresDSN string
	migrate     bool

	// Moderation
	policyDir string
}

// loggingFlags returns the flags every command accepts
func loggingFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("BUBBLEBOARD_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       logging.FormatConsole,
			Sources:     cli.EnvVars("BUBBLEBOARD_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// backendFlags returns the flags needed to reach the submit-text function
func backendFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend-url",
			Usage:       "Base URL of the backend hosting the submit-text function",
			Sources:     cli.EnvVars("BUBBLEBOARD_BACKEND_URL", "SUPABASE_URL"),
			Destination: &cfg.backendURL,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "service-key",
			Usage:       "Service key sent as bearer token to the submit-text function",
			Sources:     cli.EnvVars("BUBBLEBOARD_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY"),
			Destination: &cfg.serviceKey,
			Required:    true,
		},
	}
}

// storeFlags returns the flags selecting the submissions repository
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Submission store (memory, firestore, postgres)",
			Value:       storeMemory,
			Sources:     cli.EnvVars("BUBBLEBOARD_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "postgres-dsn",
			Usage:       "PostgreSQL connection string",
			Sources:     cli.EnvVars("BUBBLEBOARD_POSTGRES_DSN", "DATABASE_URL"),
			Destination: &cfg.postgresDSN,
		},
		&cli.BoolFlag{
			Name:        "migrate",
			Usage:       "Apply the PostgreSQL schema before starting",
			Sources:     cli.EnvVars("BUBBLEBOARD_MIGRATE"),
			Destination: &cfg.migrate,
		},
	}
}

func moderationFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "moderation-policy-dir",
			Usage:       "Directory of .rego files replacing the built-in moderation policy",
			Sources:     cli.EnvVars("BUBBLEBOARD_MODERATION_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// setupLogging installs the configured logger as default and attaches it to ctx
func (cfg *config) setupLogging(ctx context.Context) (context.Context, error) {
	logger, err := logging.NewWithFormat(cfg.logFormat, cfg.logLevel, nil)
	if err != nil {
		return ctx, goerr.Wrap(err, "failed to configure logging")
	}
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

// newBackend creates the submit-text function client
func (cfg *config) newBackend() (*adapter.BackendClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.backendURL), "/")
	if baseURL == "" {
		return nil, goerr.New("backend-url is required")
	}
	if cfg.serviceKey == "" {
		return nil, goerr.New("service-key is required")
	}
	return adapter.NewBackend(baseURL, cfg.serviceKey), nil
}

// newRepository opens the configured store. The returned function releases it.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, func(), error) {
	logger := logging.From(ctx)

	switch cfg.store {
	case storeMemory:
		return repository.NewMemory(), func() {}, nil

	case storeFirestore:
		if cfg.project == "" {
			return nil, nil, goerr.New("project is required for firestore store")
		}
		repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				logger.Warn("failed to close firestore client", "error", err)
			}
		}, nil

	case storePostgres:
		if cfg.postgresDSN == "" {
			return nil, nil, goerr.New("postgres-dsn is required for postgres store")
		}
		repo, err := repository.OpenPostgres(ctx, cfg.postgresDSN)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		if cfg.migrate {
			if err := repo.Migrate(ctx); err != nil {
				_ = repo.Close()
				return nil, nil, goerr.Wrap(err, "failed to migrate schema")
			}
			logger.Info("schema migrated")
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				logger.Warn("failed to close postgres connection", "error", err)
			}
		}, nil

	default:
		return nil, nil, goerr.New("unknown store",
			goerr.V("store", cfg.store),
			goerr.V("supported", []string{storeMemory, storeFirestore, storePostgres}))
	}
}

// newFilter loads the moderation policy
func (cfg *config) newFilter(ctx context.Context) (*moderation.Filter, error) {
	var opts []moderation.Option
	if cfg.policyDir != "" {
		opts = append(opts, moderation.WithPolicyDir(cfg.policyDir))
	}
	filter, err := moderation.New(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load moderation policy")
	}
	return filter, nil
}
