package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/genai"

	"github.com/eburon/brokerdial/pkg/cli"
	"github.com/eburon/brokerdial/pkg/crm"
	"github.com/eburon/brokerdial/pkg/kv"
	"github.com/eburon/brokerdial/pkg/persona"
	"github.com/eburon/brokerdial/pkg/realtime"
	"github.com/eburon/brokerdial/pkg/storage"
	"github.com/eburon/brokerdial/pkg/transport"
)

// Key prefixes inside the context database.
var (
	crmPrefix  = kv.Key{"crm"}
	personaKey = kv.Key{"persona", "current"}
)

// env is the opened data of one context.
type env struct {
	ctx      *cli.Context
	paths    *cli.Paths
	logger   *slog.Logger
	db       *kv.Badger
	crm      *crm.KVStore
	personas *persona.Store
	files    storage.FileStore
}

func openEnv(ctx context.Context, c *cli.Context, logger *slog.Logger) (*env, error) {
	paths, err := cli.NewPaths(appName)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDataDir(c); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := kv.NewBadger(kv.BadgerOptions{Dir: paths.DBDir(c), Logger: logger})
	if err != nil {
		return nil, err
	}
	files, err := openFiles(ctx, c, paths)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &env{
		ctx:      c,
		paths:    paths,
		logger:   logger,
		db:       db,
		crm:      crm.NewKVStore(db, crmPrefix),
		personas: persona.NewStore(db, personaKey),
		files:    files,
	}, nil
}

func (e *env) Close() error {
	return e.db.Close()
}

// openFiles returns the bucket of the context, or the local files dir.
func openFiles(ctx context.Context, c *cli.Context, paths *cli.Paths) (storage.FileStore, error) {
	if c.S3 == nil {
		local, err := storage.NewLocal(paths.FilesDir(c))
		if err != nil {
			return nil, err
		}
		return local, nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if c.S3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.S3.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.S3.Endpoint)
			o.UsePathStyle = true
		}
	})
	return storage.NewS3(client, c.S3.Bucket, c.S3.Prefix), nil
}

// newBackend builds the voice backend a context names.
func newBackend(ctx context.Context, c *cli.Context, logger *slog.Logger) (transport.Backend, error) {
	switch c.Backend {
	case cli.BackendGemini:
		key := c.ResolveAPIKey("GEMINI_API_KEY", "GOOGLE_API_KEY")
		if key == "" {
			return nil, errors.New("gemini backend needs an api key (context api_key or GEMINI_API_KEY)")
		}
		cc := &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
		if c.BaseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.BaseURL}
		}
		client, err := genai.NewClient(ctx, cc)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return &transport.GeminiBackend{Client: client, Model: c.Model, Voice: c.Voice, Logger: logger}, nil

	case cli.BackendRealtime:
		key := c.ResolveAPIKey("OPENAI_API_KEY")
		if key == "" {
			return nil, errors.New("realtime backend needs an api key (context api_key or OPENAI_API_KEY)")
		}
		opts := []realtime.Option{realtime.WithLogger(logger)}
		if c.BaseURL != "" {
			opts = append(opts, realtime.WithURL(c.BaseURL))
		}
		return &transport.RealtimeBackend{
			Client: realtime.NewClient(key, opts...),
			Model:  c.Model,
			Voice:  c.Voice,
			Greet:  true,
			Logger: logger,
		}, nil

	default:
		return nil, fmt.Errorf("context %q: unknown backend %q", c.Name, c.Backend)
	}
}

// withEnv opens the data of the selected context for the duration of fn.
func withEnv(ctx context.Context, fn func(*env) error) error {
	c, err := dataContext()
	if err != nil {
		return err
	}
	e, err := openEnv(ctx, c, stderrLogger())
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(e)
}
