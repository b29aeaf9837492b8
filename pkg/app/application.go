package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/modelhub/internal/cache"
	_ "github.com/osvaldoandrade/modelhub/internal/cache/memory"
	redisCache "github.com/osvaldoandrade/modelhub/internal/cache/redis"
	"github.com/osvaldoandrade/modelhub/internal/metrics"
	"github.com/osvaldoandrade/modelhub/internal/middleware"
	"github.com/osvaldoandrade/modelhub/internal/providers"
	"github.com/osvaldoandrade/modelhub/internal/services"
	"github.com/osvaldoandrade/modelhub/internal/tracing"
	"github.com/osvaldoandrade/modelhub/pkg/api"
	"github.com/osvaldoandrade/modelhub/pkg/auth"
	"github.com/osvaldoandrade/modelhub/pkg/catalog"
	"github.com/osvaldoandrade/modelhub/pkg/config"
	"github.com/osvaldoandrade/modelhub/pkg/workflow"
)

// Application wires the collaborators of one CLI invocation or shell
// process from a resolved profile.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	API       *api.Client
	Tokens    auth.TokenStore
	Auth      *auth.Manager
	Cache     cache.DescriptorCache
	Catalog   *catalog.Catalog
	Blobs     providers.BlobStore
	Workflows services.WorkflowService
	Engine    *gin.Engine

	TracingShutdown func(context.Context) error

	logOutput  io.Writer
	httpClient *http.Client
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithLogOutput sends logs to w instead of stderr.
func WithLogOutput(w io.Writer) ApplicationOption {
	return func(app *Application) error {
		app.logOutput = w
		return nil
	}
}

// WithTokenStore replaces the profile-backed token store.
func WithTokenStore(store auth.TokenStore) ApplicationOption {
	return func(app *Application) error {
		app.Tokens = store
		return nil
	}
}

// WithCache replaces the configured descriptor cache.
func WithCache(c cache.DescriptorCache) ApplicationOption {
	return func(app *Application) error {
		app.Cache = c
		return nil
	}
}

// WithHTTPClient sets the client used to reach the API.
func WithHTTPClient(h *http.Client) ApplicationOption {
	return func(app *Application) error {
		app.httpClient = h
		return nil
	}
}

func NewApplication(ctx context.Context, cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	app := &Application{Config: cfg, logOutput: os.Stderr}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	app.Logger = newLogger(cfg, app.logOutput)
	slog.SetDefault(app.Logger)

	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.Endpoint,
		OTLPInsecure: cfg.Tracing.Insecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, app.Logger)
	if err != nil {
		return nil, err
	}
	app.TracingShutdown = shutdown

	if app.Tokens == nil {
		app.Tokens = tokenStoreFor(cfg)
	}

	var manager *auth.Manager
	clientOpts := []api.Option{
		api.WithLogger(app.Logger),
		api.WithTokenSource(api.TokenFunc(func(ctx context.Context) (string, error) {
			return manager.Token(ctx)
		})),
	}
	if app.httpClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(app.httpClient))
	}
	app.API = api.New(cfg.BaseURL, clientOpts...)
	manager = auth.NewManager(app.Tokens, app.API, app.Logger)
	app.Auth = manager

	if app.Cache == nil {
		c, err := newCache(cfg, app.Logger)
		if err != nil {
			return nil, err
		}
		app.Cache = c
	}
	if p, ok := app.Cache.(*redisCache.Plugin); ok {
		metrics.RegisterRedisCollector(p.Client(), cache.KeyPrefix+"*", app.Logger)
	}
	app.Catalog = catalog.New(app.API, app.Cache, cfg.CacheTTL(), app.Logger)
	app.Blobs = providers.NewLocalBlobStore(filepath.Join(cfg.OutputDir, ".modelhub"))
	app.Workflows = services.NewWorkflowService(app.Deps(), app.Logger, time.Now)
	return app, nil
}

// Deps are the collaborators every workflow of this application shares.
func (a *Application) Deps() workflow.Deps {
	return workflow.Deps{
		Models:           a.Catalog,
		Runs:             a.API,
		Sessions:         a.Auth,
		Uploader:         a.API,
		Blobs:            a.Blobs,
		Fetcher:          a.API,
		Logger:           a.Logger,
		ProgressInterval: a.Config.ProgressInterval(),
	}
}

// NewWorkflow builds an unstarted workflow for modelID.
func (a *Application) NewWorkflow(modelID string, opts ...workflow.Option) *workflow.Workflow {
	return workflow.New(modelID, a.Deps(), opts...)
}

// Close stops shell workflows, closes the cache and flushes traces.
func (a *Application) Close(ctx context.Context) error {
	if a.Workflows != nil {
		a.Workflows.StopAll()
	}
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.TracingShutdown != nil {
		errs = append(errs, a.TracingShutdown(ctx))
	}
	return errors.Join(errs...)
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler).With("service", "modelhub", "profile", cfg.Name)
}

// tokenStoreFor keeps the session in the profile file. A token given via
// env or flag is used as-is and never written back.
func tokenStoreFor(cfg *config.Config) auth.TokenStore {
	if cfg.Path == "" || os.Getenv("MODELHUB_TOKEN") != "" {
		return auth.NewMemoryTokens(cfg.Token)
	}
	return config.NewProfileTokens(cfg.Path, cfg.Name)
}

func newCache(cfg *config.Config, logger *slog.Logger) (cache.DescriptorCache, error) {
	var raw json.RawMessage
	if cfg.Cache.Type == "redis" {
		b, err := json.Marshal(redisCache.Config{Addr: cfg.Cache.RedisAddr, Password: cfg.Cache.RedisPassword})
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return cache.New(
		cache.ProviderConfig{Type: cfg.Cache.Type, Config: raw},
		cache.PluginConfig{DefaultTTL: cfg.CacheTTL(), Logger: logger},
	)
}

// SetupEngine builds the gin engine of the local shell.
func (a *Application) SetupEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.TracingMiddleware(tracing.DefaultServiceName),
		middleware.LoggerMiddleware(a.Logger),
		middleware.CORS(a.Config.Shell.AllowOrigins),
	)
	a.Engine = engine
	SetupMappings(a)
	return engine
}
