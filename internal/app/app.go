package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/eppicbatch/internal/ctxlog"
	"github.com/specialistvlad/eppicbatch/internal/workunit"
	"github.com/spf13/afero"
	"k8s.io/client-go/kubernetes"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	ctx        context.Context
	fs         afero.Fs
	executor   workunit.Executor
	kubeClient kubernetes.Interface
	httpServer *http.Server
}

// Option customises an App, mostly for tests.
type Option func(*App)

// WithFs replaces the OS filesystem used for the list, the config file and
// completion checks.
func WithFs(fs afero.Fs) Option {
	return func(a *App) { a.fs = fs }
}

// WithExecutor runs every work unit through e instead of the configured
// executor kind.
func WithExecutor(e workunit.Executor) Option {
	return func(a *App) { a.executor = e }
}

// WithKubernetesClient makes cluster mode use client instead of building one
// from kubeconfig.
func WithKubernetesClient(client kubernetes.Interface) Option {
	return func(a *App) { a.kubeClient = client }
}

// NewApp is the constructor for the main application. It returns an App with
// its own isolated logger.
func NewApp(outW io.Writer, cfg *Config, opts ...Option) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	a := &App{
		outW:   outW,
		logger: logger,
		config: cfg,
		ctx:    ctxlog.WithLogger(context.Background(), logger),
		fs:     afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(a)
	}
	logger.Debug("Logger configured successfully.")
	return a
}
