package app

import (
	"errors"
	"fmt"
)

// Executor kinds accepted by Config.Executor.
const (
	ExecutorLocal   = "local"
	ExecutorCluster = "cluster"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ParamsFile      string // hcl file with params and cluster blocks
	CredentialsFile string // dotenv
	ListPath        string
	// Root is the output root. Empty means the resolved wui_files parameter.
	Root         string
	Executor     string
	ConfTemplate string // empty means the built-in template
	Overrides    map[string]string
	NoLog        bool

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	// WorkerCount of zero picks a default for the executor kind.
	WorkerCount int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ListPath == "" {
		return nil, errors.New("ListPath is a required configuration field and cannot be empty")
	}
	switch cfg.Executor {
	case "":
		cfg.Executor = ExecutorLocal
	case ExecutorLocal, ExecutorCluster:
	default:
		return nil, fmt.Errorf("unknown executor %q: must be %q or %q", cfg.Executor, ExecutorLocal, ExecutorCluster)
	}
	if cfg.WorkerCount < 0 {
		return nil, fmt.Errorf("WorkerCount must not be negative, got %d", cfg.WorkerCount)
	}
	return &cfg, nil
}
