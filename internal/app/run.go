package app

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/specialistvlad/eppicbatch/internal/batch"
	"github.com/specialistvlad/eppicbatch/internal/clusterexecutor"
	"github.com/specialistvlad/eppicbatch/internal/conffile"
	"github.com/specialistvlad/eppicbatch/internal/config"
	"github.com/specialistvlad/eppicbatch/internal/ctxlog"
	"github.com/specialistvlad/eppicbatch/internal/localexecutor"
	"github.com/specialistvlad/eppicbatch/internal/task"
	"github.com/specialistvlad/eppicbatch/internal/workunit"
	"github.com/spf13/afero"
)

// defaultClusterJobs bounds in-flight cluster jobs when neither -workers nor
// cluster.max_jobs is set.
const defaultClusterJobs = 50

// Run loads the configuration, builds the batch and executes it. It returns
// an error when the batch could not start or is not complete afterwards.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	a.healthCheckServer()
	defer a.closeHealthCheckServer()

	loaded, err := config.Load(ctx, config.LoadOptions{
		ParamsFile:      a.config.ParamsFile,
		CredentialsFile: a.config.CredentialsFile,
		Overrides:       a.config.Overrides,
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	driver, err := a.newDriver(ctx, loaded)
	if err != nil {
		return err
	}

	a.logger.Info("Starting batch.", "list", a.config.ListPath, "root", driver.Root, "executor", a.config.Executor, "workers", driver.Workers)
	report, err := driver.Execute(ctx, a.config.ListPath)
	if report != nil {
		a.printSummary(report)
	}
	if err != nil {
		return fmt.Errorf("batch incomplete: %w", err)
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

func (a *App) newDriver(ctx context.Context, loaded *config.Loaded) (*batch.Driver, error) {
	params := loaded.Params

	root := a.config.Root
	if root == "" {
		var err error
		if root, err = params.Get("wui_files"); err != nil {
			return nil, fmt.Errorf("no output root given: %w", err)
		}
	}

	toolchain, err := workunit.ToolchainFromConfig(params)
	if err != nil {
		return nil, fmt.Errorf("failed to build command line: %w", err)
	}
	if a.config.Executor == ExecutorCluster {
		if root, err = clusterPaths(loaded.Cluster.MountPath, root, &toolchain); err != nil {
			return nil, fmt.Errorf("invalid cluster configuration: %w", err)
		}
	}

	template := conffile.DefaultTemplate
	if a.config.ConfTemplate != "" {
		content, err := afero.ReadFile(a.fs, a.config.ConfTemplate)
		if err != nil {
			return nil, fmt.Errorf("failed to read config template: %w", err)
		}
		template = string(content)
	}

	executor, workers, err := a.newExecutor(ctx, loaded)
	if err != nil {
		return nil, err
	}
	if a.config.WorkerCount > 0 {
		workers = a.config.WorkerCount
	}

	return &batch.Driver{
		Fs:        a.fs,
		Root:      root,
		Executor:  executor,
		Toolchain: toolchain,
		Requires: []task.Task{
			conffile.New(a.fs, toolchain.ConfigFile, template, params),
			task.NewArtifact(a.fs, toolchain.Jar),
		},
		Workers: workers,
		Logs:    !a.config.NoLog,
	}, nil
}

// clusterPaths makes the root, jar and config file absolute, since they are
// passed verbatim to pods. With a mount path set, the config file and the
// root must live under it.
func clusterPaths(mountPath, root string, tc *workunit.Toolchain) (string, error) {
	for _, p := range []*string{&root, &tc.Jar, &tc.ConfigFile} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", *p, err)
		}
		*p = abs
	}
	if mountPath == "" {
		return root, nil
	}
	for _, c := range []struct{ name, path string }{
		{"eppic_cli_conf_file", tc.ConfigFile},
		{"output root", root},
	} {
		if !within(mountPath, c.path) {
			return "", fmt.Errorf("%s %s is not under cluster.mount_path %s", c.name, c.path, mountPath)
		}
	}
	return root, nil
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// newExecutor returns the executor for the configured kind together with
// its default worker count.
func (a *App) newExecutor(ctx context.Context, loaded *config.Loaded) (workunit.Executor, int, error) {
	logger := ctxlog.FromContext(ctx)

	switch a.config.Executor {
	case ExecutorCluster:
		settings, err := clusterexecutor.SettingsFromConfig(loaded.Cluster)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid cluster configuration: %w", err)
		}
		workers := defaultClusterJobs
		if loaded.Cluster.MaxJobs > 0 {
			workers = loaded.Cluster.MaxJobs
		}
		if a.executor != nil {
			return a.executor, workers, nil
		}
		client := a.kubeClient
		if client == nil {
			if client, err = clusterexecutor.NewClient(loaded.Cluster.Kubeconfig); err != nil {
				return nil, 0, err
			}
		}
		logger.Debug("Cluster executor configured.", "namespace", settings.Namespace, "image", settings.Image)
		return clusterexecutor.New(client, settings), workers, nil
	default:
		if a.executor != nil {
			return a.executor, runtime.NumCPU(), nil
		}
		return localexecutor.New(a.fs), runtime.NumCPU(), nil
	}
}

func (a *App) printSummary(report *batch.Report) {
	completed, already, failed, skipped := report.Counts()
	fmt.Fprintf(a.outW, "Batch summary: %d units, %d completed, %d already complete, %d failed, %d skipped\n",
		len(report.Units), completed, already, failed, skipped)
	for _, u := range report.Units {
		if u.Outcome == batch.Failed {
			fmt.Fprintf(a.outW, "  %s: %v\n", u.Identifier, u.Err)
		}
	}
}
