package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/specialistvlad/eppicbatch/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// keyValues collects repeated -set key=value flags.
type keyValues map[string]string

func (kv keyValues) String() string {
	pairs := make([]string, 0, len(kv))
	for k, v := range kv {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (kv keyValues) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	kv[key] = value
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("eppicbatch", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
eppicbatch - Run the EPPIC analysis over a list of PDB identifiers.

Usage:
  eppicbatch [options] [LIST_PATH]

Arguments:
  LIST_PATH
    File with one identifier per line. Blank lines and lines starting
    with '#' are ignored.

Exit codes:
  0  every unit is complete
  1  the batch is incomplete or could not start
  2  invalid usage

Options:
`)
		flagSet.PrintDefaults()
	}

	overrides := keyValues{}
	configFlag := flagSet.String("config", "", "Path to the HCL parameter file.")
	credentialsFlag := flagSet.String("credentials", "", "Path to a dotenv file with credentials.")
	listFlag := flagSet.String("list", "", "Path to the identifier list.")
	rootFlag := flagSet.String("root", "", "Output root. Defaults to the wui_files parameter.")
	executorFlag := flagSet.String("executor", app.ExecutorLocal, "Where units run. Options: 'local' or 'cluster'.")
	workersFlag := flagSet.Int("workers", 0, "Maximum concurrent units. 0 picks a default for the executor.")
	templateFlag := flagSet.String("conf-template", "", "Template for the EPPIC config file. Defaults to the built-in one.")
	noLogFlag := flagSet.Bool("no-log", false, "Do not write <id>.out logs.")
	flagSet.Var(overrides, "set", "Override a parameter as key=value. Repeatable.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := *listFlag
	if path == "" && flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	if path == "" {
		slog.Debug("No list path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		ParamsFile:      *configFlag,
		CredentialsFile: *credentialsFlag,
		ListPath:        path,
		Root:            *rootFlag,
		Executor:        strings.ToLower(*executorFlag),
		ConfTemplate:    *templateFlag,
		Overrides:       overrides,
		NoLog:           *noLogFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		HealthcheckPort: *healthPortFlag,
		WorkerCount:     *workersFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
