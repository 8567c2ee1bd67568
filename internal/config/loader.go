package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
	"github.com/specialistvlad/eppicbatch/internal/ctxlog"
	"github.com/specialistvlad/eppicbatch/internal/fsutil"
)

// LoadOptions names the configuration sources for a run. Every field is
// optional; with none set the result holds only the built-in defaults.
type LoadOptions struct {
	// ParamsFile is an HCL file with a `params` block and an optional
	// `cluster` block, or a directory of such files applied in lexical order.
	ParamsFile string
	// CredentialsFile is a dotenv file. Its keys are lower-cased and
	// override the parameter file.
	CredentialsFile string
	// Overrides are applied last, e.g. from repeated -set flags.
	Overrides map[string]string
}

// Cluster holds the optional `cluster` block. Attribute expressions may
// reference resolved parameters.
type Cluster struct {
	Namespace      string `hcl:"namespace,optional"`
	Image          string `hcl:"image,optional"`
	Claim          string `hcl:"claim,optional"`
	MountPath      string `hcl:"mount_path,optional"`
	ServiceAccount string `hcl:"service_account,optional"`
	Memory         string `hcl:"memory,optional"`
	CPU            string `hcl:"cpu,optional"`
	PollInterval   string `hcl:"poll_interval,optional"`
	Kubeconfig     string `hcl:"kubeconfig,optional"`
	MaxJobs        int    `hcl:"max_jobs,optional"`
}

// Loaded is the result of Load.
type Loaded struct {
	Params  *Resolved
	Cluster Cluster
}

// fileRoot is the top-level schema of a parameter file.
type fileRoot struct {
	Params  *remainBlock `hcl:"params,block"`
	Cluster *remainBlock `hcl:"cluster,block"`
}

type remainBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// Load merges all configured sources over the defaults and resolves them.
func Load(ctx context.Context, opts LoadOptions) (*Loaded, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Config loader started.", "params_file", opts.ParamsFile, "credentials_file", opts.CredentialsFile)

	raw := Defaults()
	var clusterBlock *remainBlock

	if opts.ParamsFile != "" {
		files, err := fsutil.FindFilesByExtension(opts.ParamsFile, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("failed to find parameter files in %s: %w", opts.ParamsFile, err)
		}
		parser := hclparse.NewParser()
		for _, path := range files {
			block, err := loadParamsFile(ctx, parser, path, raw)
			if err != nil {
				return nil, err
			}
			if block != nil {
				clusterBlock = block
			}
		}
	}

	if opts.CredentialsFile != "" {
		env, err := godotenv.Read(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file %s: %w", opts.CredentialsFile, err)
		}
		for key, value := range env {
			if err := raw.SetString(strings.ToLower(key), value); err != nil {
				return nil, err
			}
		}
		logger.Debug("Credentials file loaded.", "count", len(env))
	}

	for key, value := range opts.Overrides {
		if err := raw.SetString(key, value); err != nil {
			return nil, err
		}
	}

	params, err := Resolve(raw)
	if err != nil {
		return nil, err
	}
	logger.Debug("Parameters resolved.", "count", len(params.values))

	loaded := &Loaded{Params: params}
	if clusterBlock != nil {
		if diags := gohcl.DecodeBody(clusterBlock.Body, params.EvalContext(), &loaded.Cluster); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode cluster block: %w", diags)
		}
	}

	return loaded, nil
}

// loadParamsFile adds the params of one file to raw and returns its cluster
// block, if any. Files are applied in order, so later files win.
func loadParamsFile(ctx context.Context, parser *hclparse.Parser, path string, raw Raw) (*remainBlock, error) {
	logger := ctxlog.FromContext(ctx)

	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	if root.Params != nil {
		attrs, diags := root.Params.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to read params in %s: %w", path, diags)
		}
		for name, attr := range attrs {
			raw[name] = attr.Expr
		}
		logger.Debug("Parameter file loaded.", "path", path, "count", len(attrs))
	}
	return root.Cluster, nil
}
