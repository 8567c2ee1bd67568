// Package conffile renders the analysis tool's configuration file from the
// resolved parameters and writes it as a graph task.
package conffile

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/eppicbatch/internal/config"
	"github.com/specialistvlad/eppicbatch/internal/ctxlog"
	"github.com/specialistvlad/eppicbatch/internal/task"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// DefaultTemplate is the built-in configuration template. It is an HCL
// template whose variables are the resolved parameters.
//
//go:embed eppic.conf.tmpl
var DefaultTemplate string

// ErrTemplateRender is returned when the template cannot be parsed or
// references a parameter that has no value.
var ErrTemplateRender = errors.New("template render failed")

// Render evaluates tmpl against cfg. The output depends only on its inputs.
func Render(tmpl string, cfg *config.Resolved) ([]byte, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(tmpl), "eppic.conf", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrTemplateRender, diags.Error())
	}

	v, diags := expr.Value(cfg.EvalContext())
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrTemplateRender, diags.Error())
	}
	if v.IsNull() || !v.IsWhollyKnown() {
		return nil, fmt.Errorf("%w: template produced no value", ErrTemplateRender)
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateRender, err)
	}
	return []byte(s.AsString()), nil
}

// Task writes the rendered configuration to Path. It is complete once the
// file exists; an existing file is never regenerated.
type Task struct {
	fs       afero.Fs
	path     string
	template string
	cfg      *config.Resolved
}

// New returns a task that renders template with cfg into path.
func New(fs afero.Fs, path, template string, cfg *config.Resolved) *Task {
	return &Task{fs: fs, path: path, template: template, cfg: cfg}
}

// Path returns the destination of the configuration file.
func (t *Task) Path() string {
	return t.path
}

func (t *Task) ID() string {
	return fmt.Sprintf("conffile[%s]", t.path)
}

func (t *Task) Requires() []task.Task {
	return nil
}

func (t *Task) Complete(_ context.Context) (bool, error) {
	return afero.Exists(t.fs, t.path)
}

// Run renders the template and replaces the destination in one rename, so a
// reader never observes a partially written file.
func (t *Task) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	content, err := Render(t.template, t.cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(t.path)
	if err := t.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", t.path, err)
	}

	tmp, err := afero.TempFile(t.fs, dir, "."+filepath.Base(t.path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", t.path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		t.fs.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		t.fs.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := t.fs.Chmod(tmpName, 0o644); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Could not set config file permissions.", "path", tmpName, "error", err)
	}
	if err := t.fs.Rename(tmpName, t.path); err != nil {
		t.fs.Remove(tmpName)
		return fmt.Errorf("renaming %s to %s: %w", tmpName, t.path, err)
	}

	logger.Info("Config file written.", "path", t.path, "bytes", len(content))
	return nil
}
