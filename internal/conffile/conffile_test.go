package conffile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/specialistvlad/eppicbatch/internal/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolved(t *testing.T, extra map[string]string) *config.Resolved {
	t.Helper()
	raw := config.Defaults()
	base := map[string]string{
		"db":              "2024_01",
		"wui_files":       "/data/wui",
		"blast_db_dir":    "/data/blast/db",
		"blast_cache_dir": "/data/blast/cache",
		"blastclust":      "/usr/bin/blastclust",
		"blastp":          "/usr/bin/blastp",
		"blast_data":      "/data/blast/data",
		"clustalo":        "/usr/bin/clustalo",
		"pymol":           "/usr/bin/pymol",
		"graphviz":        "/usr/bin/dot",
	}
	for k, v := range extra {
		base[k] = v
	}
	for k, v := range base {
		require.NoError(t, raw.SetString(k, v))
	}
	cfg, err := config.Resolve(raw)
	require.NoError(t, err)
	return cfg
}

func TestRenderDefaultTemplate(t *testing.T) {
	cfg := resolved(t, nil)

	out, err := Render(DefaultTemplate, cfg)
	require.NoError(t, err)
	text := string(out)

	assert.Contains(t, text, "SIFTS_FILE=/data/blast/db/pdb_chain_uniprot.lst\n")
	assert.Contains(t, text, "LOCAL_UNIPROT_DB_NAME=uniprot_2024_01\n")
	assert.Contains(t, text, "BLASTP_BIN=/usr/bin/blastp\n")
	assert.Contains(t, text, "DB_HOST=localhost\n")
	assert.NotContains(t, text, "LOCAL_CIF_DIR", "empty cif dir is left out")

	again, err := Render(DefaultTemplate, cfg)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestRenderIncludesLocalCifDir(t *testing.T) {
	out, err := Render(DefaultTemplate, resolved(t, map[string]string{"local_cif_dir": "/data/cif"}))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.SplitN(string(out), "\n", 2)[1], "LOCAL_CIF_DIR=/data/cif"))
}

func TestRenderErrors(t *testing.T) {
	cfg := resolved(t, nil)

	_, err := Render("VALUE=${no_such_param}\n", cfg)
	assert.ErrorIs(t, err, ErrTemplateRender)

	_, err = Render("VALUE=${\n", cfg)
	assert.ErrorIs(t, err, ErrTemplateRender)
}

func TestTask(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	cfg := resolved(t, nil)
	tk := New(fs, "/work/eppic_cli_2024_01.conf", "HOST=${db_host}\n", cfg)

	assert.Equal(t, "conffile[/work/eppic_cli_2024_01.conf]", tk.ID())
	assert.Empty(t, tk.Requires())

	done, err := tk.Complete(ctx)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, tk.Run(ctx))

	done, err = tk.Complete(ctx)
	require.NoError(t, err)
	assert.True(t, done)

	content, err := afero.ReadFile(fs, tk.Path())
	require.NoError(t, err)
	assert.Equal(t, "HOST=localhost\n", string(content))

	entries, err := afero.ReadDir(fs, "/work")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")
}

func TestTaskRunOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eppic.conf")
	require.NoError(t, os.WriteFile(path, []byte("stale contents that are longer\n"), 0o644))

	tk := New(afero.NewOsFs(), path, "HOST=${db_host}\n", resolved(t, nil))
	require.NoError(t, tk.Run(context.Background()))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "HOST=localhost\n", string(content))
}

func TestTaskRunRenderFailureWritesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	tk := New(fs, "/work/eppic.conf", "X=${missing}\n", resolved(t, nil))

	err := tk.Run(context.Background())
	assert.ErrorIs(t, err, ErrTemplateRender)

	exists, err := afero.Exists(fs, "/work/eppic.conf")
	require.NoError(t, err)
	assert.False(t, exists)
}
