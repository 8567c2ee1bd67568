package task

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifact(t *testing.T) {
	fs := afero.NewMemMapFs()
	a := NewArtifact(fs, "/opt/eppic/eppic-cli.jar")

	assert.Equal(t, "artifact[/opt/eppic/eppic-cli.jar]", a.ID())
	assert.Empty(t, a.Requires())

	done, err := a.Complete(context.Background())
	require.NoError(t, err)
	assert.False(t, done)
	assert.ErrorIs(t, a.Run(context.Background()), ErrMissingArtifact)

	require.NoError(t, afero.WriteFile(fs, "/opt/eppic/eppic-cli.jar", []byte("jar"), 0o644))
	done, err = a.Complete(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
}
