package xfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "models"), ExpandTilde("~/models"))
	assert.Equal(t, home, ExpandTilde("~"))
	assert.Equal(t, "/workspace/models", ExpandTilde("/workspace/models"))
	assert.Equal(t, "~other/models", ExpandTilde("~other/models"))
}
