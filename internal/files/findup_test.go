package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0777))
	target := filepath.Join(root, "a", ".cncremote.yaml")
	require.NoError(t, os.WriteFile(target, []byte("host: 10.0.0.2\n"), 0666))

	p, err := FindUp(".cncremote.yaml", nested)
	require.NoError(t, err)
	assert.Equal(t, target, p)

	p, err = FindUp("does-not-exist.yaml", nested)
	require.NoError(t, err)
	assert.Equal(t, "", p)
}
