package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	runStoreContract(t, s)
}

func TestFileStore_Layout(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.SaveJSON(ctx, "RS_1/Regulation/AI_healthcare_regulation_2024.json", map[string]string{"query": "研究"}))

	data, err := os.ReadFile(filepath.Join(root, "RS_1", "Regulation", "AI_healthcare_regulation_2024.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"query\": \"研究\"\n}", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "RS_1", "Regulation"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestNewFileStore_RequiresRoot(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}
