package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfigReadsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawler.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler:\n  workers: 2\noracle:\n  model: file-model\n"), 0o600))
	t.Setenv("CRAWLER_ORACLE_MODEL", "env-model")

	v, err := InitConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2, v.GetInt("crawler.workers"))
	assert.Equal(t, "env-model", v.GetString("oracle.model"))
	assert.Equal(t, 5, v.GetInt("crawler.max_page_visits"))
}

func TestInitConfigMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := InitConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestInitConfigWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := InitConfig("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", v.GetString("oracle.provider"))
}
