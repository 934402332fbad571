package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTool(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jsonadm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConfigCheck(t *testing.T) {
	path := writeConfig(t, `
resource:
  store: memory
  definitions:
    - name: order
      lists: true
      types:
        - code: default
          domain: order
    - name: order/product
`)

	out, err := runTool(t, "config", "check", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "store: memory")
	assert.Contains(t, out, "resource: order lists=true types=1 tree=false")
	assert.Contains(t, out, "resource: order/product lists=false types=0 tree=false")
	assert.Contains(t, out, "configuration is valid")
}

func TestConfigCheckSingleResource(t *testing.T) {
	path := writeConfig(t, `
resource:
  store: memory
  definitions:
    - name: order
      attributes:
        - code: order.status
      base_filter: '{"==":{"order.siteid":"1"}}'
    - name: order/product
`)
	defer func() { checkResource = "" }()

	out, err := runTool(t, "config", "check", "--config", path, "--resource", "order")
	require.NoError(t, err)
	assert.Contains(t, out, "resource: order lists=false types=0 tree=false")
	assert.Contains(t, out, "  attribute: order.status")
	assert.Contains(t, out, `  base filter: {"==":{"order.siteid":"1"}}`)
	assert.NotContains(t, out, "order/product")

	_, err = runTool(t, "config", "check", "--config", path, "--resource", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `resource "missing" is not configured`)
}

func TestConfigCheckInvalid(t *testing.T) {
	path := writeConfig(t, `
query:
  default_page_size: 50
  max_page_size: 10
`)

	_, err := runTool(t, "config", "check", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query.maxPageSize")
}

func TestConfigShowHidesPassword(t *testing.T) {
	path := writeConfig(t, `
database:
  database: shop
  password: secret
`)

	out, err := runTool(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"database": "shop"`)
	assert.NotContains(t, out, "secret")
}

func TestMigrateRequiresDatabase(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
`)

	_, err := runTool(t, "migrate", "version", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.database")
}
