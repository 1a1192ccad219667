package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCLIConfig_MissingFileKeepsDefaults(t *testing.T) {
	v, err := loadCLIConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, outputText, v.GetString(cfgKeyOutput))
	assert.Equal(t, int64(0), v.GetInt64(cfgKeyActor))
	assert.False(t, v.GetBool(cfgKeyAllowPurge))
}

func TestLoadCLIConfig_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := "output: yaml\nactor: 7\nallow_purge: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	v, err := loadCLIConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, outputYAML, v.GetString(cfgKeyOutput))
	assert.Equal(t, int64(7), v.GetInt64(cfgKeyActor))
	assert.True(t, v.GetBool(cfgKeyAllowPurge))
}

func TestLoadCLIConfig_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("output: [yaml\n"), 0o644))

	_, err := loadCLIConfig(dir)
	assert.Error(t, err)
}

func TestValidOutput(t *testing.T) {
	assert.True(t, validOutput(outputText))
	assert.True(t, validOutput(outputJSON))
	assert.True(t, validOutput(outputYAML))
	assert.False(t, validOutput("xml"))
}

func TestPrintStructured(t *testing.T) {
	v, err := loadCLIConfig(t.TempDir())
	require.NoError(t, err)
	cliCfg = v
	t.Cleanup(func() { cliCfg = nil })

	payload := struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}{ID: 3, Name: "Big spenders"}

	cliCfg.Set(cfgKeyOutput, outputYAML)
	assert.True(t, structured())
	var buf bytes.Buffer
	require.NoError(t, printStructured(&buf, payload))
	assert.Contains(t, buf.String(), "id: 3")
	assert.Contains(t, buf.String(), "name: Big spenders")

	cliCfg.Set(cfgKeyOutput, outputJSON)
	buf.Reset()
	require.NoError(t, printStructured(&buf, payload))
	assert.JSONEq(t, `{"id":3,"name":"Big spenders"}`, buf.String())

	cliCfg.Set(cfgKeyOutput, outputText)
	assert.False(t, structured())
}
