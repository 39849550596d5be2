package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port    int    `json:"port"`
	Browser string `json:"browser"`
	Verbose bool   `json:"verbose"`
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0666))
}

func TestReadConfigMergesLocalOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{
		// defaults shared by every deployment
		port: 8080,
		browser: "chromium",
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{verbose: true, port: 9090}`)

	config, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, testConfig{Port: 9090, Browser: "chromium", Verbose: true}, config)
}

func TestReadConfigOnlyLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{browser: "chrome"}`)

	config, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "chrome", config.Browser)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSplitExt(t *testing.T) {
	testCases := []struct {
		name   string
		prefix string
		ext    string
	}{
		{name: "config.json5", prefix: "config", ext: "json5"},
		{name: "telemetry.local.json5", prefix: "telemetry.local", ext: "json5"},
		{name: "Makefile", prefix: "Makefile", ext: ""},
	}
	for _, test := range testCases {
		prefix, ext := splitExt(test.name)
		require.Equal(t, test.prefix, prefix, test.name)
		require.Equal(t, test.ext, ext, test.name)
	}
}

func TestReadRecursively(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0777))
	writeFile(t, filepath.Join(dir, "guap-test.json5"), `{port: 7000}`)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() {
		os.Chdir(wd)
	})

	path, err := Locate("guap-test.json5")
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	expected, err := filepath.EvalSymlinks(filepath.Join(dir, "guap-test.json5"))
	require.NoError(t, err)
	require.Equal(t, expected, resolved)

	config, err := ReadRecursively[testConfig]("guap-test.json5")
	require.NoError(t, err)
	require.Equal(t, 7000, config.Port)

	_, err = ReadRecursively[testConfig]("guap-test-missing.json5")
	require.ErrorIs(t, err, os.ErrNotExist)
}
