package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantryhq/pantry/internal/fspath"
)

func writeNpmrc(t *testing.T, dir, contents string) fspath.AbsolutePath {
	t.Helper()
	path := filepath.Join(dir, ".npmrc")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	abs, err := fspath.New(path)
	require.NoError(t, err)
	return abs
}

func TestLoadNpmrcMissingFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	abs, err := fspath.New(filepath.Join(dir, ".npmrc"))
	require.NoError(t, err)

	settings, err := loadNpmrc(abs)
	require.NoError(t, err)
	assert.Empty(t, settings.Registry)
	assert.Empty(t, settings.ScopeRegistries)
	assert.Empty(t, settings.AuthTokens)
}

func TestLoadNpmrcParsesFlatKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeNpmrc(t, dir, "registry=https://registry.example.com/\nstrict-ssl=true\nproxy=http://proxy.local:8080\n")

	settings, err := loadNpmrc(path)
	require.NoError(t, err)
	assert.Equal(t, "https://registry.example.com/", settings.Registry)
	assert.True(t, settings.StrictSSL)
	assert.Equal(t, "http://proxy.local:8080", settings.Proxy)
}

func TestLoadNpmrcParsesScopeRegistriesAndAuthTokens(t *testing.T) {
	dir := t.TempDir()
	path := writeNpmrc(t, dir, strings.Join([]string{
		"@acme:registry=https://npm.acme.internal/",
		"//npm.acme.internal/:_authToken=abc123",
		"//legacy.example.com/:_auth=base64blob",
	}, "\n")+"\n")

	settings, err := loadNpmrc(path)
	require.NoError(t, err)
	assert.Equal(t, "https://npm.acme.internal/", settings.ScopeRegistries["@acme"])
	assert.Equal(t, "abc123", settings.AuthTokens["npm.acme.internal"])
	assert.Equal(t, "base64blob", settings.AuthTokens["legacy.example.com"])
}
