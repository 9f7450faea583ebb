package config

import (
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/ini.v1"

	"github.com/pantryhq/pantry/internal/fspath"
)

// loadNpmrc reads path (a project or user .npmrc) and decodes it into
// NpmrcSettings. A missing file yields zero-value settings, not an error,
// matching pantry.toml's own "absent means defaults" behavior.
func loadNpmrc(path fspath.AbsolutePath) (NpmrcSettings, error) {
	settings := NpmrcSettings{
		ScopeRegistries: map[string]string{},
		AuthTokens:      map[string]string{},
	}
	if !path.FileExists() {
		return settings, nil
	}

	raw, err := path.ReadFile()
	if err != nil {
		return settings, err
	}

	// .npmrc is a flat INI file with no sections; ini.v1's default
	// section holds every key=value line. Only "=" separates key from
	// value: "@scope:registry" and "//host/:_authToken" keys contain ':'.
	cfg, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true, KeyValueDelimiters: "="}, raw)
	if err != nil {
		return settings, err
	}
	section := cfg.Section("")

	flat := map[string]interface{}{}
	for _, key := range section.Keys() {
		name := key.Name()
		switch {
		case strings.HasSuffix(name, ":registry") && strings.HasPrefix(name, "@"):
			scope := strings.TrimSuffix(name, ":registry")
			settings.ScopeRegistries[scope] = key.String()
		case strings.HasSuffix(name, ":_authToken") || strings.HasSuffix(name, ":_auth"):
			host := hostFromAuthKey(name)
			settings.AuthTokens[host] = key.String()
		default:
			flat[name] = key.String()
		}
	}

	if err := mapstructure.Decode(flat, &settings); err != nil {
		return settings, err
	}
	return settings, nil
}

// hostFromAuthKey extracts the host from an .npmrc auth key of the form
// "//registry.example.com/:_authToken" or "//registry.example.com/:_auth".
func hostFromAuthKey(key string) string {
	trimmed := strings.TrimPrefix(key, "//")
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}
