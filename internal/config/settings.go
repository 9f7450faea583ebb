// Package config loads Pantry's project settings from pantry.toml,
// .npmrc, and the PANTRY_* environment block, and merges them into one
// typed Settings value (§3 "Manifest files (project)",
// "Environment variables consumed"), the way the teacher's config.go
// separates parsed CLI flags from parsed environment before handing a
// single struct to the rest of the program.
package config

import "time"

// Linker selects the installer's dependency layout strategy (§4.I).
type Linker string

const (
	LinkerHoisted  Linker = "hoisted"
	LinkerIsolated Linker = "isolated"
)

// InstallSettings is pantry.toml's [install] section.
type InstallSettings struct {
	Linker         Linker `mapstructure:"linker" toml:"linker"`
	Peer           bool   `mapstructure:"peer" toml:"peer"`
	Dev            bool   `mapstructure:"dev" toml:"dev"`
	Optional       bool   `mapstructure:"optional" toml:"optional"`
	Production     bool   `mapstructure:"production" toml:"production"`
	Registry       string `mapstructure:"registry" toml:"registry"`
	FrozenLockfile bool   `mapstructure:"frozenLockfile" toml:"frozenLockfile"`
	Concurrency    int    `mapstructure:"concurrency" toml:"concurrency"`
}

func defaultInstallSettings() InstallSettings {
	return InstallSettings{Linker: LinkerHoisted}
}

// EnvSettings is the PANTRY_* environment block (§3 "Environment variables
// consumed"), decoded independently of pantry.toml via envconfig so a
// value set only as an env var still takes effect with no file present.
type EnvSettings struct {
	Offline         bool          `envconfig:"OFFLINE"`
	CacheTTL        time.Duration `envconfig:"-"` // PANTRY_CACHE_TTL, plain seconds, parsed by config.Load
	NoCache         bool          `envconfig:"NO_CACHE"`
	MaxConcurrent   int           `envconfig:"MAX_CONCURRENT"`
	DownloadTimeout time.Duration `envconfig:"-"` // PANTRY_DOWNLOAD_TIMEOUT, plain milliseconds, parsed by config.Load
}

// NpmrcSettings holds the keys Load reads from a project or user .npmrc
// (registry, @scope:registry, //host/:_authToken, //host/:_auth, proxy,
// https-proxy, strict-ssl). The install pipeline uses ScopeRegistries, the
// AuthTokens entry for the configured registry's host, and Proxy;
// Registry, HTTPSProxy and StrictSSL are parsed but nothing reads them.
type NpmrcSettings struct {
	Registry        string            `mapstructure:"registry"`
	ScopeRegistries map[string]string `mapstructure:"-"` // @scope:registry entries, parsed separately
	AuthTokens      map[string]string `mapstructure:"-"` // //host/:_authToken and //host/:_auth, keyed by host
	Proxy           string            `mapstructure:"proxy"`
	HTTPSProxy      string            `mapstructure:"https-proxy"`
	StrictSSL       bool              `mapstructure:"strict-ssl"`
}

// Settings is the fully merged configuration the rest of Pantry consumes:
// pantry.toml's [install] section, .npmrc, and the environment block, with
// the precedence env > npmrc > toml > defaults for any field present in
// more than one source.
type Settings struct {
	Install InstallSettings
	Npmrc   NpmrcSettings
	Env     EnvSettings
}
