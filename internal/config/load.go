package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	pantryerrors "github.com/pantryhq/pantry/internal/errors"
	"github.com/pantryhq/pantry/internal/fspath"
	"github.com/pantryhq/pantry/internal/platform"
	"github.com/pantryhq/pantry/internal/util"
)

// envPrefix namespaces every variable envconfig looks for, so CacheTTL
// becomes PANTRY_CACHE_TTL (§3 "Environment variables consumed").
const envPrefix = "pantry"

// BindFlags registers the [install] section's overridable settings as
// persistent flags on fs, so a thin CLI layer can let --linker, --production,
// etc. take precedence over pantry.toml without this package knowing
// anything about cobra or the command tree.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("linker", "", "override install.linker from pantry.toml")
	fs.Bool("peer", false, "install peer dependencies")
	fs.Bool("production", false, "skip dev dependencies")
	fs.Bool("frozen-lockfile", false, "fail instead of updating the lockfile")
	fs.String("registry", "", "override the default package registry")
	fs.Var(&util.ConcurrencyValue{Value: new(int)}, "concurrency", "number of concurrent downloads, as a count or a percentage of CPU cores (e.g. --concurrency=50%)")
}

// Load resolves Settings for projectRoot: pantry.toml (if present), the
// project and user .npmrc (project wins key-for-key), the PANTRY_*
// environment block, and finally any flags bound via BindFlags, in that
// ascending order of precedence.
func Load(projectRoot fspath.AbsolutePath, dirs platform.Dirs, flags *pflag.FlagSet) (Settings, error) {
	settings := Settings{Install: defaultInstallSettings()}

	v := viper.New()
	v.SetFs(afero.NewOsFs())
	v.SetConfigName("pantry")
	v.SetConfigType("toml")
	v.AddConfigPath(string(projectRoot))
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return settings, pantryerrors.Wrap(pantryerrors.KindManifestParse, err)
		}
	} else if err := v.UnmarshalKey("install", &settings.Install); err != nil {
		return settings, pantryerrors.Wrap(pantryerrors.KindManifestParse, err)
	}

	userNpmrc, err := loadNpmrc(dirs.Home.Join(".npmrc"))
	if err != nil {
		return settings, err
	}
	projectNpmrc, err := loadNpmrc(projectRoot.Join(".npmrc"))
	if err != nil {
		return settings, err
	}
	settings.Npmrc = mergeNpmrc(userNpmrc, projectNpmrc)

	if err := envconfig.Process(envPrefix, &settings.Env); err != nil {
		return settings, pantryerrors.Wrap(pantryerrors.KindManifestParse, err)
	}
	if seconds, ok := parseIntEnv("PANTRY_CACHE_TTL"); ok {
		settings.Env.CacheTTL = time.Duration(seconds) * time.Second
	}
	if millis, ok := parseIntEnv("PANTRY_DOWNLOAD_TIMEOUT"); ok {
		settings.Env.DownloadTimeout = time.Duration(millis) * time.Millisecond
	}
	if settings.Env.MaxConcurrent > 0 {
		settings.Install.Concurrency = settings.Env.MaxConcurrent
	}

	if flags != nil {
		applyFlags(&settings, flags)
	}
	return settings, nil
}

// mergeNpmrc overlays project onto user, field by field and key by key, so
// a project .npmrc can override a single scope registry without blanking
// out the user's other scopes.
func mergeNpmrc(user, project NpmrcSettings) NpmrcSettings {
	merged := user
	if project.Registry != "" {
		merged.Registry = project.Registry
	}
	if project.Proxy != "" {
		merged.Proxy = project.Proxy
	}
	if project.HTTPSProxy != "" {
		merged.HTTPSProxy = project.HTTPSProxy
	}
	if project.StrictSSL {
		merged.StrictSSL = project.StrictSSL
	}
	merged.ScopeRegistries = mergeStringMaps(user.ScopeRegistries, project.ScopeRegistries)
	merged.AuthTokens = mergeStringMaps(user.AuthTokens, project.AuthTokens)
	return merged
}

// parseIntEnv reads name as a plain (non-duration-suffixed) integer, the
// format spec.md's PANTRY_CACHE_TTL and PANTRY_DOWNLOAD_TIMEOUT use.
func parseIntEnv(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func mergeStringMaps(base, overlay map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// applyFlags overrides settings.Install with any flag the caller actually
// set, leaving pantry.toml's value in place for flags left at their zero
// default.
func applyFlags(settings *Settings, flags *pflag.FlagSet) {
	if linker, err := flags.GetString("linker"); err == nil && linker != "" {
		settings.Install.Linker = Linker(strings.ToLower(linker))
	}
	if flags.Changed("peer") {
		if v, err := flags.GetBool("peer"); err == nil {
			settings.Install.Peer = v
		}
	}
	if flags.Changed("production") {
		if v, err := flags.GetBool("production"); err == nil {
			settings.Install.Production = v
		}
	}
	if flags.Changed("frozen-lockfile") {
		if v, err := flags.GetBool("frozen-lockfile"); err == nil {
			settings.Install.FrozenLockfile = v
		}
	}
	if registry, err := flags.GetString("registry"); err == nil && registry != "" {
		settings.Install.Registry = registry
	}
	if flags.Changed("concurrency") {
		if f := flags.Lookup("concurrency"); f != nil {
			if n, err := util.ParseConcurrency(f.Value.String()); err == nil {
				settings.Install.Concurrency = n
			}
		}
	}
}
