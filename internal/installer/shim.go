package installer

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/pantryhq/pantry/internal/fspath"
)

// writeShim creates an idempotent launcher at shimPath that sets env (in
// addition to whatever the activation hook already prepended) and execs the
// binary at relTarget, a path relative to shimPath's own directory, with the
// process's own arguments (§4.I step 4). Resolving relative to the shim's own
// location, rather than embedding an absolute path, keeps the shim valid
// across the staging-directory-to-environment-directory rename Install does
// on success: the relative layout between bin/ and packages/ is identical on
// both sides of that rename, only the parent directory's name changes.
// force controls whether an existing shim is overwritten.
func writeShim(shimPath fspath.AbsolutePath, relTarget string, env map[string]string, force bool) error {
	if shimPath.Exists() && !force {
		return nil
	}
	if err := shimPath.EnsureDir(); err != nil {
		return err
	}

	var body string
	if runtime.GOOS == "windows" {
		body = windowsShim(relTarget, env)
	} else {
		body = unixShim(relTarget, env)
	}

	if shimPath.Exists() {
		if err := shimPath.Remove(); err != nil {
			return err
		}
	}
	return shimPath.WriteFile([]byte(body), 0o755)
}

func unixShim(relTarget string, env map[string]string) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("# generated by pantry; do not edit\n")
	b.WriteString(`DIR="$(cd "$(dirname "$0")" && pwd)"` + "\n")
	for _, k := range sortedEnvKeys(env) {
		fmt.Fprintf(&b, "export %s=%s\n", k, shellQuote(env[k]))
	}
	fmt.Fprintf(&b, "exec \"$DIR/%s\" \"$@\"\n", filepath.ToSlash(relTarget))
	return b.String()
}

func windowsShim(relTarget string, env map[string]string) string {
	var b strings.Builder
	b.WriteString("@echo off\r\n")
	b.WriteString("rem generated by pantry; do not edit\r\n")
	for _, k := range sortedEnvKeys(env) {
		fmt.Fprintf(&b, "set %s=%s\r\n", k, env[k])
	}
	fmt.Fprintf(&b, "\"%%~dp0%s\" %%*\r\n", filepath.FromSlash(relTarget))
	return b.String()
}

func sortedEnvKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// shimExt returns the platform's shim file extension ("" on unix, ".cmd" on
// windows), matching what the activation hook's PATH computation expects
// to find executable.
func shimExt() string {
	if runtime.GOOS == "windows" {
		return ".cmd"
	}
	return ""
}
