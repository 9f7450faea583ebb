package ci

import "testing"

func TestIsCiFalseWithoutEnv(t *testing.T) {
	for _, name := range ciEnvVars {
		t.Setenv(name, "")
	}
	if IsCi() {
		t.Fatal("IsCi() = true with no CI env vars set")
	}
}

func TestIsCiTrueUnderGitHubActions(t *testing.T) {
	t.Setenv("GITHUB_ACTIONS", "true")
	if !IsCi() {
		t.Fatal("IsCi() = false with GITHUB_ACTIONS set")
	}
}
