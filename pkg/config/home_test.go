package config

import (
	"path/filepath"
	"testing"
)

func TestGetHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Setenv("BROWSER_RUNNER_HOME", "/custom/path")

	got := GetHome()
	if got != "/custom/path" {
		t.Errorf("GetHome() = %q, want %q", got, "/custom/path")
	}
}

func TestGetHome_FallbackNotEmpty(t *testing.T) {
	ResetHome()
	t.Setenv("BROWSER_RUNNER_HOME", "")

	if got := GetHome(); got == "" {
		t.Error("GetHome() returned empty string")
	}
}

func TestGetHome_Cached(t *testing.T) {
	ResetHome()
	t.Setenv("BROWSER_RUNNER_HOME", "/first")

	first := GetHome()

	// Change env, should NOT affect cached value
	t.Setenv("BROWSER_RUNNER_HOME", "/second")
	second := GetHome()

	if first != second {
		t.Errorf("GetHome() not cached: first=%q, second=%q", first, second)
	}
}

func TestGetLogDir(t *testing.T) {
	ResetHome()
	t.Setenv("BROWSER_RUNNER_HOME", "/test/home")

	if got, want := GetLogDir(), filepath.Join("/test/home", "logs"); got != want {
		t.Errorf("GetLogDir() = %q, want %q", got, want)
	}
	if got, want := DefaultLogFile(), filepath.Join("/test/home", "logs", "browser-runner.log"); got != want {
		t.Errorf("DefaultLogFile() = %q, want %q", got, want)
	}
}
