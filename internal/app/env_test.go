package app

import (
	"testing"
	"time"
)

func TestEnvString(t *testing.T) {
	t.Setenv("LOOM_TEST_STR", "  hello  ")
	if got := EnvString("LOOM_TEST_STR", "def"); got != "hello" {
		t.Fatalf("EnvString()=%q want %q", got, "hello")
	}
	if got := EnvString("LOOM_TEST_STR_MISSING", "def"); got != "def" {
		t.Fatalf("EnvString() default=%q want %q", got, "def")
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("LOOM_TEST_BOOL", "true")
	if !EnvBool("LOOM_TEST_BOOL", false) {
		t.Fatalf("EnvBool() expected true")
	}
	t.Setenv("LOOM_TEST_BOOL", "not-a-bool")
	if !EnvBool("LOOM_TEST_BOOL", true) {
		t.Fatalf("EnvBool() expected default on parse error")
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("LOOM_TEST_INT", "42")
	if got := EnvInt("LOOM_TEST_INT", 7); got != 42 {
		t.Fatalf("EnvInt()=%d want 42", got)
	}
	t.Setenv("LOOM_TEST_INT", "-3")
	if got := EnvInt("LOOM_TEST_INT", 7); got != 7 {
		t.Fatalf("EnvInt() negative=%d want default 7", got)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("LOOM_TEST_DUR", "1500ms")
	if got := EnvDuration("LOOM_TEST_DUR", time.Second); got != 1500*time.Millisecond {
		t.Fatalf("EnvDuration()=%v want 1.5s", got)
	}
	t.Setenv("LOOM_TEST_DUR", "0s")
	if got := EnvDuration("LOOM_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("EnvDuration() zero=%v want default 1s", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LOOM_BASE_URL", "")
	t.Setenv("LOOM_API_PREFIX", "")
	t.Setenv("LOOM_LOG_LEVEL", "")
	t.Setenv("LOOM_HTTP_TIMEOUT", "")
	t.Setenv("LOOM_WS_DIAL_TIMEOUT", "")

	cfg := LoadConfig()
	if cfg.BaseURL != "http://localhost:3500" {
		t.Fatalf("BaseURL=%q want default", cfg.BaseURL)
	}
	if cfg.APIPrefix != "/api/v1" {
		t.Fatalf("APIPrefix=%q want /api/v1", cfg.APIPrefix)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel=%q want info", cfg.LogLevel)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Fatalf("HTTPTimeout=%v want 30s", cfg.HTTPTimeout)
	}
	if cfg.WSDialTimeout != 10*time.Second {
		t.Fatalf("WSDialTimeout=%v want 10s", cfg.WSDialTimeout)
	}
}
