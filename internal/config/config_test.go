package config

import (
	"testing"
	"time"
)

func TestParseMapping(t *testing.T) {
	got := parseMapping("bulkscan-family=FAMILY, bulkscan-civil=CIVIL")
	want := map[string]string{"bulkscan-family": "FAMILY", "bulkscan-civil": "CIVIL"}
	if len(got) != len(want) {
		t.Fatalf("parseMapping() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("parseMapping()[%s] = %q, want %q", k, got[k], v)
		}
	}
}

func TestParseMappingEmpty(t *testing.T) {
	got := parseMapping("")
	if len(got) != 0 {
		t.Errorf("parseMapping(\"\") = %v, want empty map", got)
	}
}

func TestParseMappingIgnoresMalformedPair(t *testing.T) {
	got := parseMapping("bulkscan-family=FAMILY,not-a-pair")
	if len(got) != 1 {
		t.Fatalf("parseMapping() = %v, want exactly one entry", got)
	}
	if got["bulkscan-family"] != "FAMILY" {
		t.Errorf("parseMapping()[bulkscan-family] = %q, want FAMILY", got["bulkscan-family"])
	}
}

func TestParseSet(t *testing.T) {
	got := parseSet("a, b,c")
	for _, k := range []string{"a", "b", "c"} {
		if !got[k] {
			t.Errorf("parseSet() missing %q", k)
		}
	}
	if len(got) != 3 {
		t.Errorf("parseSet() = %v, want 3 entries", got)
	}
}

func TestParseSetEmpty(t *testing.T) {
	got := parseSet("")
	if len(got) != 0 {
		t.Errorf("parseSet(\"\") = %v, want empty map", got)
	}
}

func TestReadEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("BSP_TEST_READ_ENV", "")
	if got := readEnv("BSP_TEST_READ_ENV", "default"); got != "default" {
		t.Errorf("readEnv() = %q, want default", got)
	}
}

func TestReadEnvUsesSetValue(t *testing.T) {
	t.Setenv("BSP_TEST_READ_ENV", "override")
	if got := readEnv("BSP_TEST_READ_ENV", "default"); got != "override" {
		t.Errorf("readEnv() = %q, want override", got)
	}
}

func TestParseIntFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("BSP_TEST_PARSE_INT", "not-a-number")
	if got := parseInt("BSP_TEST_PARSE_INT", 7); got != 7 {
		t.Errorf("parseInt() = %d, want 7", got)
	}
}

func TestParseDurationParsesValidDuration(t *testing.T) {
	t.Setenv("BSP_TEST_PARSE_DURATION", "45s")
	if got := parseDuration("BSP_TEST_PARSE_DURATION", time.Minute); got != 45*time.Second {
		t.Errorf("parseDuration() = %v, want 45s", got)
	}
}

func TestParseBoolFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("BSP_TEST_PARSE_BOOL", "maybe")
	if got := parseBool("BSP_TEST_PARSE_BOOL", true); got != true {
		t.Errorf("parseBool() = %v, want true", got)
	}
}

func TestLoadAppliesProcessingPoolDefaultWhenInvalid(t *testing.T) {
	t.Setenv("BSP_WORKERS", "0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ProcessingPool != defaultProcessingPool {
		t.Errorf("ProcessingPool = %d, want %d", cfg.ProcessingPool, defaultProcessingPool)
	}
}
