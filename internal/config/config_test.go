package config

import (
	"os"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	for _, port := range []int{0, -1, 70000} {
		cfg := validConfig()
		cfg.HTTP.Port = port
		if err := cfg.Validate(); err == nil {
			t.Errorf("port %d accepted", port)
		}
	}
}

func TestValidate_MissingAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing database addrs")
	}
}

func TestValidate_Aggregation(t *testing.T) {
	for _, agg := range []string{"avg", "min", "MAX"} {
		cfg := validConfig()
		cfg.Scoring.DefaultAggregation = agg
		if err := cfg.Validate(); err != nil {
			t.Errorf("aggregation %q rejected: %v", agg, err)
		}
	}

	cfg := validConfig()
	cfg.Scoring.DefaultAggregation = "median"
	if err := cfg.Validate(); err == nil {
		t.Error("aggregation median accepted")
	}
}

func TestValidate_Codes(t *testing.T) {
	cfg := validConfig()
	cfg.Resources.PivotCodes = []string{"cl", "toolong"}
	if err := cfg.Validate(); err == nil {
		t.Error("bad pivot code accepted")
	}

	cfg = validConfig()
	cfg.Schema.FeatureCodes = []string{"x"}
	if err := cfg.Validate(); err == nil {
		t.Error("bad feature code accepted")
	}
}

func TestValidate_FieldWithoutName(t *testing.T) {
	cfg := validConfig()
	cfg.Schema.Fields = []FieldConfig{{MultiValued: true}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unnamed field")
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Schema.SegmentSize != 4096 {
		t.Errorf("segment size = %d", cfg.Schema.SegmentSize)
	}
	if len(cfg.Schema.FeatureCodes) == 0 {
		t.Error("no default feature codes")
	}
	if cfg.Scoring.DefaultAggregation != "avg" {
		t.Errorf("default aggregation = %q", cfg.Scoring.DefaultAggregation)
	}
	if cfg.Scoring.DefaultLimit != 20 || cfg.Scoring.MaxLimit != 1000 {
		t.Errorf("limits = %d/%d", cfg.Scoring.DefaultLimit, cfg.Scoring.MaxLimit)
	}
	if cfg.Resources.Dir != "resources" {
		t.Errorf("resources dir = %q", cfg.Resources.Dir)
	}
	if cfg.HTTP.ReadTimeoutSec != 10 || cfg.HTTP.WriteTimeoutSec != 30 || cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("http timeouts = %+v", cfg.HTTP)
	}
}

func TestMultiValuedFields(t *testing.T) {
	cfg := validConfig()
	cfg.Schema.Fields = []FieldConfig{
		{Name: "cl_hi", MultiValued: true},
		{Name: "eh_hi"},
		{Name: "jc_hi", MultiValued: true},
	}
	got := cfg.MultiValuedFields()
	if len(got) != 2 || got[0] != "cl_hi" || got[1] != "jc_hi" {
		t.Fatalf("MultiValuedFields = %v", got)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("IMGDEX_TEST_PW", "secret")

	out := string(expandEnvVars([]byte("password: ${IMGDEX_TEST_PW}")))
	if out != "password: secret" {
		t.Errorf("expanded = %q", out)
	}

	out = string(expandEnvVars([]byte("addr: ${IMGDEX_TEST_UNSET:-localhost:6379}")))
	if out != "addr: localhost:6379" {
		t.Errorf("default expansion = %q", out)
	}

	out = string(expandEnvVars([]byte("plain: value")))
	if out != "plain: value" {
		t.Errorf("no-var passthrough = %q", out)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if got := GetEnv(); got != "local" {
		t.Errorf("GetEnv = %q, want local", got)
	}
	t.Setenv("ENV", "prod")
	if got := GetEnv(); got != "prod" {
		t.Errorf("GetEnv = %q, want prod", got)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(dir+"/config", 0o755); err != nil {
		t.Fatal(err)
	}
	data := []byte(`
http:
  port: 9090
database:
  addrs:
    - ${IMGDEX_TEST_ADDR:-localhost:6379}
schema:
  segment_size: 16
  feature_codes: [cl, eh]
scoring:
  default_aggregation: max
`)
	if err := os.WriteFile(dir+"/config/test.yaml", data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}
	if cfg.Database.Addrs[0] != "localhost:6379" {
		t.Errorf("addrs = %v", cfg.Database.Addrs)
	}
	if cfg.Schema.SegmentSize != 16 {
		t.Errorf("segment size = %d", cfg.Schema.SegmentSize)
	}
	if cfg.Scoring.DefaultAggregation != "max" {
		t.Errorf("aggregation = %q", cfg.Scoring.DefaultAggregation)
	}
	// Defaults still fill the gaps.
	if cfg.Scoring.DefaultLimit != 20 {
		t.Errorf("default limit = %d", cfg.Scoring.DefaultLimit)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := Load("nonexistent"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
