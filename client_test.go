package imgdex

import (
	"testing"

	"go.uber.org/zap"
)

func TestNew_RequiresRedisAddress(t *testing.T) {
	if _, err := New(); err == nil {
		t.Fatal("expected error without a redis address")
	}
	if _, err := New(WithResourceDir("resources")); err == nil {
		t.Fatal("expected error without a redis address")
	}
}

func TestOptions_Apply(t *testing.T) {
	cfg := &clientConfig{segmentSize: 4096}
	logger := zap.NewNop()
	opts := []Option{
		WithRedis("localhost:6379", "secret"),
		WithResourceDir("/data/resources"),
		WithPivotCodes("cl", "ph"),
		WithSegmentSize(128),
		WithFeatureCodes("cl", "eh"),
		WithMultiValuedFields("cl_hi"),
		WithLogger(logger),
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addrs) != 1 || cfg.addrs[0] != "localhost:6379" {
		t.Errorf("addrs = %v", cfg.addrs)
	}
	if cfg.password != "secret" {
		t.Errorf("password = %q", cfg.password)
	}
	if cfg.resourceDir != "/data/resources" {
		t.Errorf("resourceDir = %q", cfg.resourceDir)
	}
	if len(cfg.pivotCodes) != 2 {
		t.Errorf("pivotCodes = %v", cfg.pivotCodes)
	}
	if cfg.segmentSize != 128 {
		t.Errorf("segmentSize = %d", cfg.segmentSize)
	}
	if len(cfg.featureCodes) != 2 {
		t.Errorf("featureCodes = %v", cfg.featureCodes)
	}
	if len(cfg.multiValued) != 1 || cfg.multiValued[0] != "cl_hi" {
		t.Errorf("multiValued = %v", cfg.multiValued)
	}
	if cfg.logger != logger {
		t.Error("logger not applied")
	}
}

func TestResolvedFeatureCodes(t *testing.T) {
	cfg := &clientConfig{}
	got := cfg.resolvedFeatureCodes()
	want := []string{"cl", "eh", "jc", "oh", "ph"}
	if len(got) != len(want) {
		t.Fatalf("default codes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("default codes = %v, want %v", got, want)
		}
	}

	WithFeatureCodes("cl").apply(cfg)
	got = cfg.resolvedFeatureCodes()
	if len(got) != 1 || got[0] != "cl" {
		t.Errorf("explicit codes = %v, want [cl]", got)
	}
}

func TestWithRedisCluster(t *testing.T) {
	cfg := &clientConfig{}
	WithRedisCluster([]string{"n1:6379", "n2:6379"}, "pw").apply(cfg)

	if len(cfg.addrs) != 2 {
		t.Errorf("addrs = %v", cfg.addrs)
	}
	if cfg.password != "pw" {
		t.Errorf("password = %q", cfg.password)
	}
}
