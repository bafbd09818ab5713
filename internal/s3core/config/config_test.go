package config

import "testing"

func TestLoadRequiresAllButTrace(t *testing.T) {
	_, err := Load(map[string]string{
		"s3.vmp":     "/vmp",
		"s3.config":  "/etc/s3",
		"s3.region":  "us-east-1",
		"s3.service": "s3",
	})
	if err == nil {
		t.Fatalf("expected validation error for missing s3.multipart")
	}
}

func TestLoadDefaultsTraceNone(t *testing.T) {
	cfg, err := Load(map[string]string{
		"s3.vmp":       "/vmp",
		"s3.config":    "/etc/s3",
		"s3.region":    "us-east-1",
		"s3.service":   "s3",
		"s3.multipart": "/mtpu",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Trace != TraceNone {
		t.Fatalf("trace = %q, want %q", cfg.Trace, TraceNone)
	}
}

func TestLoadRejectsInvalidTrace(t *testing.T) {
	_, err := Load(map[string]string{
		"s3.vmp":       "/vmp",
		"s3.config":    "/etc/s3",
		"s3.region":    "us-east-1",
		"s3.service":   "s3",
		"s3.multipart": "/mtpu",
		"s3.trace":     "verbose",
	})
	if err == nil {
		t.Fatalf("expected validation error for invalid trace level")
	}
}
