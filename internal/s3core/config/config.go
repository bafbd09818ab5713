// Package config loads the S3 object store core's configuration keys per
// spec.md §6: s3.vmp, s3.config, s3.region, s3.service, s3.multipart
// (mandatory) and s3.trace (optional, default "none"), each overridable
// by a matching XRD_S3_* environment variable.
//
// Grounded on the teacher's pkg/config.Load viper precedence and
// validator struct-tag convention.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// TraceLevel enumerates the S3 core's trace verbosity levels.
type TraceLevel string

const (
	TraceAll     TraceLevel = "all"
	TraceError   TraceLevel = "error"
	TraceWarning TraceLevel = "warning"
	TraceInfo    TraceLevel = "info"
	TraceDebug   TraceLevel = "debug"
	TraceNone    TraceLevel = "none"
)

// S3Config is the S3 core's recognized configuration keys. All but Trace
// are mandatory per spec.md §6.
type S3Config struct {
	VMP       string     `mapstructure:"s3.vmp" validate:"required"`
	ConfigDir string     `mapstructure:"s3.config" validate:"required"`
	Region    string     `mapstructure:"s3.region" validate:"required"`
	Service   string     `mapstructure:"s3.service" validate:"required"`
	Multipart string     `mapstructure:"s3.multipart" validate:"required"`
	Trace     TraceLevel `mapstructure:"s3.trace" validate:"omitempty,oneof=all error warning info debug none"`
}

// Load reads S3 core options from opts overridden by XRD_S3_* environment
// variables, then validates the result.
//
// Individual option keys are fetched rather than unmarshaled wholesale:
// viper treats "." in a key as a nesting separator, which would otherwise
// fight the flat, dot-containing option names the S3 core uses.
func Load(opts map[string]string) (*S3Config, error) {
	v := viper.New()
	v.SetEnvPrefix("XRD_S3")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("s3.trace", string(TraceNone))
	// Options are registered as defaults so that a matching environment
	// variable takes precedence over them.
	for k, val := range opts {
		v.SetDefault(k, val)
	}

	cfg := &S3Config{
		VMP:       v.GetString("s3.vmp"),
		ConfigDir: v.GetString("s3.config"),
		Region:    v.GetString("s3.region"),
		Service:   v.GetString("s3.service"),
		Multipart: v.GetString("s3.multipart"),
		Trace:     TraceLevel(v.GetString("s3.trace")),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("s3 config: validate: %w", err)
	}
	return cfg, nil
}
