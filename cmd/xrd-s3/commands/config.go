package commands

import (
	"sync/atomic"

	"github.com/spf13/viper"

	"github.com/cern-eos/xrdgojs3/internal/logger"
	"github.com/cern-eos/xrdgojs3/internal/s3core/auth/directory"
	s3config "github.com/cern-eos/xrdgojs3/internal/s3core/config"
)

// traceLevel holds the current s3.trace value; setTraceLevel is the target
// of viper's config-change watch, so s3.trace can be raised or lowered
// without restarting the daemon.
var traceLevel atomic.Value

func init() { traceLevel.Store(string(s3config.TraceNone)) }

func setTraceLevel(level string) {
	traceLevel.Store(level)
	switch s3config.TraceLevel(level) {
	case s3config.TraceAll, s3config.TraceDebug:
		logger.SetLevel("DEBUG")
	case s3config.TraceInfo:
		logger.SetLevel("INFO")
	case s3config.TraceWarning:
		logger.SetLevel("WARN")
	default: // error, none
		logger.SetLevel("ERROR")
	}
}

func currentTraceLevel() string { return traceLevel.Load().(string) }

// s3Opts collects the mandatory s3.* keys Load validates, from whatever
// combination of config file and XRD_S3_* environment viper resolved.
func s3Opts() map[string]string {
	return map[string]string{
		"s3.vmp":       viper.GetString("s3.vmp"),
		"s3.config":    viper.GetString("s3.config"),
		"s3.region":    viper.GetString("s3.region"),
		"s3.service":   viper.GetString("s3.service"),
		"s3.multipart": viper.GetString("s3.multipart"),
		"s3.trace":     viper.GetString("s3.trace"),
	}
}

// directoryConfig reads the bucket directory's backing-store selection
// from the directory.* viper keys. Unlike s3.*, these are specific to
// xrd-s3 rather than shared with the JCache side of the module, so they
// are not routed through a validated config.S3Config-style loader.
func directoryConfig() directory.Config {
	cfg := directory.Config{Type: directory.DatabaseType(viper.GetString("directory.type"))}
	cfg.SQLite.Path = viper.GetString("directory.sqlite.path")
	cfg.Postgres.Host = viper.GetString("directory.postgres.host")
	cfg.Postgres.Port = viper.GetInt("directory.postgres.port")
	cfg.Postgres.Database = viper.GetString("directory.postgres.database")
	cfg.Postgres.User = viper.GetString("directory.postgres.user")
	cfg.Postgres.Password = viper.GetString("directory.postgres.password")
	cfg.Postgres.SSLMode = viper.GetString("directory.postgres.sslmode")
	cfg.Postgres.MaxOpenConns = viper.GetInt("directory.postgres.max_open_conns")
	cfg.Postgres.MaxIdleConns = viper.GetInt("directory.postgres.max_idle_conns")
	return cfg
}
