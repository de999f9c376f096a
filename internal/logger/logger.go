// Package logger builds the zap logger shared by the server, the sweeper
// and the audit consumer.
package logger

import (
	"strings"

	"go.uber.org/zap"
)

// New returns a production (JSON) logger when env is "prod" or
// "production" and a development (console) logger otherwise.  level
// overrides the default level when it parses ("debug", "info", "warn",
// "error").
func New(env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(env) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		if lvl, err := zap.ParseAtomicLevel(level); err == nil {
			cfg.Level = lvl
		}
	}
	return cfg.Build()
}
