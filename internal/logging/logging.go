// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"form-engine/internal/config"
)

// Init applies level and format from cfg to the standard logrus logger.
// An empty level means info; format is "text" (default) or "json".
func Init(cfg config.LogConfig) error {
	return Configure(logrus.StandardLogger(), cfg, os.Stderr)
}

// Configure applies cfg to l and directs its output to w.
func Configure(l *logrus.Logger, cfg config.LogConfig, w io.Writer) error {
	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}
	l.SetLevel(level)
	l.SetOutput(w)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return nil
}
