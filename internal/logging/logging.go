// Package logging configures logrus for crankprom.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/torosent/crankprom/internal/config"
	"github.com/torosent/crankprom/internal/registry"
)

// Component is the value of the "component" field on every entry.
const Component = "crankprom"

// Configure builds a logger from cfg writing to out (stdout when nil) and returns the
// root entry handed to every component.
func Configure(cfg config.LogConfig, out io.Writer) (*logrus.Entry, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stdout
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return logger.WithField("component", Component), nil
}

// ParseLevel maps a configured level onto logrus, defaulting to info.
func ParseLevel(level string) (logrus.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(level)
}

// MetricsHook counts log lines per level in a registry counter.
type MetricsHook struct {
	views map[logrus.Level]*registry.View
}

// NewMetricsHook registers crankprom_log_messages_total in reg.
func NewMetricsHook(reg *registry.Registry) (*MetricsHook, error) {
	m, err := reg.Create(registry.Definition{
		Name:   "crankprom_log_messages_total",
		Help:   "Total number of log lines logged by level",
		Kind:   registry.KindCounter,
		Labels: []string{"level"},
	})
	if err != nil {
		return nil, err
	}

	hook := &MetricsHook{views: make(map[logrus.Level]*registry.View)}
	for _, level := range hook.Levels() {
		view, err := m.With(map[string]string{"level": level.String()})
		if err != nil {
			return nil, err
		}
		hook.views[level] = view
	}
	return hook, nil
}

func (h *MetricsHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel}
}

func (h *MetricsHook) Fire(entry *logrus.Entry) error {
	if view, ok := h.views[entry.Level]; ok {
		return view.Increment(1)
	}
	return nil
}
