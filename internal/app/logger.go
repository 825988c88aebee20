package app

import (
	"strings"

	"github.com/charlesng35/groupchoice/pkg/logger"
)

// ConfigureLogging initialises the global logger from the server settings,
// defaulting to info and teeing into a rotating file when a path is set.
func ConfigureLogging(cfg ServerConfig) error {
	level := strings.TrimSpace(cfg.LogLevel)
	if level == "" {
		level = "info"
	}
	return logger.Init(level, logger.WithFile(logger.FileOptions{
		Path:       cfg.LogFile.Path,
		MaxSizeMB:  cfg.LogFile.MaxSizeMB,
		MaxBackups: cfg.LogFile.MaxBackups,
		MaxAgeDays: cfg.LogFile.MaxAgeDays,
		Compress:   cfg.LogFile.Compress,
	}))
}
