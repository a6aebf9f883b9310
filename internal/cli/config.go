package cli

import (
	"log/slog"

	"github.com/spf13/viper"
)

// Config holds typed configuration shared by the commands.
type Config struct {
	LogFile  string
	LogLevel string
	Verbose  bool
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogFile:  v.GetString("log_file"),
		LogLevel: v.GetString("log_level"),
		Verbose:  v.GetBool("verbose"),
	}
}

// SlogLevel maps the configured level name onto slog.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
