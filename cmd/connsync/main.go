// Package main is the entry point for the connsync server and CLI.
package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/stacklok/connsync/cmd/connsync/app"
	"github.com/stacklok/connsync/internal/config"
	"github.com/stacklok/connsync/internal/logging"
)

// getLogLevel reads CONNSYNC_LOG_LEVEL, falling back to LOG_LEVEL.
// Defaults to slog.LevelInfo if neither is set or if the value is invalid.
func getLogLevel() slog.Level {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	levelStr := v.GetString("LOG_LEVEL")
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}

	level, ok := logging.ParseLevel(levelStr)
	if !ok {
		slog.Warn("Invalid LOG_LEVEL, using INFO", "value", levelStr)
	}
	return level
}

func main() {
	// An optional .env file feeds the CONNSYNC_* variables
	envErr := godotenv.Load()

	// Logs go to stderr so stdout stays clean for commands that print data
	handler := logging.NewHandler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: getLogLevel()}))
	slog.SetDefault(slog.New(handler))

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", envErr)
	}

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
