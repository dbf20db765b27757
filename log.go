package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/thaitts/corpusprep/utils"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig is read from the environment.
type LogConfig struct {
	Debug bool `env:"CORPUSPREP_DEBUG"`
	// File receives the logs instead of stderr. Debug mode defaults it to
	// the user cache directory.
	File       string `env:"CORPUSPREP_LOG_FILE"`
	MaxSizeMB  int    `env:"CORPUSPREP_LOG_MAX_SIZE" envDefault:"50"`
	MaxBackups int    `env:"CORPUSPREP_LOG_MAX_BACKUPS" envDefault:"3"`
}

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "corpusprep").CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find cache directory: %w", err)
	}
	return filepath.Join(dir, "corpusprep.log"), nil
}

// logToStderr is set when log lines share stderr with the progress bar.
var logToStderr bool

func setupLog() (func() error, error) {
	cfg, err := env.ParseAs[LogConfig]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log config: %w", err)
	}

	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		log.SetReportCaller(true)
	}

	path := utils.ExpandPath(cfg.File)
	if path == "" && cfg.Debug {
		if path, err = getLogFilePath(); err != nil {
			return nil, err
		}
	}
	if path == "" {
		logToStderr = true
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	rotating := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	log.SetOutput(rotating)
	log.SetFormatter(log.LogfmtFormatter)
	log.SetReportTimestamp(true)
	return rotating.Close, nil
}
