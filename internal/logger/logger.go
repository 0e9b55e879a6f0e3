package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/julianstephens/habitnudge/internal/constants"
)

// Logger is nil until Init runs; the package helpers drop lines until then.
var Logger *log.Logger

type Config struct {
	Debug     bool
	ConfigDir string
	// Stderr mirrors log lines to stderr outside debug mode (container runs)
	Stderr bool
	// JSON switches the formatter from text to JSON
	JSON bool
}

func (c Config) level() log.Level {
	if c.Debug {
		return log.DebugLevel
	}
	return log.InfoLevel
}

func (c Config) formatter() log.Formatter {
	if c.JSON {
		return log.JSONFormatter
	}
	return log.TextFormatter
}

// rotatingFile keeps the pass log under <config dir>/logs with size and age caps.
func rotatingFile(configDir string) (io.Writer, error) {
	dir := filepath.Join(configDir, constants.LogDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, constants.LogFileName),
		MaxSize:    constants.LogMaxSizeMB,
		MaxBackups: constants.LogMaxBackups,
		MaxAge:     constants.LogMaxAgeDays,
		Compress:   true,
	}, nil
}

// Init replaces the global logger.
func Init(cfg Config) error {
	out, err := rotatingFile(cfg.ConfigDir)
	if err != nil {
		return err
	}
	if cfg.Debug || cfg.Stderr {
		out = io.MultiWriter(os.Stderr, out)
	}

	Logger = log.NewWithOptions(out, log.Options{
		Prefix:          constants.AppName,
		Level:           cfg.level(),
		Formatter:       cfg.formatter(),
		ReportTimestamp: true,
		ReportCaller:    cfg.Debug,
	})
	return nil
}

func emit(level log.Level, msg string, keyvals []interface{}) {
	if Logger == nil {
		return
	}
	Logger.Log(level, msg, keyvals...)
}

func Debug(msg string, keyvals ...interface{}) { emit(log.DebugLevel, msg, keyvals) }
func Info(msg string, keyvals ...interface{})  { emit(log.InfoLevel, msg, keyvals) }
func Warn(msg string, keyvals ...interface{})  { emit(log.WarnLevel, msg, keyvals) }
func Error(msg string, keyvals ...interface{}) { emit(log.ErrorLevel, msg, keyvals) }
