package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const logFileName = "treetx.log"

// levels maps -v counts to zerolog levels. Anything above the last entry is
// trace.
var levels = []zerolog.Level{
	zerolog.WarnLevel,
	zerolog.InfoLevel,
	zerolog.DebugLevel,
}

var (
	mu      sync.Mutex
	logFile *os.File
)

// LevelFor returns the level used for the given verbosity.
func LevelFor(verbosity int) zerolog.Level {
	if verbosity < 0 {
		return levels[0]
	}
	if verbosity >= len(levels) {
		return zerolog.TraceLevel
	}
	return levels[verbosity]
}

// SetupLogger points the global logger at stderr and at the treetx log file
// under the XDG state directory. It may be called again, for example once a
// tree's configuration has been read; the previous log file is closed.
func SetupLogger(verbosity int) {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	path := LogFilePath()
	f, err := openLogFile(path)
	if err != nil {
		Configure(verbosity, console)
		log.Warn().Err(err).Str("path", path).Msg("Logging to console only")
		return
	}
	Configure(verbosity, console, f)

	mu.Lock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	mu.Unlock()

	log.Debug().Int("verbosity", verbosity).Str("file", path).Msg("Logger initialized")
}

// Configure sets the global level and sends records to all writers.
// Debug and trace output carries the caller.
func Configure(verbosity int, writers ...io.Writer) {
	zerolog.SetGlobalLevel(LevelFor(verbosity))
	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp()
	if verbosity >= 2 {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
}

// GetLogger returns the global logger tagged with a component name such as
// "transform.apply".
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// LogFilePath is $XDG_STATE_HOME/treetx/treetx.log, falling back to the
// platform state directory when the variable is unset.
func LogFilePath() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		stateHome = xdg.StateHome
	}
	if stateHome == "" {
		return logFileName
	}
	return filepath.Join(stateHome, "treetx", logFileName)
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// LogOperationStart logs operation at debug level and returns a func that
// logs its duration.
func LogOperationStart(logger zerolog.Logger, operation string) func() {
	start := time.Now()
	logger.Debug().Str("operation", operation).Msg("Operation started")
	return func() {
		logger.Debug().
			Str("operation", operation).
			Dur("duration", time.Since(start)).
			Msg("Operation completed")
	}
}
