package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	simpledao "github.com/kaifufi/simpledao-client-go"
	"github.com/kaifufi/simpledao-client-go/chain"
	"github.com/kaifufi/simpledao-client-go/wallet"
)

const logFilename = "simpledao.log"

// logWriter implements an io.Writer that outputs to standard error and, once
// initialized, the log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stderr.Write(p)
	if logRotator == nil {
		return len(p), nil
	}
	return logRotator.Write(p)
}

var (
	// backendLog is the logging backend used to create all subsystem loggers.
	backendLog = slog.NewBackend(logWriter{})

	// logRotator is the optional file output
	logRotator *rotator.Rotator

	log     = backendLog.Logger("CLI")
	sdaoLog = backendLog.Logger("SDAO")
	chanLog = backendLog.Logger("CHAN")
	wlltLog = backendLog.Logger("WLLT")
)

func init() {
	simpledao.UseLogger(sdaoLog)
	chain.UseLogger(chanLog)
	wallet.UseLogger(wlltLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]slog.Logger{
	"CLI":  log,
	"SDAO": sdaoLog,
	"CHAN": chanLog,
	"WLLT": wlltLog,
}

// initLogRotator initializes the logging rotator to write logs to logDir
func initLogRotator(logDir string, maxRolls int) error {
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	r, err := rotator.New(filepath.Join(logDir, logFilename), 32*1024, false, maxRolls)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	logRotator = r
	return nil
}

func closeLogRotator() {
	if logRotator != nil {
		logRotator.Close()
		logRotator = nil
	}
}

// setLogLevels sets the level of every subsystem logger
func setLogLevels(level string) error {
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		return fmt.Errorf("invalid log level %q", level)
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(lvl)
	}
	return nil
}
