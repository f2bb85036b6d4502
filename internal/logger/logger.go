// Package logger provides a process-wide structured logger used by every
// pool actor (controller, feeder, collector, killer, worker loop) and by
// the admin API built around the executor.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

// Init configures the global logger. pretty selects a human-readable
// console writer instead of JSON, for local/dev use.
func Init(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var output io.Writer = os.Stdout
	if pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	log = zerolog.New(output).With().Timestamp().Caller().Logger()
}

// Get returns the global logger.
func Get() *zerolog.Logger {
	return &log
}

func WithComponent(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

func WithWorker(pid int) zerolog.Logger {
	return log.With().Int("worker_pid", pid).Logger()
}

func WithTask(taskID string) zerolog.Logger {
	return log.With().Str("task_id", taskID).Logger()
}

func Debug() *zerolog.Event { return log.Debug() }
func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }
func Error() *zerolog.Event { return log.Error() }
func Fatal() *zerolog.Event { return log.Fatal() }

func init() {
	// Sensible defaults so library code that logs before the host calls
	// Init (e.g. the re-exec'd worker, whose main() barely runs any code
	// before MaybeRunWorker) never panics on a zero-value logger.
	Init("info", true)
}
