// Package logging builds the zerolog logger used throughout the plant
// controller, adapted from the teacher's internal/logging.Init: same
// file-backed multi-writer setup, but returning a zerolog.Logger value
// instead of mutating a global log.Logger, since internal/root threads its
// own logger explicitly rather than relying on package-level state.
package logging

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// New opens path for append and returns a leveled, timestamped logger.
func New(level zerolog.Level, path string) (zerolog.Logger, error) {
	if path == "" {
		path = "/var/log/rwchcd-go/plant.log"
	}
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("logging: open %s: %w", path, err)
	}

	multi := zerolog.MultiLevelWriter(logFile, os.Stderr)
	logger := zerolog.New(multi).Level(level).With().Timestamp().Logger()
	return logger, nil
}
