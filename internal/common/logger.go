package common

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

// InitLogger initializes the arbor logger from the logging section.
// Console output is skipped when suppressConsole is set, so commands that write data to stdout
// keep their output clean; such commands still get a file writer.
func InitLogger(config *LoggingConfig, suppressConsole bool) arbor.ILogger {
	logger := arbor.NewLogger()

	timeFormat := config.TimeFormat
	if timeFormat == "" {
		timeFormat = "15:04:05"
	}

	hasFileOutput := slices.Contains(config.Output, "file")
	hasStdoutOutput := slices.Contains(config.Output, "stdout") || slices.Contains(config.Output, "console")
	if suppressConsole {
		hasFileOutput = true
		hasStdoutOutput = false
	}

	if hasFileOutput {
		logsDir := config.Dir
		if logsDir == "" {
			logsDir = "logs"
		}
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to create logs directory: %v\n", err)
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   filepath.Join(logsDir, "addiction.log"),
				TimeFormat: timeFormat,
				MaxSize:    100 * 1024 * 1024, // 100 MB
				MaxBackups: 3,
				TextOutput: true,
			})
		}
	}

	if hasStdoutOutput {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: timeFormat,
			TextOutput: true,
		})
	}

	return logger.WithLevelFromString(config.Level)
}
