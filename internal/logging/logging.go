package logging

import (
	"io"
	"os"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Setup builds the root logger. Console output always, plus an optional log
// file and an optional Graylog GELF writer when configured. Every package
// derives its logger from the one returned here.
func Setup(logFile *os.File) zerolog.Logger {
	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}}

	if logFile != nil {
		writers = append(writers, logFile)
	}

	if viper.GetBool("graylog.enabled") {
		gelfWriter, err := gelf.NewWriter(viper.GetString("graylog.address"))
		if err == nil {
			writers = append(writers, gelfWriter)
		}
	}

	level, err := zerolog.ParseLevel(viper.GetString("logLevel"))
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	return logger
}

// OpenLogFile opens (appending) the engine log file under the configured logs
// directory, creating the directory if needed.
func OpenLogFile(name string) (*os.File, error) {
	dir := viper.GetString("logsDir")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.Mkdir(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(dir+"/"+name, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
}
