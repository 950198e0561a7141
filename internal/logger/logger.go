package logger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"animalfaces-api/internal/config"
)

var once sync.Once

// Init configures the global zerolog logger. Only the first call has effect.
func Init(appName string, cfg config.LogConfig) error {
	var initErr error
	once.Do(func() {
		level, err := parseLevel(cfg.Level)
		if err != nil {
			initErr = err
			return
		}
		zerolog.SetGlobalLevel(level)

		out, err := newWriter(cfg)
		if err != nil {
			initErr = err
			return
		}

		zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
			parts := strings.Split(file, "/")
			return parts[len(parts)-1] + ":" + strconv.Itoa(line)
		}

		log.Logger = zerolog.New(out).With().
			Timestamp().
			Caller().
			Str("app", appName).
			Logger()
		// requests without a scoped logger fall back to the global one
		zerolog.DefaultContextLogger = &log.Logger
		log.Info().Str("level", level.String()).Msg("logger initialized")
	})
	return initErr
}

func newWriter(cfg config.LogConfig) (io.Writer, error) {
	var console io.Writer = os.Stdout
	if cfg.Format != "json" {
		console = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "02-01-2006 15:04:05.000",
			FormatLevel: func(i interface{}) string {
				return strings.ToUpper(fmt.Sprintf("%-6s", i))
			},
		}
	}
	if cfg.File == "" {
		return console, nil
	}

	rotateHours := cfg.RotateHours
	if rotateHours <= 0 {
		rotateHours = 24
	}
	maxAgeDays := cfg.MaxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 7
	}
	rl, err := rotatelogs.New(
		cfg.File+"-%Y%m%d%H",
		rotatelogs.WithLinkName(cfg.File),
		rotatelogs.WithRotationTime(time.Duration(rotateHours)*time.Hour),
		rotatelogs.WithMaxAge(time.Duration(maxAgeDays)*24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("create rotating log file failed: %w", err)
	}
	// files always get JSON lines
	return zerolog.MultiLevelWriter(console, rl), nil
}

func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "", "INFO":
		return zerolog.InfoLevel, nil
	case "WARN":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	case "FATAL":
		return zerolog.FatalLevel, nil
	case "DISABLED":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
	}
}
