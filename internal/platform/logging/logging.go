package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. Development gets a console writer,
// everything else JSON on stdout.
func Setup(level, appEnv string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if appEnv == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	zerolog.SetGlobalLevel(ParseLevel(level))
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(out).With().Timestamp().Str("service", "caniparkhere-api").Logger()
	return log.Logger
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Component returns a sub-logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// slowRequestThreshold is the duration above which requests are logged at WARN level.
const slowRequestThreshold = 2 * time.Second

// GinMiddleware logs every request with status and latency.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		var evt *zerolog.Event
		switch {
		case status >= 500 || len(c.Errors) > 0:
			evt = logger.Error().Str("errors", c.Errors.String())
		case latency > slowRequestThreshold:
			evt = logger.Warn()
		default:
			evt = logger.Debug()
		}
		evt.Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("latency", latency).
			Msg("request")
	}
}
