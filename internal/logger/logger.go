package logger

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level  string // debug|info|warn|error
	Pretty bool   // human-readable console output
	Output io.Writer
}

// Configure sets the global level and returns the root logger. It also
// replaces zerolog's package logger so log.Info() and friends agree with it.
func Configure(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = cfg.Output
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).With().Timestamp().Logger()
	log.Logger = l
	return l
}

// Requests logs one line per HTTP request. It reads the id set by chi's
// RequestID middleware, so mount it after that.
func Requests(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				ev := l.Info()
				switch {
				case status >= 500:
					ev = l.Error()
				case status >= 400:
					ev = l.Warn()
				}
				ev.Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
