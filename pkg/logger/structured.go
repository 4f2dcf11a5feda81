package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// zlog stays silent until InitStructured is called (tests, tools)
var zlog = zerolog.Nop()

// InitStructured initializes the structured zerolog logger
func InitStructured(env string) {
	var w io.Writer

	if env == "development" || env == "dev" || env == "local" {
		// Pretty console output for development
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	} else {
		// JSON output for production (machine-readable)
		w = os.Stdout
	}

	zlog = zerolog.New(w).With().
		Timestamp().
		Str("service", "kb-engine").
		Logger()

	zerolog.TimeFieldFormat = time.RFC3339
}

// SetLogger replaces the global logger
func SetLogger(l zerolog.Logger) {
	zlog = l
}

// GetLogger returns the global zerolog logger
func GetLogger() *zerolog.Logger {
	return &zlog
}

// WithRequestID returns a logger with request_id field
func WithRequestID(requestID string) zerolog.Logger {
	return zlog.With().Str("request_id", requestID).Logger()
}

// WithTenant returns a logger with tenant_id field
func WithTenant(tenantID uint64) *zerolog.Logger {
	l := zlog.With().Uint64("tenant_id", tenantID).Logger()
	return &l
}

// WithArticle returns a logger scoped to one article of a tenant
func WithArticle(tenantID, articleID uint64) *zerolog.Logger {
	l := zlog.With().
		Uint64("tenant_id", tenantID).
		Uint64("article_id", articleID).
		Logger()
	return &l
}
