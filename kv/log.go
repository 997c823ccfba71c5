package kv

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/sekolahku/docgate/kv")

var log = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo}))

// SetLogger replaces the package logger, the server wires its configured one in here.
func SetLogger(l *slog.Logger) {
	if l != nil {
		log = l
	}
}
