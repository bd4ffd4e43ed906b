package main

import (
	"context"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
)

// makeBaseLogger wires a logrus-backed dlog logger, the same pairing the
// teacher's cmd/traffic/logger.go uses, trimmed of the teacher's
// cluster-specific formatter/level-setter plumbing.
func makeBaseLogger(ctx context.Context) context.Context {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}
	wrapped := dlog.WrapLogrus(logger)
	dlog.SetFallbackLogger(wrapped)
	return dlog.WithLogger(ctx, wrapped)
}
