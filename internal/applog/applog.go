// Package applog provides the prefixed *log.Logger constructor used across
// the server and worker processes, and the gorm logger.Interface
// configuration shared with internal/store.
package applog

import (
	"log"
	"os"
	"time"

	"gorm.io/gorm/logger"
)

// New builds a *log.Logger with the given prefix, writing to stdout.
func New(prefix string) *log.Logger {
	return log.New(os.Stdout, prefix, log.LstdFlags)
}

// GormLogger returns a gorm logger.Interface with a one-second slow-query
// threshold and record-not-found errors ignored.
func GormLogger(verbose bool) logger.Interface {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
}
