// Package logging bridges log/slog into ALS instance files and builds the diagnostic logr logger.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// NewLogger returns the zap-backed logr.Logger used for diagnostics.
func NewLogger(development bool) (logr.Logger, error) {
	var (
		zl  *zap.Logger
		err error
	)
	if development {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zl), nil
}
