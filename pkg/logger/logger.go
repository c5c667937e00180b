// pkg/logger/logger.go
package logger

import (
	"go.uber.org/zap"
)

type Sugared = *zap.SugaredLogger

// New returns the service logger. Anything other than "prod" gets the
// development encoder.
func New(env string) Sugared {
	var z *zap.Logger
	if env == "prod" {
		z, _ = zap.NewProduction()
	} else {
		z, _ = zap.NewDevelopment()
	}
	return z.Sugar().With("service", "auth-service")
}

// Nop is used by tests and CLI commands that do not want log output.
func Nop() Sugared { return zap.NewNop().Sugar() }
