package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the process logger. Production uses JSON output at info level,
// everything else the human-readable development encoder.
func New(appEnv string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if appEnv == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
