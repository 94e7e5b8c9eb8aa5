package transport

import (
	"fmt"

	"github.com/rs/zerolog"
)

// gnetLogger routes gnet's internal logging into zerolog.
type gnetLogger struct {
	logger zerolog.Logger
}

func (l gnetLogger) Debugf(format string, args ...any) {
	l.logger.Debug().Msg(fmt.Sprintf(format, args...))
}

func (l gnetLogger) Infof(format string, args ...any) {
	l.logger.Info().Msg(fmt.Sprintf(format, args...))
}

func (l gnetLogger) Warnf(format string, args ...any) {
	l.logger.Warn().Msg(fmt.Sprintf(format, args...))
}

func (l gnetLogger) Errorf(format string, args ...any) {
	l.logger.Error().Msg(fmt.Sprintf(format, args...))
}

func (l gnetLogger) Fatalf(format string, args ...any) {
	l.logger.Fatal().Msg(fmt.Sprintf(format, args...))
}
