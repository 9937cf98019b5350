package tide

import (
	"context"
	"log/slog"
)

// LevelTrace must be added, because the slog package does not have one by
// default. Generated by subtracting 4 levels from slog.LevelDebug, following
// the example of slog.LevelWarn and slog.LevelError which are set to 4 and 8.
const LevelTrace = slog.LevelDebug - 4

func slogAttrsFromFields(fields LogFields) []any {
	result := make([]any, 0, len(fields)*2)

	for key, value := range fields {
		result = append(result, key, value)
	}

	return result
}

// SlogLoggerAdapter wraps a slog.Logger.
type SlogLoggerAdapter struct {
	slog *slog.Logger

	levelMapping map[slog.Level]slog.Level
}

// Error logs a message to slog.LevelError.
func (s *SlogLoggerAdapter) Error(msg string, err error, fields LogFields) {
	s.log(slog.LevelError, msg, append(slogAttrsFromFields(fields), "error", err)...)
}

// Info logs a message to slog.LevelInfo.
func (s *SlogLoggerAdapter) Info(msg string, fields LogFields) {
	s.log(slog.LevelInfo, msg, slogAttrsFromFields(fields)...)
}

// Debug logs a message to slog.LevelDebug.
func (s *SlogLoggerAdapter) Debug(msg string, fields LogFields) {
	s.log(slog.LevelDebug, msg, slogAttrsFromFields(fields)...)
}

// Trace logs a message to LevelTrace.
func (s *SlogLoggerAdapter) Trace(msg string, fields LogFields) {
	s.log(LevelTrace, msg, slogAttrsFromFields(fields)...)
}

func (s *SlogLoggerAdapter) log(level slog.Level, msg string, args ...any) {
	mappedLevel, ok := s.levelMapping[level]
	if ok {
		level = mappedLevel
	}

	s.slog.Log(context.Background(), level, msg, args...)
}

// With returns a SlogLoggerAdapter with a set of fields injected into all consequent logging messages.
func (s *SlogLoggerAdapter) With(fields LogFields) LoggerAdapter {
	return &SlogLoggerAdapter{
		slog:         s.slog.With(slogAttrsFromFields(fields)...),
		levelMapping: s.levelMapping,
	}
}

// NewSlogLogger creates an adapter to the standard library's structured
// logging package. A nil logger is substituted for the result of slog.Default.
func NewSlogLogger(logger *slog.Logger) LoggerAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLoggerAdapter{
		slog: logger,
	}
}

// NewSlogLoggerWithLevelMapping creates an adapter to the standard library's
// structured logging package. The levelMapping parameter remaps the adapter's
// levels to the levels of the structured logger, for example to log this
// service's info logs as debug in slog.
func NewSlogLoggerWithLevelMapping(logger *slog.Logger, levelMapping map[slog.Level]slog.Level) LoggerAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLoggerAdapter{
		slog:         logger,
		levelMapping: levelMapping,
	}
}
