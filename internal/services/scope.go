package services

import "log/slog"

// Scope is the per-request context passed explicitly into every service call.
type Scope struct {
	CorrelationID string
	ClientIP      string
	logger        *slog.Logger
}

func NewScope(logger *slog.Logger, correlationID, clientIP string) Scope {
	if logger == nil {
		logger = slog.Default()
	}
	return Scope{
		CorrelationID: correlationID,
		ClientIP:      clientIP,
		logger:        logger.With(slog.String("correlation_id", correlationID)),
	}
}

// Log returns a logger tagged with the correlation id.
func (s Scope) Log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}
