package api

import (
	"context"

	"github.com/spf13/cast"

	"github.com/algomatic/statement-builder/internal/redisbus"
)

// HandleStatementEvent reacts to a statement being created or edited by any
// instance: other sessions editing the same statement are flagged stale.
// Other event types are ignored.
func (s *Server) HandleStatementEvent(_ context.Context, e *redisbus.Event) error {
	switch e.EventType {
	case redisbus.EventStatementSubmitted, redisbus.EventStatementEdited:
	default:
		return nil
	}
	statementID := cast.ToString(e.Payload["statement_id"])
	if statementID == "" {
		s.Logger.Warn("Statement event without statement id",
			"event_type", e.EventType,
			"correlation_id", e.CorrelationID,
		)
		return nil
	}
	s.Sessions.MarkStale(statementID, cast.ToString(e.Payload["session_id"]))
	return nil
}
