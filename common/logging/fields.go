package logging

import "log/slog"

// Field names shared by every component so log queries stay uniform.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldEventID   = "event_id"
	FieldEventType = "event_type"
	FieldAgentID   = "agent_id"
	FieldUserID    = "user_id"
	FieldCount     = "count"
	FieldSubject   = "subject"
	FieldBackend   = "backend"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error. A nil error yields an empty value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// EventID returns a slog attribute for an event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// EventType returns a slog attribute for an event type name.
func EventType(name string) slog.Attr {
	return slog.String(FieldEventType, name)
}

// AgentID returns a slog attribute for the emitting agent.
func AgentID(id string) slog.Attr {
	return slog.String(FieldAgentID, id)
}

// UserID returns a slog attribute for the authenticated caller.
func UserID(id string) slog.Attr {
	return slog.String(FieldUserID, id)
}

// Count returns a slog attribute for a number of items.
func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

// Subject returns a slog attribute for a message bus subject.
func Subject(subject string) slog.Attr {
	return slog.String(FieldSubject, subject)
}

// Backend returns a slog attribute naming a storage or queue backend.
func Backend(name string) slog.Attr {
	return slog.String(FieldBackend, name)
}
