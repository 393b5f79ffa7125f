package messaging

// Subjects follow the pattern {domain}.{resource}.{qualifier}.
const (
	// SubjectAgentEventsPrefix prefixes per-type agent event subjects.
	SubjectAgentEventsPrefix = "agents.events"

	// SubjectAgentEventsAll matches every agent event subject.
	SubjectAgentEventsAll = SubjectAgentEventsPrefix + ".>"
)

// Queue group names for load-balanced consumers.
const (
	// QueueEventWriters is the group of consumers persisting agent events.
	QueueEventWriters = "agent-event-writers"
)

// AgentEventSubject returns the subject for events of the given type.
// Example: agents.events.ExploitationEvent
func AgentEventSubject(eventType string) string {
	return SubjectAgentEventsPrefix + "." + eventType
}
