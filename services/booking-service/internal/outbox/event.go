package outbox

// Event is the envelope written to outbox_events. The Kafka topic equals EventType.
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
