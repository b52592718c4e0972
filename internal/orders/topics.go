package orders

const (
	TopicOrderCreated  = "order.created"
	TopicOrderResolved = "order.resolved" // accepted and rejected share one topic
)

// Partition key = order id, so all events for one order stay ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
