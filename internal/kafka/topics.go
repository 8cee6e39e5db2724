package kafka

// Topics.
const (
	TopicOfferSweep    = "swapmeet.offer.sweep"
	TopicNotifications = "swapmeet.notifications"
)

// PartitionKey keys messages by item id, so every event of one item lands on
// the same partition and keeps its order.
func PartitionKey(itemID string) []byte { return []byte(itemID) }
