package models

// SubscriptionKeys holds the client key material the relay needs to address
// this worker.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// SubscriptionRecord is the serialized push subscription exchanged with the
// relay. The endpoint is the unique identity of a worker's announcement
// queue; the relay upserts by it, so re-registering is harmless.
type SubscriptionRecord struct {
	Endpoint       string           `json:"endpoint"`
	ExpirationTime *int64           `json:"expirationTime"`
	Keys           SubscriptionKeys `json:"keys"`
}
