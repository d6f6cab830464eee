package repository

import "time"

// Activity is one journaled workflow action against a shipment.
type Activity struct {
	ID         string
	ShipmentID string
	Action     string
	OK         bool
	Message    string
	CreatedAt  time.Time
}

// CachedShipment is the last fetched copy of a shipment, stored as the raw
// JSON returned by the API.
type CachedShipment struct {
	ID        string
	Status    string
	Payload   []byte
	FetchedAt time.Time
}
