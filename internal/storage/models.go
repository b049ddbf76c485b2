package storage

import (
	"time"
)

// ActivityEntry is one row of the audit log.
type ActivityEntry struct {
	ID          int64
	Kind        string
	Description string
	Metadata    map[string]any
	CreatedAt   time.Time
}

// Stats aggregates the counters surfaced by the report command.
type Stats struct {
	ProductsTotal  int64
	ActiveDeals    int64
	MessagesToday  int64
	FailuresToday  int64
	DestinationsOn int64
}
