// Package queue defines the messages exchanged over RabbitMQ and the consumer
// that reacts to them.
package queue

import "time"

// DefaultQueue is the queue table.ingested events are published to.
const DefaultQueue = "table.ingested"

// TableIngestedEvent is published after the ingest tool has swapped a new
// version of a table into the store.  It carries enough detail for a
// consumer to log the load without querying the store.
type TableIngestedEvent struct {
	Table             string    `json:"table"`
	Rows              int       `json:"rows"`
	Columns           []string  `json:"columns"`
	NullSubstitutions int       `json:"null_substitutions"`
	IngestedAt        time.Time `json:"ingested_at"`
}
