package session

import "time"

// Purger removes sessions that were closed before a cutoff.
type Purger interface {
	PurgeClosed(cutoff time.Time) []string
}
