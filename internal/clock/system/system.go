// Package system is the wall-clock harvest.Clock used outside tests.
package system

import "time"

// Clock reads the system time in UTC. Timestamps feed snapshot paths and
// ledger rows, so the zone must be stable across hosts.
type Clock struct{}

// New returns the system clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
