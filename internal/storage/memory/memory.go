// Package memory implements every store in process memory. It backs tests
// and deployments without Postgres or Redis; contents are lost on restart.
package memory

import "time"

// Clock returns the current time. Tests replace it to drive TTL expiry.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
