package model

import "time"

// Instance identifies a worker process by its network addresses. It is a
// provenance tag on job runs, not a lock: two processes sharing a MAC are
// treated as the same instance.
type Instance struct {
	ID       int64     `json:"id"`
	MAC      string    `json:"mac"`
	IP       string    `json:"ip"`
	LastSeen time.Time `json:"last_seen"`
}
