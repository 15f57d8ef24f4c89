// Package randid provides a random correlation-id helper for transient
// tasks (link-broadcast, file-check), using github.com/google/uuid,
// grounded on
// caddyserver-caddy's use of the same library.
package randid

import "github.com/google/uuid"

// TaskID returns a fresh correlation id for tagging a transient task's
// log lines (the link-broadcast and file-check tasks of
// SPEC_FULL.md §13 item 4/§4.10).
func TaskID() string {
	return uuid.NewString()
}
