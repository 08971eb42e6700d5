package evolution

import "github.com/google/uuid"

// shortID returns an 8-character hex id, matching the brevity of the
// original system's uuid4().hex[:8] experience ids.
func shortID() string {
	return uuid.NewString()[:8]
}
