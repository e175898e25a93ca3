package model

import (
	"encoding/json"
	"fmt"
)

// UpstreamError is returned when the backend function answered with a non-2xx status.
// Details holds the upstream JSON body, or nil when the body was not JSON.
type UpstreamError struct {
	Status  int
	Details json.RawMessage
}

func (e *UpstreamError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("backend responded with status %d", e.Status)
	}
	return fmt.Sprintf("backend responded with status %d: %s", e.Status, string(e.Details))
}
