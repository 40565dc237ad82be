package domain

import "time"

// Event is a single recorded tool call for observability and replay.
// Events are appended per session in call order and evicted FIFO when the
// per-session or global cap is reached.
type Event struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"ts"`
	Tool          string         `json:"tool"`
	Params        map[string]any `json:"params"`
	SessionID     string         `json:"session_id"`
	ResultSummary string         `json:"result_summary"`
	Result        any            `json:"result,omitempty"`
}
