package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the wire name of a stream event.
type Kind string

const (
	KindJobStarted    Kind = "job_started"
	KindItemStarted   Kind = "item_started"
	KindItemStep      Kind = "item_step"
	KindItemCompleted Kind = "item_completed"
	KindJobProgress   Kind = "job_progress"
	KindJobCompleted  Kind = "job_completed"
	KindError         Kind = "error"
	KindHeartbeat     Kind = "heartbeat"
)

// Event is a queued stream event. Data holds the already encoded JSON payload
// so events survive a round trip through any Store unchanged.
type Event struct {
	Kind  Kind            `msgpack:"kind"`
	Data  json.RawMessage `msgpack:"data"`
	ID    string          `msgpack:"id,omitempty"`
	Retry *int            `msgpack:"retry,omitempty"`
}

// NewEvent encodes payload as the event data.
func NewEvent(kind Kind, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return &Event{Kind: kind, Data: data}, nil
}

// Render formats the event as a text/event-stream block: optional id,
// optional retry, event, data, then a blank line.
func (e *Event) Render() string {
	var b strings.Builder
	if e.ID != "" {
		b.WriteString("id: ")
		b.WriteString(e.ID)
		b.WriteByte('\n')
	}
	if e.Retry != nil {
		b.WriteString("retry: ")
		b.WriteString(strconv.Itoa(*e.Retry))
		b.WriteByte('\n')
	}
	b.WriteString("event: ")
	b.WriteString(string(e.Kind))
	b.WriteByte('\n')
	b.WriteString("data: ")
	if len(e.Data) == 0 {
		b.WriteString("{}")
	} else {
		b.Write(e.Data)
	}
	b.WriteString("\n\n")
	return b.String()
}

type jobStartedData struct {
	JobID     string    `json:"job_id"`
	Total     int       `json:"total"`
	URLs      []string  `json:"urls"`
	StartedAt time.Time `json:"started_at"`
}

type itemData struct {
	JobID string `json:"job_id"`
	Index int    `json:"index"`
	URL   string `json:"url"`
}

type itemStepData struct {
	itemData
	Step string `json:"step"`
}

type itemCompletedData struct {
	itemData
	Success bool   `json:"success"`
	Result  any    `json:"result"`
	Error   string `json:"error"`
}

type jobCompletedData struct {
	Snapshot
	FinishedAt      time.Time `json:"finished_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

type errorData struct {
	JobID string `json:"job_id,omitempty"`
	Error string `json:"error"`
}

type heartbeatData struct {
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
}
