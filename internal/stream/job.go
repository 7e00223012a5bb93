package stream

import (
	"encoding/json"
	"math"
	"time"
)

// Job is the registry entry of a streamed batch.
type Job struct {
	ID         string     `msgpack:"id"`
	Total      int        `msgpack:"total"`
	Completed  int        `msgpack:"completed"`
	Failed     int        `msgpack:"failed"`
	URLs       []string   `msgpack:"urls"`
	StartedAt  time.Time  `msgpack:"started_at"`
	FinishedAt *time.Time `msgpack:"finished_at"`
	Cancelled  bool       `msgpack:"cancelled"`
}

// Pending is the number of items that have not finished.
func (j *Job) Pending() int {
	return j.Total - j.Completed - j.Failed
}

// ProgressPct is the finished share rounded to one decimal. An empty job
// counts as fully done.
func (j *Job) ProgressPct() float64 {
	if j.Total == 0 {
		return 100
	}
	pct := float64(j.Completed+j.Failed) / float64(j.Total) * 100
	return math.Round(pct*10) / 10
}

// Done reports whether nothing is pending or the job was cancelled.
func (j *Job) Done() bool {
	return j.Pending() == 0 || j.Cancelled
}

// cancel marks the job cancelled. The flag never reverts.
func (j *Job) cancel() {
	j.Cancelled = true
}

func (j *Job) clone() *Job {
	c := *j
	if j.FinishedAt != nil {
		at := *j.FinishedAt
		c.FinishedAt = &at
	}
	c.URLs = append([]string(nil), j.URLs...)
	return &c
}

// Snapshot is the wire form of a job's progress.
type Snapshot struct {
	JobID       string  `json:"job_id"`
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Pending     int     `json:"pending"`
	ProgressPct float64 `json:"progress_pct"`
	IsDone      bool    `json:"is_done"`
	IsCancelled bool    `json:"is_cancelled"`
}

// Snapshot captures the job's current counters.
func (j *Job) Snapshot() Snapshot {
	return Snapshot{
		JobID:       j.ID,
		Total:       j.Total,
		Completed:   j.Completed,
		Failed:      j.Failed,
		Pending:     j.Pending(),
		ProgressPct: j.ProgressPct(),
		IsDone:      j.Done(),
		IsCancelled: j.Cancelled,
	}
}

func (j *Job) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Snapshot())
}
